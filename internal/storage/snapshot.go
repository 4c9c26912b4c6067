package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"pressgate/internal/models"
)

// storedUser is the on-disk shape of a user record. models.User never
// serializes the password hash, so the JSON datastore persists this wrapper
// instead.
type storedUser struct {
	ID           string        `json:"id"`
	Email        string        `json:"email"`
	DisplayName  string        `json:"displayName"`
	Roles        []models.Role `json:"roles,omitempty"`
	PasswordHash string        `json:"passwordHash,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

type storedDataset struct {
	Users        map[string]storedUser               `json:"users"`
	Profiles     map[string]models.Profile           `json:"profiles"`
	Entitlements map[string]models.EntitlementRecord `json:"entitlements"`
	PremiumFiles map[string]models.PremiumFile       `json:"premiumFiles"`
}

func storedFromDataset(data dataset) storedDataset {
	stored := storedDataset{
		Users:        make(map[string]storedUser, len(data.Users)),
		Profiles:     data.Profiles,
		Entitlements: data.Entitlements,
		PremiumFiles: data.PremiumFiles,
	}
	for id, user := range data.Users {
		stored.Users[id] = storedUser{
			ID:           user.ID,
			Email:        user.Email,
			DisplayName:  user.DisplayName,
			Roles:        user.Roles,
			PasswordHash: user.PasswordHash,
			CreatedAt:    user.CreatedAt,
		}
	}
	return stored
}

func (d storedDataset) toDataset() dataset {
	data := newDataset()
	for id, user := range d.Users {
		data.Users[id] = models.User{
			ID:           user.ID,
			Email:        user.Email,
			DisplayName:  user.DisplayName,
			Roles:        user.Roles,
			PasswordHash: user.PasswordHash,
			CreatedAt:    user.CreatedAt,
		}
	}
	for id, profile := range d.Profiles {
		data.Profiles[id] = profile
	}
	for id, record := range d.Entitlements {
		data.Entitlements[id] = record
	}
	for id, file := range d.PremiumFiles {
		data.PremiumFiles[id] = file
	}
	return data
}

// SnapshotUser pairs a user record with its password hash for offline
// migration, which must preserve credentials verbatim.
type SnapshotUser struct {
	User         models.User
	PasswordHash string
}

// Snapshot is a point-in-time export of the JSON datastore consumed by the
// migration tool. Artifact bytes are not part of the snapshot; both drivers
// resolve them through the same content directory or object storage bucket.
type Snapshot struct {
	Users        []SnapshotUser
	Profiles     []models.Profile
	Entitlements []models.EntitlementRecord
	PremiumFiles []models.PremiumFile
}

// SnapshotCounts summarises a snapshot for logging and verification.
type SnapshotCounts struct {
	Users        int
	Profiles     int
	Entitlements int
	PremiumFiles int
}

// Counts returns the record totals held by the snapshot.
func (s Snapshot) Counts() SnapshotCounts {
	return SnapshotCounts{
		Users:        len(s.Users),
		Profiles:     len(s.Profiles),
		Entitlements: len(s.Entitlements),
		PremiumFiles: len(s.PremiumFiles),
	}
}

// LoadSnapshotFromJSON reads the JSON datastore file at path into a snapshot.
func LoadSnapshotFromJSON(path string) (Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	var stored storedDataset
	if err := json.NewDecoder(file).Decode(&stored); err != nil {
		if errors.Is(err, io.EOF) {
			return Snapshot{}, nil
		}
		return Snapshot{}, fmt.Errorf("decode store file: %w", err)
	}

	snapshot := Snapshot{}
	for _, user := range stored.Users {
		snapshot.Users = append(snapshot.Users, SnapshotUser{
			User: models.User{
				ID:          user.ID,
				Email:       user.Email,
				DisplayName: user.DisplayName,
				Roles:       user.Roles,
				CreatedAt:   user.CreatedAt,
			},
			PasswordHash: user.PasswordHash,
		})
	}
	for _, profile := range stored.Profiles {
		snapshot.Profiles = append(snapshot.Profiles, profile)
	}
	for _, record := range stored.Entitlements {
		snapshot.Entitlements = append(snapshot.Entitlements, record)
	}
	for _, premium := range stored.PremiumFiles {
		snapshot.PremiumFiles = append(snapshot.PremiumFiles, premium)
	}

	sort.Slice(snapshot.Users, func(i, j int) bool { return snapshot.Users[i].User.ID < snapshot.Users[j].User.ID })
	sort.Slice(snapshot.Profiles, func(i, j int) bool { return snapshot.Profiles[i].UserID < snapshot.Profiles[j].UserID })
	sort.Slice(snapshot.Entitlements, func(i, j int) bool { return snapshot.Entitlements[i].UserID < snapshot.Entitlements[j].UserID })
	sort.Slice(snapshot.PremiumFiles, func(i, j int) bool { return snapshot.PremiumFiles[i].ID < snapshot.PremiumFiles[j].ID })

	return snapshot, nil
}
