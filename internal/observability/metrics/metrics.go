package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory metrics counters for HTTP requests, login
// attempts, session lifecycle events, entitlement checks, and premium
// download outcomes. It coordinates concurrent writers via a RWMutex while
// exposing an atomic byte counter for streamed downloads.
type Recorder struct {
	mu                sync.RWMutex
	requestCount      map[requestLabel]uint64
	requestDuration   map[requestLabel]time.Duration
	loginAttempts     map[string]uint64
	sessionEvents     map[string]uint64
	entitlementChecks map[string]uint64
	downloadOutcomes  map[string]uint64
	downloadBytes     atomic.Int64
	dependencyValue   map[string]float64
	dependencyState   map[string]string
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:      make(map[requestLabel]uint64),
		requestDuration:   make(map[requestLabel]time.Duration),
		loginAttempts:     make(map[string]uint64),
		sessionEvents:     make(map[string]uint64),
		entitlementChecks: make(map[string]uint64),
		downloadOutcomes:  make(map[string]uint64),
		dependencyValue:   make(map[string]float64),
		dependencyState:   make(map[string]string),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveLogin records a login attempt keyed by result (e.g. "success",
// "invalid_credentials", "invalid_input", "throttled", "error").
func (r *Recorder) ObserveLogin(result string) {
	name := normalizeName(result)
	r.mu.Lock()
	r.loginAttempts[name]++
	r.mu.Unlock()
}

// ObserveSessionEvent records a session lifecycle event such as "issued",
// "superseded", "logout", or "purged".
func (r *Recorder) ObserveSessionEvent(event string) {
	name := normalizeName(event)
	r.mu.Lock()
	r.sessionEvents[name]++
	r.mu.Unlock()
}

// ObserveEntitlementCheck records the result of a premium entitlement lookup
// ("premium", "standard", "invalid_input", "error").
func (r *Recorder) ObserveEntitlementCheck(result string) {
	name := normalizeName(result)
	r.mu.Lock()
	r.entitlementChecks[name]++
	r.mu.Unlock()
}

// ObserveDownload records the terminal outcome of a premium download request.
func (r *Recorder) ObserveDownload(outcome string) {
	name := normalizeName(outcome)
	r.mu.Lock()
	r.downloadOutcomes[name]++
	r.mu.Unlock()
}

// AddDownloadBytes accumulates the number of artifact bytes streamed to
// clients. Non-positive deltas are ignored.
func (r *Recorder) AddDownloadBytes(n int64) {
	if n <= 0 {
		return
	}
	r.downloadBytes.Add(n)
}

// DownloadBytes exposes the total artifact bytes streamed so far.
func (r *Recorder) DownloadBytes() int64 {
	return r.downloadBytes.Load()
}

// SetDependencyHealth normalizes dependency identifiers, maps status strings
// to numeric health values, and stores both representations for export.
func (r *Recorder) SetDependencyHealth(dependency, status string) {
	normalizedDependency := normalizeName(dependency)
	normalizedStatus := strings.ToLower(strings.TrimSpace(status))
	value := 0.0
	switch normalizedStatus {
	case "ok", "healthy":
		value = 1
	case "disabled":
		value = 0
	default:
		value = -1
	}
	r.mu.Lock()
	r.dependencyValue[normalizedDependency] = value
	r.dependencyState[normalizedDependency] = normalizedStatus
	r.mu.Unlock()
}

// LoginCounts returns a copy of the login attempt counters for testing and
// reporting purposes.
func (r *Recorder) LoginCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyCounts(r.loginAttempts)
}

// DownloadCounts returns a copy of the download outcome counters.
func (r *Recorder) DownloadCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyCounts(r.downloadOutcomes)
}

// EntitlementCheckCounts returns a copy of the entitlement check counters.
func (r *Recorder) EntitlementCheckCounts() map[string]uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyCounts(r.entitlementChecks)
}

// Reset clears all counters on the recorder. It is intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.loginAttempts = make(map[string]uint64)
	r.sessionEvents = make(map[string]uint64)
	r.entitlementChecks = make(map[string]uint64)
	r.downloadOutcomes = make(map[string]uint64)
	r.dependencyValue = make(map[string]float64)
	r.dependencyState = make(map[string]string)
	r.downloadBytes.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	loginResults := sortedKeys(r.loginAttempts)
	sessionEvents := sortedKeys(r.sessionEvents)
	entitlementResults := sortedKeys(r.entitlementChecks)
	downloadOutcomes := sortedKeys(r.downloadOutcomes)
	dependencies := sortedFloatKeys(r.dependencyValue)

	fmt.Fprintln(w, "# HELP pressgate_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE pressgate_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "pressgate_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP pressgate_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE pressgate_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "pressgate_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP pressgate_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE pressgate_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "pressgate_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP pressgate_login_attempts_total Login attempts by result")
	fmt.Fprintln(w, "# TYPE pressgate_login_attempts_total counter")
	for _, result := range loginResults {
		fmt.Fprintf(w, "pressgate_login_attempts_total{result=\"%s\"} %d\n", result, r.loginAttempts[result])
	}

	fmt.Fprintln(w, "# HELP pressgate_session_events_total Session lifecycle events by type")
	fmt.Fprintln(w, "# TYPE pressgate_session_events_total counter")
	for _, event := range sessionEvents {
		fmt.Fprintf(w, "pressgate_session_events_total{event=\"%s\"} %d\n", event, r.sessionEvents[event])
	}

	fmt.Fprintln(w, "# HELP pressgate_entitlement_checks_total Premium entitlement checks by result")
	fmt.Fprintln(w, "# TYPE pressgate_entitlement_checks_total counter")
	for _, result := range entitlementResults {
		fmt.Fprintf(w, "pressgate_entitlement_checks_total{result=\"%s\"} %d\n", result, r.entitlementChecks[result])
	}

	fmt.Fprintln(w, "# HELP pressgate_downloads_total Premium download requests by outcome")
	fmt.Fprintln(w, "# TYPE pressgate_downloads_total counter")
	for _, outcome := range downloadOutcomes {
		fmt.Fprintf(w, "pressgate_downloads_total{outcome=\"%s\"} %d\n", outcome, r.downloadOutcomes[outcome])
	}

	fmt.Fprintln(w, "# HELP pressgate_download_bytes_total Total artifact bytes streamed to clients")
	fmt.Fprintln(w, "# TYPE pressgate_download_bytes_total counter")
	fmt.Fprintf(w, "pressgate_download_bytes_total %d\n", r.downloadBytes.Load())

	fmt.Fprintln(w, "# HELP pressgate_dependency_health Health reported by service dependencies (1=ok,0=disabled,-1=degraded)")
	fmt.Fprintln(w, "# TYPE pressgate_dependency_health gauge")
	for _, dependency := range dependencies {
		value := r.dependencyValue[dependency]
		status := r.dependencyState[dependency]
		fmt.Fprintf(w, "pressgate_dependency_health{dependency=\"%s\",status=\"%s\"} %f\n", dependency, status, value)
	}
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func sortedKeys(counts map[string]uint64) []string {
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedFloatKeys(values map[string]float64) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func copyCounts(counts map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(counts))
	for key, value := range counts {
		out[key] = value
	}
	return out
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
			continue
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 16 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObserveLogin records a login attempt on the default recorder.
func ObserveLogin(result string) {
	defaultRecorder.ObserveLogin(result)
}

// ObserveDownload records a download outcome on the default recorder.
func ObserveDownload(outcome string) {
	defaultRecorder.ObserveDownload(outcome)
}

// SetDependencyHealth updates dependency health on the default recorder.
func SetDependencyHealth(dependency, status string) {
	defaultRecorder.SetDependencyHealth(dependency, status)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
