// Command server starts the Pressgate API HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pressgate/internal/api"
	"pressgate/internal/auth"
	"pressgate/internal/observability/logging"
	"pressgate/internal/observability/metrics"
	"pressgate/internal/server"
	"pressgate/internal/serverutil"
	"pressgate/internal/storage"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address")
	mode := flag.String("mode", "", "server runtime mode (development or production)")
	dataPath := flag.String("data", "", "path to JSON datastore")
	contentDir := flag.String("content-dir", "", "local directory holding premium artifact bytes")
	storageDriver := flag.String("storage-driver", "", "datastore driver (json or postgres)")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	postgresMaxConns := flag.Int("postgres-max-conns", 0, "maximum connections in the Postgres pool")
	postgresMinConns := flag.Int("postgres-min-conns", 0, "minimum idle connections maintained by the Postgres pool")
	postgresMaxConnLifetime := flag.Duration("postgres-max-conn-lifetime", 0, "maximum lifetime for a pooled Postgres connection")
	postgresMaxConnIdle := flag.Duration("postgres-max-conn-idle", 0, "maximum idle time for a pooled Postgres connection")
	postgresHealthInterval := flag.Duration("postgres-health-interval", 0, "interval between Postgres health checks")
	postgresAcquireTimeout := flag.Duration("postgres-acquire-timeout", 0, "timeout when acquiring a Postgres connection from the pool")
	postgresAppName := flag.String("postgres-app-name", "", "application_name reported to Postgres")
	sessionStoreDriver := flag.String("session-store", "", "session store driver (memory or postgres)")
	sessionPostgresDSN := flag.String("session-postgres-dsn", "", "Postgres DSN for the session store")
	sessionTTL := flag.Duration("session-ttl", 0, "session expiry; sessions never expire when unset")
	sessionPurgeInterval := flag.Duration("session-purge-interval", 0, "interval between expired session sweeps")
	tlsCert := flag.String("tls-cert", "", "path to TLS certificate file")
	tlsKey := flag.String("tls-key", "", "path to TLS private key file")
	logLevel := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "log format (json or text)")
	avatarBaseURL := flag.String("avatar-base-url", "", "base URL prefix for derived avatar links")
	avatarExtension := flag.String("avatar-extension", "", "file extension appended to avatar identifiers")
	cookieSameSite := flag.String("cookie-samesite", "", "session cookie SameSite mode (lax, strict, or none)")
	cookieSecure := flag.String("cookie-secure", "", "session cookie Secure mode (auto or always)")
	globalRPS := flag.Float64("rate-global-rps", 0, "global request rate limit in requests per second")
	globalBurst := flag.Int("rate-global-burst", 0, "global rate limit burst allowance")
	loginLimit := flag.Int("rate-login-limit", 0, "maximum login attempts per window for a single IP")
	loginWindow := flag.Duration("rate-login-window", 0, "window for counting login attempts")
	redisAddr := flag.String("rate-redis-addr", "", "Redis address for distributed login throttling")
	redisPassword := flag.String("rate-redis-password", "", "Redis password for distributed login throttling")
	redisTimeout := flag.Duration("rate-redis-timeout", 0, "timeout for Redis operations")
	objectEndpoint := flag.String("object-endpoint", "", "object storage endpoint (e.g. http://127.0.0.1:9000)")
	objectRegion := flag.String("object-region", "", "object storage region")
	objectAccessKey := flag.String("object-access-key", "", "object storage access key")
	objectSecretKey := flag.String("object-secret-key", "", "object storage secret key")
	objectBucket := flag.String("object-bucket", "", "object storage bucket name")
	objectUseSSL := flag.Bool("object-use-ssl", false, "enable TLS for object storage requests")
	objectPrefix := flag.String("object-prefix", "", "object storage key prefix for premium artifacts")
	objectPublicEndpoint := flag.String("object-public-endpoint", "", "public endpoint used for artifact URLs")
	objectTimeout := flag.Duration("object-timeout", 0, "per-request timeout for object storage operations")
	flag.Parse()

	logger := logging.Init(logging.Config{
		Level:  firstNonEmpty(*logLevel, os.Getenv("PRESSGATE_LOG_LEVEL")),
		Format: firstNonEmpty(*logFormat, os.Getenv("PRESSGATE_LOG_FORMAT")),
	})
	auditLogger := logging.WithComponent(logger, "audit")
	recorder := metrics.Default()

	serverMode := modeValue(*mode, os.Getenv("PRESSGATE_MODE"))
	listenAddr := resolveListenAddr(*addr, serverMode, os.Getenv("PRESSGATE_ADDR"))

	var options []storage.Option
	if dir := firstNonEmpty(*contentDir, os.Getenv("PRESSGATE_CONTENT_DIR")); dir != "" {
		options = append(options, storage.WithContentDir(dir))
	}

	objectCfg := storage.ObjectStorageConfig{
		Endpoint:       firstNonEmpty(*objectEndpoint, os.Getenv("PRESSGATE_OBJECT_ENDPOINT")),
		Region:         firstNonEmpty(*objectRegion, os.Getenv("PRESSGATE_OBJECT_REGION")),
		AccessKey:      firstNonEmpty(*objectAccessKey, os.Getenv("PRESSGATE_OBJECT_ACCESS_KEY")),
		SecretKey:      firstNonEmpty(*objectSecretKey, os.Getenv("PRESSGATE_OBJECT_SECRET_KEY")),
		Bucket:         firstNonEmpty(*objectBucket, os.Getenv("PRESSGATE_OBJECT_BUCKET")),
		UseSSL:         resolveBool(*objectUseSSL, "PRESSGATE_OBJECT_USE_SSL"),
		Prefix:         firstNonEmpty(*objectPrefix, os.Getenv("PRESSGATE_OBJECT_PREFIX")),
		PublicEndpoint: firstNonEmpty(*objectPublicEndpoint, os.Getenv("PRESSGATE_OBJECT_PUBLIC_ENDPOINT")),
		RequestTimeout: resolveDuration(*objectTimeout, "PRESSGATE_OBJECT_TIMEOUT", 0),
	}
	if objectCfg.Endpoint != "" || objectCfg.Bucket != "" {
		options = append(options, storage.WithObjectStorage(objectCfg))
	}

	postgresDefaultDSN := resolvePostgresDSN(*postgresDSN)
	driver, err := resolveStorageDriver(*storageDriver, os.Getenv("PRESSGATE_STORAGE_DRIVER"), postgresDefaultDSN)
	if err != nil {
		logger.Error("failed to resolve storage driver", "error", err)
		os.Exit(1)
	}
	if serverMode == "production" {
		if err := validateProductionDatastore(driver, postgresDefaultDSN); err != nil {
			logger.Error("production datastore validation failed", "error", err)
			os.Exit(1)
		}
	}

	var (
		store              storage.Repository
		storagePostgresDSN string
		acquireTimeout     time.Duration
	)
	switch driver {
	case "json":
		dataFile := resolveDataPath(*dataPath, os.Getenv("PRESSGATE_DATA"))
		store, err = storage.NewJSONRepository(dataFile, options...)
	case "postgres":
		storagePostgresDSN = postgresDefaultDSN
		if storagePostgresDSN == "" {
			logger.Error("postgres storage selected without DSN")
			os.Exit(1)
		}
		pgOptions := append([]storage.Option(nil), options...)
		maxConns := resolveInt(*postgresMaxConns, "PRESSGATE_POSTGRES_MAX_CONNS")
		minConns := resolveInt(*postgresMinConns, "PRESSGATE_POSTGRES_MIN_CONNS")
		if maxConns > 0 || minConns > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolLimits(int32(maxConns), int32(minConns)))
		}
		maxLifetime := resolveDuration(*postgresMaxConnLifetime, "PRESSGATE_POSTGRES_MAX_CONN_LIFETIME", 0)
		maxIdle := resolveDuration(*postgresMaxConnIdle, "PRESSGATE_POSTGRES_MAX_CONN_IDLE", 0)
		healthInterval := resolveDuration(*postgresHealthInterval, "PRESSGATE_POSTGRES_HEALTH_INTERVAL", 0)
		if maxLifetime > 0 || maxIdle > 0 || healthInterval > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresPoolDurations(maxLifetime, maxIdle, healthInterval))
		}
		acquireTimeout = resolveDuration(*postgresAcquireTimeout, "PRESSGATE_POSTGRES_ACQUIRE_TIMEOUT", 0)
		if acquireTimeout > 0 {
			pgOptions = append(pgOptions, storage.WithPostgresAcquireTimeout(acquireTimeout))
		}
		if appName := firstNonEmpty(*postgresAppName, os.Getenv("PRESSGATE_POSTGRES_APP_NAME")); appName != "" {
			pgOptions = append(pgOptions, storage.WithPostgresApplicationName(appName))
		}
		store, err = storage.NewPostgresRepository(storagePostgresDSN, pgOptions...)
	default:
		logger.Error("unsupported storage driver", "driver", driver)
		os.Exit(1)
	}
	if err != nil {
		logger.Error("failed to open datastore", "error", err)
		os.Exit(1)
	}

	sessionConfig, err := resolveSessionStoreConfig(
		*sessionStoreDriver,
		os.Getenv("PRESSGATE_SESSION_STORE"),
		driver,
		storagePostgresDSN,
		*sessionPostgresDSN,
		os.Getenv("PRESSGATE_SESSION_POSTGRES_DSN"),
	)
	if err != nil {
		logger.Error("failed to resolve session store", "error", err)
		os.Exit(1)
	}

	var (
		sessionStore  auth.SessionStore
		sessionCloser func(context.Context) error
	)
	switch sessionConfig.Driver {
	case "memory":
		sessionStore = auth.NewMemorySessionStore()
	case "postgres":
		pgStore, err := auth.NewPostgresSessionStore(sessionConfig.DSN)
		if err != nil {
			logger.Error("failed to open session store", "error", err)
			os.Exit(1)
		}
		if err := pgStore.EnsureSchema(context.Background()); err != nil {
			logger.Error("failed to prepare session schema", "error", err)
			os.Exit(1)
		}
		sessionStore = pgStore
		sessionCloser = pgStore.Close
	default:
		logger.Error("unsupported session store driver", "driver", sessionConfig.Driver)
		os.Exit(1)
	}

	sessionOptions := []auth.SessionOption{auth.WithStore(sessionStore)}
	ttl := resolveDuration(*sessionTTL, "PRESSGATE_SESSION_TTL", 0)
	if ttl > 0 {
		sessionOptions = append(sessionOptions, auth.WithTTL(ttl))
	}
	sessions := auth.NewSessionManager(sessionOptions...)

	handler := api.NewHandler(store, sessions)
	handler.Metrics = recorder
	handler.AvatarBaseURL = firstNonEmpty(*avatarBaseURL, os.Getenv("PRESSGATE_AVATAR_BASE_URL"))
	handler.AvatarExtension = firstNonEmpty(*avatarExtension, os.Getenv("PRESSGATE_AVATAR_EXTENSION"))
	cookiePolicy, err := resolveCookiePolicy(
		firstNonEmpty(*cookieSameSite, os.Getenv("PRESSGATE_COOKIE_SAMESITE")),
		firstNonEmpty(*cookieSecure, os.Getenv("PRESSGATE_COOKIE_SECURE")),
	)
	if err != nil {
		logger.Error("invalid cookie configuration", "error", err)
		os.Exit(1)
	}
	handler.SessionCookie = cookiePolicy

	rateCfg := server.RateLimitConfig{
		GlobalRPS:     resolveFloat(*globalRPS, "PRESSGATE_RATE_GLOBAL_RPS"),
		GlobalBurst:   resolveInt(*globalBurst, "PRESSGATE_RATE_GLOBAL_BURST"),
		LoginLimit:    resolveInt(*loginLimit, "PRESSGATE_RATE_LOGIN_LIMIT"),
		LoginWindow:   resolveDuration(*loginWindow, "PRESSGATE_RATE_LOGIN_WINDOW", time.Minute),
		RedisAddr:     firstNonEmpty(*redisAddr, os.Getenv("PRESSGATE_RATE_REDIS_ADDR")),
		RedisPassword: firstNonEmpty(*redisPassword, os.Getenv("PRESSGATE_RATE_REDIS_PASSWORD")),
		RedisTimeout:  resolveDuration(*redisTimeout, "PRESSGATE_RATE_REDIS_TIMEOUT", 2*time.Second),
	}

	tlsCfg := server.TLSConfig{
		CertFile: firstNonEmpty(*tlsCert, os.Getenv("PRESSGATE_TLS_CERT")),
		KeyFile:  firstNonEmpty(*tlsKey, os.Getenv("PRESSGATE_TLS_KEY")),
	}

	srv, err := server.New(handler, server.Config{
		Addr:        listenAddr,
		TLS:         tlsCfg,
		RateLimit:   rateCfg,
		Logger:      logger,
		AuditLogger: auditLogger,
		Metrics:     recorder,
	})
	if err != nil {
		logger.Error("failed to initialise server", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("Pressgate API listening", "addr", listenAddr, "mode", serverMode)
		if tlsCfg.CertFile != "" && tlsCfg.KeyFile != "" {
			logger.Info("TLS enabled", "cert_file", tlsCfg.CertFile)
		}
		logger.Info("metrics endpoint available", "path", "/metrics")
		certFile, keyFile := srv.TLSFiles()
		return serverutil.Run(groupCtx, serverutil.Config{
			Server:          srv.HTTPServer(),
			TLS:             serverutil.TLSConfig{CertFile: certFile, KeyFile: keyFile},
			ShutdownTimeout: 10 * time.Second,
		})
	})
	if ttl > 0 {
		purgeInterval := resolveDuration(*sessionPurgeInterval, "PRESSGATE_SESSION_PURGE_INTERVAL", 15*time.Minute)
		group.Go(func() error {
			runSessionPurgeWorker(groupCtx, logging.WithComponent(logger, "session-purger"), sessions, purgeInterval)
			return nil
		})
	}

	exitCode := 0
	if err := group.Wait(); err != nil {
		logger.Error("server error", "error", err)
		exitCode = 1
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.Close(closeCtx); err != nil {
		logger.Warn("failed to close datastore", "error", err)
	}
	if sessionCloser != nil {
		if err := sessionCloser(closeCtx); err != nil {
			logger.Warn("failed to close session store", "error", err)
		}
	}

	logger.Info("server stopped")
	os.Exit(exitCode)
}

type sessionStoreConfig struct {
	Driver string
	DSN    string
}

// resolveSessionStoreConfig decides where session state lives. Postgres wins
// whenever a session DSN is supplied or the datastore itself is Postgres, so
// multi-replica deployments never fall back to per-process memory by accident.
func resolveSessionStoreConfig(flagDriver, envDriver, storageDriver, storageDSN, flagDSN, envDSN string) (sessionStoreConfig, error) {
	driver := strings.ToLower(strings.TrimSpace(flagDriver))
	if driver == "" {
		driver = strings.ToLower(strings.TrimSpace(envDriver))
	}

	sessionDSN := strings.TrimSpace(firstNonEmpty(flagDSN, envDSN))
	if driver == "" {
		switch {
		case sessionDSN != "":
			driver = "postgres"
		case storageDriver == "postgres":
			driver = "postgres"
		default:
			driver = "memory"
		}
	}

	switch driver {
	case "", "memory":
		return sessionStoreConfig{Driver: "memory"}, nil
	case "postgres":
		if sessionDSN == "" {
			sessionDSN = strings.TrimSpace(storageDSN)
		}
		if sessionDSN == "" {
			return sessionStoreConfig{}, fmt.Errorf("postgres session store selected without DSN")
		}
		return sessionStoreConfig{Driver: "postgres", DSN: sessionDSN}, nil
	default:
		return sessionStoreConfig{}, fmt.Errorf("unsupported session store driver %q", driver)
	}
}

func resolveCookiePolicy(sameSite, secureMode string) (api.SessionCookiePolicy, error) {
	policy := api.SessionCookiePolicy{}
	switch strings.ToLower(strings.TrimSpace(sameSite)) {
	case "":
	case "lax":
		policy.SameSite = http.SameSiteLaxMode
	case "strict":
		policy.SameSite = http.SameSiteStrictMode
	case "none":
		policy.SameSite = http.SameSiteNoneMode
	default:
		return api.SessionCookiePolicy{}, fmt.Errorf("unsupported cookie samesite mode %q", sameSite)
	}
	switch strings.ToLower(strings.TrimSpace(secureMode)) {
	case "":
	case "auto":
		policy.SecureMode = api.SessionCookieSecureAuto
	case "always":
		policy.SecureMode = api.SessionCookieSecureAlways
	default:
		return api.SessionCookiePolicy{}, fmt.Errorf("unsupported cookie secure mode %q", secureMode)
	}
	return policy, nil
}

func resolveListenAddr(flagValue, mode, envAddr string) string {
	listenAddr := strings.TrimSpace(flagValue)
	if listenAddr == "" {
		listenAddr = strings.TrimSpace(envAddr)
	}
	if listenAddr == "" {
		listenAddr = defaultListenForMode(mode)
	}
	return listenAddr
}

func modeValue(flagMode, envMode string) string {
	mode := strings.ToLower(strings.TrimSpace(flagMode))
	if mode == "" {
		mode = strings.ToLower(strings.TrimSpace(envMode))
	}
	if mode == "" {
		mode = "development"
	}
	return mode
}

func defaultListenForMode(mode string) string {
	if mode == "production" {
		return ":80"
	}
	return ":8080"
}

func resolveStorageDriver(flagValue, envValue, postgresDSN string) (string, error) {
	if driver := strings.ToLower(strings.TrimSpace(flagValue)); driver != "" {
		return driver, nil
	}
	if driver := strings.ToLower(strings.TrimSpace(envValue)); driver != "" {
		return driver, nil
	}
	if strings.TrimSpace(postgresDSN) != "" {
		return "postgres", nil
	}
	return "", fmt.Errorf("no datastore configured: provide --storage-driver json or configure Postgres via PRESSGATE_POSTGRES_DSN, DATABASE_URL, or --postgres-dsn")
}

func validateProductionDatastore(driver, postgresDSN string) error {
	if driver != "postgres" {
		return fmt.Errorf("production mode requires the postgres datastore driver, got %q", driver)
	}
	if strings.TrimSpace(postgresDSN) == "" {
		return fmt.Errorf("postgres storage selected without DSN")
	}
	return nil
}

func resolveDataPath(flagValue, envValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := strings.TrimSpace(envValue); env != "" {
		return env
	}
	return "data/store.json"
}

func resolvePostgresDSN(flagValue string) string {
	return strings.TrimSpace(firstNonEmpty(flagValue, os.Getenv("PRESSGATE_POSTGRES_DSN"), os.Getenv("DATABASE_URL")))
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func resolveFloat(flagValue float64, envKey string) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.ParseFloat(strings.TrimSpace(env), 64); err == nil {
			return value
		}
	}
	return 0
}

func resolveInt(flagValue int, envKey string) int {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return 0
}

func resolveDuration(flagValue time.Duration, envKey string, fallback time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if env := os.Getenv(envKey); env != "" {
		if value, err := time.ParseDuration(env); err == nil {
			return value
		}
	}
	if fallback > 0 {
		return fallback
	}
	return 0
}

func resolveBool(flagValue bool, envKey string) bool {
	if flagValue {
		return true
	}
	if env, ok := os.LookupEnv(envKey); ok {
		if value, err := strconv.ParseBool(strings.TrimSpace(env)); err == nil {
			return value
		}
	}
	return false
}
