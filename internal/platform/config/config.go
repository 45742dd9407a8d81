// Package config reads the API's settings from API_* variables. Values come from a
// .env file, the process environment and an explicit map, in rising precedence.
package config

import (
	"context"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/donabox/api/internal/platform/textutil"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultEnvironment          = "local"
	defaultTimezone             = "America/Mexico_City"
	defaultExportsPrefix        = "exports/orders"
	defaultMailCollection       = "mail"
	defaultMailTemplate         = "orderConfirmation"
	defaultSecretsFallbackFile  = ".secrets.local"
	defaultSecretsCacheTTL      = 5 * time.Minute
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
)

// Storage drivers selectable through API_STORAGE_DRIVER.
const (
	StorageDriverFirestore = "firestore"
	StorageDriverMemory    = "memory"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Storage     StorageConfig
	Business    BusinessConfig
	Events      EventsConfig
	Mail        MailConfig
	Secrets     SecretsConfig
	Idempotency IdempotencyConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig.ProjectID falls back to the Firebase project.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// StorageConfig picks the repository driver. ExportsBucket is optional; exports are
// only returned inline when it is empty.
type StorageConfig struct {
	Driver        string
	ExportsBucket string
	ExportsPrefix string
}

type BusinessConfig struct {
	Timezone string
	Location *time.Location
	// AdminEmails is the lowercased staff allowlist. The raw value may be a secret reference.
	AdminEmails []string
}

// EventsConfig names the Pub/Sub topic for order events. An empty topic disables publishing.
type EventsConfig struct {
	ProjectID string
	Topic     string
}

type MailConfig struct {
	Enabled    bool
	Collection string
	Template   string
}

type SecretsConfig struct {
	ProjectID    string
	FallbackFile string
	CacheTTL     time.Duration
}

type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// ValidationError lists the config fields that are missing or could not be parsed, in
// the order they were checked.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// Load builds the Config. Malformed durations, numbers and booleans are reported in a
// ValidationError rather than replaced by defaults. Secret references are resolved
// before validation, and names passed to WithRequiredSecrets must resolve to a
// non-empty value.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	src, err := options.source()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment: strings.ToLower(src.str("API_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:         src.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:  src.duration("API_SERVER_READ_TIMEOUT", "Server.ReadTimeout", defaultReadTimeout),
			WriteTimeout: src.duration("API_SERVER_WRITE_TIMEOUT", "Server.WriteTimeout", defaultWriteTimeout),
			IdleTimeout:  src.duration("API_SERVER_IDLE_TIMEOUT", "Server.IdleTimeout", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       src.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: src.str("API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    src.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: src.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(src.str("API_STORAGE_DRIVER", StorageDriverFirestore)),
			ExportsBucket: src.str("API_STORAGE_EXPORTS_BUCKET", ""),
			ExportsPrefix: strings.Trim(src.str("API_STORAGE_EXPORTS_PREFIX", defaultExportsPrefix), "/"),
		},
		Business: BusinessConfig{
			Timezone: src.str("API_BUSINESS_TIMEZONE", defaultTimezone),
		},
		Events: EventsConfig{
			ProjectID: src.str("API_EVENTS_PROJECT_ID", ""),
			Topic:     src.str("API_EVENTS_TOPIC", ""),
		},
		Mail: MailConfig{
			Enabled:    src.boolean("API_MAIL_ENABLED", "Mail.Enabled", true),
			Collection: src.str("API_MAIL_COLLECTION", defaultMailCollection),
			Template:   src.str("API_MAIL_TEMPLATE", defaultMailTemplate),
		},
		Secrets: SecretsConfig{
			ProjectID:    src.str("API_SECRETS_PROJECT_ID", ""),
			FallbackFile: src.str("API_SECRETS_FALLBACK_FILE", defaultSecretsFallbackFile),
			CacheTTL:     src.duration("API_SECRETS_CACHE_TTL", "Secrets.CacheTTL", defaultSecretsCacheTTL),
		},
		Idempotency: IdempotencyConfig{
			Header:           src.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              src.duration("API_IDEMPOTENCY_TTL", "Idempotency.TTL", defaultIdempotencyTTL),
			CleanupInterval:  src.duration("API_IDEMPOTENCY_CLEANUP_INTERVAL", "Idempotency.CleanupInterval", defaultIdempotencyInterval),
			CleanupBatchSize: src.integer("API_IDEMPOTENCY_CLEANUP_BATCH", "Idempotency.CleanupBatchSize", defaultIdempotencyBatchSize),
		},
	}
	applyProjectFallbacks(&cfg)

	secrets := secretValues{}
	admins, err := secrets.resolve(ctx, options.resolver, "Business.AdminEmails", src.str("API_BUSINESS_ADMIN_EMAILS", ""))
	if err != nil {
		return Config{}, err
	}
	cfg.Business.AdminEmails = lowerCSV(admins)

	invalid := src.invalid
	if loc, err := time.LoadLocation(cfg.Business.Timezone); err == nil {
		cfg.Business.Location = loc
	} else {
		invalid = append(invalid, "Business.Timezone")
	}
	if fields := validate(cfg, invalid); len(fields) > 0 {
		return Config{}, &ValidationError{fields: fields}
	}
	if missing := secrets.missing(options.requiredSecrets); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

// applyProjectFallbacks points Firestore and secrets at the Firebase project and
// events at the Firestore project when they are not set.
func applyProjectFallbacks(cfg *Config) {
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firebase.ProjectID
	}
}

func validate(cfg Config, fields []string) []string {
	check := func(failed bool, field string) {
		if failed {
			fields = append(fields, field)
		}
	}

	check(cfg.Server.Port == "", "Server.Port")
	switch cfg.Storage.Driver {
	case StorageDriverFirestore:
		check(cfg.Firebase.ProjectID == "", "Firebase.ProjectID")
		check(cfg.Firestore.ProjectID == "", "Firestore.ProjectID")
	case StorageDriverMemory:
	default:
		check(true, "Storage.Driver")
	}
	check(cfg.Mail.Enabled && strings.TrimSpace(cfg.Mail.Collection) == "", "Mail.Collection")
	check(strings.TrimSpace(cfg.Idempotency.Header) == "", "Idempotency.Header")
	check(cfg.Idempotency.TTL <= 0, "Idempotency.TTL")
	check(cfg.Idempotency.CleanupInterval <= 0, "Idempotency.CleanupInterval")
	check(cfg.Idempotency.CleanupBatchSize <= 0, "Idempotency.CleanupBatchSize")
	return fields
}

// lowerCSV splits a comma separated address list into normalised, de-duplicated entries.
func lowerCSV(raw string) []string {
	var out []string
	seen := map[string]bool{}
	for _, part := range strings.Split(raw, ",") {
		value := textutil.NormalizeEmail(part)
		if value == "" || seen[value] {
			continue
		}
		seen[value] = true
		out = append(out, value)
	}
	return out
}
