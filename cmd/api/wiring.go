package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/donabox/api/internal/platform/config"
	"github.com/donabox/api/internal/platform/jobs"
	"github.com/donabox/api/internal/platform/secrets"
	platformstorage "github.com/donabox/api/internal/platform/storage"
	"github.com/donabox/api/internal/repositories"
	"github.com/donabox/api/internal/services"
)

// eventSink is the Pub/Sub side of the API. The zero value publishes nothing.
type eventSink struct {
	publisher services.OrderEventPublisher
	checks    []repositories.DependencyCheck
	stop      func()
	client    *pubsub.Client
}

// openEvents connects to the events topic when one is configured and adds an optional
// health check for it.
func openEvents(ctx context.Context, cfg config.Config) (eventSink, error) {
	topicID := strings.TrimSpace(cfg.Events.Topic)
	if topicID == "" {
		return eventSink{}, nil
	}
	client, err := pubsub.NewClient(ctx, eventsProjectID(cfg))
	if err != nil {
		return eventSink{}, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	topic.EnableMessageOrdering = true
	publisher, err := jobs.NewPubSubEventPublisher(topic)
	if err != nil {
		_ = client.Close()
		return eventSink{}, fmt.Errorf("event publisher: %w", err)
	}
	return eventSink{
		publisher: publisher,
		stop:      publisher.Stop,
		client:    client,
		checks: []repositories.DependencyCheck{{
			Name:     "pubsub",
			Timeout:  2 * time.Second,
			Optional: true,
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s not found", topicID)
				}
				return nil
			},
		}},
	}, nil
}

// close flushes pending messages before the client goes away.
func (s eventSink) close(logger *zap.Logger) {
	if s.stop != nil {
		s.stop()
	}
	if s.client != nil {
		closeWith(logger, "pubsub", s.client.Close)
	}
}

// openExportUploader returns a nil uploader when no exports bucket is configured.
func openExportUploader(ctx context.Context, cfg config.Config) (services.ExportUploader, func() error, error) {
	if strings.TrimSpace(cfg.Storage.ExportsBucket) == "" {
		return nil, nil, nil
	}
	client, err := cloudstorage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("storage client: %w", err)
	}
	writer, err := platformstorage.NewExportWriter(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("export writer: %w", err)
	}
	return writer, client.Close, nil
}

// newSecretFetcher is built from raw environment values because Load needs it to
// resolve secret references.
func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	value := func(keys ...string) string {
		for _, key := range keys {
			if v := strings.TrimSpace(env[key]); v != "" {
				return v
			}
		}
		return ""
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(value("API_SECRETS_FALLBACK_FILE")),
		secrets.WithMeter(otel.Meter("github.com/donabox/api/secrets")),
		secrets.WithProject(value("API_SECRETS_PROJECT_ID", "API_FIREBASE_PROJECT_ID")),
	}
	if ttl, err := time.ParseDuration(value("API_SECRETS_CACHE_TTL")); err == nil {
		opts = append(opts, secrets.WithCacheTTL(ttl))
	}
	if file := value("API_FIREBASE_CREDENTIALS_FILE"); file != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(file)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames makes the admin allowlist mandatory only when it is a secret
// reference, so a missing Secret Manager entry fails startup instead of locking staff out.
func requiredSecretNames(env map[string]string) []string {
	raw := strings.TrimSpace(env["API_BUSINESS_ADMIN_EMAILS"])
	if strings.HasPrefix(raw, "secret://") || strings.HasPrefix(raw, "sm://") {
		return []string{"Business.AdminEmails"}
	}
	return nil
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) services.BuildInfo {
	orDefault := func(value, fallback string) string {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
		return fallback
	}
	return services.BuildInfo{
		Version:     orDefault(env["API_BUILD_VERSION"], "dev"),
		CommitSHA:   orDefault(env["API_BUILD_COMMIT_SHA"], "unknown"),
		Environment: orDefault(cfg.Environment, "local"),
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func eventsProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Events.ProjectID); id != "" {
		return id
	}
	return traceProjectID(cfg)
}
