package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"cloud.google.com/go/firestore"

	"github.com/donabox/api/internal/domain"
	pfirestore "github.com/donabox/api/internal/platform/firestore"
	"github.com/donabox/api/internal/repositories"
)

const (
	configCollection = "config"
	appConfigDocID   = "app"
	adminsDocID      = "admins"
)

type rangeDocument struct {
	Start string `firestore:"start"`
	End   string `firestore:"end"`
}

type blockedDocument struct {
	Enabled bool            `firestore:"enabled"`
	Message string          `firestore:"message"`
	Ranges  []rangeDocument `firestore:"ranges"`
}

type configDocument struct {
	SeasonalLabel *string          `firestore:"seasonalLabel"`
	Blocked       *blockedDocument `firestore:"blocked"`
	UpdatedAt     time.Time        `firestore:"updatedAt"`
}

// ConfigRepository implements repositories.ConfigRepository on config/app.
type ConfigRepository struct {
	provider *pfirestore.Provider
	docs     *pfirestore.Collection[configDocument]
}

var _ repositories.ConfigRepository = (*ConfigRepository)(nil)

// NewConfigRepository constructs a Firestore-backed configuration repository.
func NewConfigRepository(provider *pfirestore.Provider) (*ConfigRepository, error) {
	if provider == nil {
		return nil, errors.New("config repository requires firestore provider")
	}
	return &ConfigRepository{
		provider: provider,
		docs:     pfirestore.NewCollection[configDocument](provider, configCollection),
	}, nil
}

// Get returns the stored document; a missing document is an empty configuration.
func (r *ConfigRepository) Get(ctx context.Context) (repositories.StoredConfig, error) {
	doc, err := r.docs.Get(ctx, appConfigDocID)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return repositories.StoredConfig{}, nil
		}
		return repositories.StoredConfig{}, err
	}
	return decodeConfig(doc.Data), nil
}

// Merge reads the document and writes the patched fields with MergeAll in one transaction.
func (r *ConfigRepository) Merge(ctx context.Context, patch domain.ConfigPatch, updatedAt time.Time) (repositories.StoredConfig, error) {
	var merged repositories.StoredConfig
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, ref, err := r.docs.GetTx(ctx, tx, appConfigDocID)
		if err != nil && !pfirestore.IsNotFound(err) {
			return err
		}
		current := doc.Data

		updates := map[string]any{"updatedAt": updatedAt.UTC()}
		if patch.SeasonalLabel != nil {
			label := *patch.SeasonalLabel
			current.SeasonalLabel = &label
			updates["seasonalLabel"] = label
		}
		if patch.Blackout != nil {
			blocked := encodeBlackout(*patch.Blackout)
			current.Blocked = &blocked
			updates["blocked"] = blocked
		}
		current.UpdatedAt = updatedAt.UTC()
		merged = decodeConfig(current)
		return tx.Set(ref, updates, firestore.MergeAll)
	})
	if err != nil {
		return repositories.StoredConfig{}, pfirestore.WrapError("config.merge", err)
	}
	return merged, nil
}

func encodeBlackout(cfg domain.BlackoutConfig) blockedDocument {
	doc := blockedDocument{
		Enabled: cfg.Enabled,
		Message: cfg.Message,
		Ranges:  make([]rangeDocument, 0, len(cfg.Ranges)),
	}
	for _, rng := range cfg.Ranges {
		doc.Ranges = append(doc.Ranges, rangeDocument{Start: rng.Start.String(), End: rng.End.String()})
	}
	return doc
}

// decodeConfig drops stored ranges that do not parse; they never matched any date.
func decodeConfig(doc configDocument) repositories.StoredConfig {
	out := repositories.StoredConfig{UpdatedAt: doc.UpdatedAt}
	if doc.SeasonalLabel != nil {
		label := *doc.SeasonalLabel
		out.SeasonalLabel = &label
	}
	if doc.Blocked != nil {
		blackout := domain.BlackoutConfig{
			Enabled: doc.Blocked.Enabled,
			Message: doc.Blocked.Message,
		}
		for _, rng := range doc.Blocked.Ranges {
			start, err1 := civil.ParseDate(rng.Start)
			end, err2 := civil.ParseDate(rng.End)
			if err1 != nil || err2 != nil {
				continue
			}
			blackout.Ranges = append(blackout.Ranges, domain.DateRange{Start: start, End: end})
		}
		out.Blackout = &blackout
	}
	return out
}
