package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/donabox/api/internal/domain"
	"github.com/donabox/api/internal/platform/textutil"
	"github.com/donabox/api/internal/repositories"
	"github.com/donabox/api/internal/rules"
)

const (
	// DefaultSeasonalLabel is served while no label has been stored.
	DefaultSeasonalLabel = "Seasonal"
	// DefaultBlackoutMessage replaces an empty blackout message on write.
	DefaultBlackoutMessage = "Estas fechas están bloqueadas. Elige otra fecha 🙏"

	maxSeasonalLabelLength   = 60
	maxBlackoutMessageLength = 280

	msgEmptyLabel   = "Etiqueta inválida."
	msgEmptyPatch   = "No hay cambios para guardar."
	msgRangeFormat  = "Rango inválido. Usa formato YYYY-MM-DD."
	msgRangeOrder   = "El inicio no puede ser después del fin."
	msgLabelNotText = "La etiqueta no puede contener solo marcado."
)

// ConfigServiceDeps bundles collaborators for the configuration service.
type ConfigServiceDeps struct {
	Config  repositories.ConfigRepository
	Gate    AuthorizationGate
	Catalog domain.Catalog
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type configService struct {
	repo    repositories.ConfigRepository
	gate    AuthorizationGate
	catalog domain.Catalog
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)
}

var _ ConfigService = (*configService)(nil)

// NewConfigService constructs the configuration service.
func NewConfigService(deps ConfigServiceDeps) (ConfigService, error) {
	if deps.Config == nil {
		return nil, errors.New("config service: config repository is required")
	}
	if deps.Gate == nil {
		return nil, errors.New("config service: authorization gate is required")
	}
	catalog := deps.Catalog
	if len(catalog.Slots) == 0 {
		var err error
		if catalog, err = domain.DefaultCatalog(); err != nil {
			return nil, err
		}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &configService{
		repo:    deps.Config,
		gate:    deps.Gate,
		catalog: catalog,
		now:     func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

func (s *configService) Get(ctx context.Context) (AppConfig, error) {
	stored, err := s.repo.Get(ctx)
	if err != nil {
		return AppConfig{}, mapConfigRepositoryError(err)
	}
	return withDefaults(stored), nil
}

func (s *configService) Update(ctx context.Context, caller Caller, cmd ConfigUpdateCommand) (AppConfig, error) {
	if err := requirePrivileged(ctx, s.gate, caller); err != nil {
		return AppConfig{}, err
	}

	var patch domain.ConfigPatch
	if cmd.SeasonalLabel != nil {
		label, err := cleanSeasonalLabel(*cmd.SeasonalLabel)
		if err != nil {
			return AppConfig{}, err
		}
		patch.SeasonalLabel = &label
	}
	if cmd.Blackout != nil {
		// Rows missing either end are skipped, not rejected.
		ranges := make([]DateRangeInput, 0, len(cmd.Blackout.Ranges))
		for _, r := range cmd.Blackout.Ranges {
			if strings.TrimSpace(r.Start) == "" || strings.TrimSpace(r.End) == "" {
				continue
			}
			ranges = append(ranges, r)
		}
		blackout, err := buildBlackout(cmd.Blackout.Enabled, cmd.Blackout.Message, ranges)
		if err != nil {
			return AppConfig{}, err
		}
		patch.Blackout = &blackout
	}
	if patch.Empty() {
		return AppConfig{}, invalidConfig(msgEmptyPatch)
	}
	return s.merge(ctx, caller, patch)
}

func (s *configService) UpdateSeasonalLabel(ctx context.Context, caller Caller, label string) (AppConfig, error) {
	if err := requirePrivileged(ctx, s.gate, caller); err != nil {
		return AppConfig{}, err
	}
	cleaned, err := cleanSeasonalLabel(label)
	if err != nil {
		return AppConfig{}, err
	}
	return s.merge(ctx, caller, domain.ConfigPatch{SeasonalLabel: &cleaned})
}

func (s *configService) UpdateBlackout(ctx context.Context, caller Caller, cmd BlackoutCommand) (AppConfig, error) {
	if err := requirePrivileged(ctx, s.gate, caller); err != nil {
		return AppConfig{}, err
	}
	blackout, err := buildBlackout(cmd.Enabled, cmd.Message, cmd.Ranges)
	if err != nil {
		return AppConfig{}, err
	}
	return s.merge(ctx, caller, domain.ConfigPatch{Blackout: &blackout})
}

func (s *configService) Catalog(ctx context.Context) (CatalogView, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return CatalogView{}, err
	}
	view := CatalogView{
		Slots:           make([]CatalogSlot, 0, len(s.catalog.Slots)),
		PickupLocations: append([]domain.PickupLocation(nil), s.catalog.PickupLocations...),
		Outlets:         append([]string(nil), s.catalog.Outlets...),
	}
	for _, info := range s.catalog.Slots {
		view.Slots = append(view.Slots, CatalogSlot{
			Key:   info.Key,
			Label: s.catalog.SlotLabel(info.Key, displaySeasonalLabel(cfg.SeasonalLabel)),
		})
	}
	return view, nil
}

func (s *configService) merge(ctx context.Context, caller Caller, patch domain.ConfigPatch) (AppConfig, error) {
	stored, err := s.repo.Merge(ctx, patch, s.now())
	if err != nil {
		return AppConfig{}, mapConfigRepositoryError(err)
	}
	fields := map[string]any{"actor": caller.UID}
	if patch.SeasonalLabel != nil {
		fields["seasonalLabel"] = *patch.SeasonalLabel
	}
	if patch.Blackout != nil {
		fields["blackoutEnabled"] = patch.Blackout.Enabled
		fields["blackoutRanges"] = len(patch.Blackout.Ranges)
	}
	s.logger(ctx, "config.updated", fields)
	return withDefaults(stored), nil
}

func withDefaults(stored repositories.StoredConfig) AppConfig {
	cfg := AppConfig{
		SeasonalLabel: DefaultSeasonalLabel,
		Blackout:      domain.BlackoutConfig{Ranges: []domain.DateRange{}},
		UpdatedAt:     stored.UpdatedAt,
	}
	if stored.SeasonalLabel != nil && strings.TrimSpace(*stored.SeasonalLabel) != "" {
		cfg.SeasonalLabel = *stored.SeasonalLabel
	}
	if stored.Blackout != nil {
		cfg.Blackout.Enabled = stored.Blackout.Enabled
		cfg.Blackout.Message = stored.Blackout.Message
		cfg.Blackout.Ranges = append(cfg.Blackout.Ranges, stored.Blackout.Ranges...)
	}
	return cfg
}

// displaySeasonalLabel maps the placeholder default back to "no label" so the
// catalog's own seasonal wording is shown instead.
func displaySeasonalLabel(label string) string {
	if label == DefaultSeasonalLabel {
		return ""
	}
	return label
}

func cleanSeasonalLabel(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", invalidConfig(msgEmptyLabel)
	}
	label := textutil.CleanText(raw, maxSeasonalLabelLength)
	if label == "" {
		return "", invalidConfig(msgLabelNotText)
	}
	return label, nil
}

func buildBlackout(enabled bool, message string, inputs []DateRangeInput) (domain.BlackoutConfig, error) {
	ranges := make([]domain.DateRange, 0, len(inputs))
	for _, in := range inputs {
		start, err := rules.ParseDate(in.Start)
		if err != nil {
			return domain.BlackoutConfig{}, invalidConfig(msgRangeFormat)
		}
		end, err := rules.ParseDate(in.End)
		if err != nil {
			return domain.BlackoutConfig{}, invalidConfig(msgRangeFormat)
		}
		r := domain.DateRange{Start: start, End: end}
		if !r.Valid() {
			return domain.BlackoutConfig{}, invalidConfig(msgRangeOrder)
		}
		ranges = append(ranges, r)
	}
	msg := textutil.CleanText(message, maxBlackoutMessageLength)
	if msg == "" {
		msg = DefaultBlackoutMessage
	}
	return domain.BlackoutConfig{Enabled: enabled, Message: msg, Ranges: ranges}, nil
}
