package domain

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// SlotInfo describes one product slot for display.
type SlotInfo struct {
	Key   Slot   `yaml:"key"`
	Label string `yaml:"label"`
}

// PickupLocation is a collection point for individual orders.
type PickupLocation struct {
	Name  string   `yaml:"name"`
	Hours []string `yaml:"hours"`
}

// Catalog is the static product and location reference data.
type Catalog struct {
	Slots           []SlotInfo       `yaml:"slots"`
	PickupLocations []PickupLocation `yaml:"pickupLocations"`
	Outlets         []string         `yaml:"outlets"`
}

var (
	defaultCatalogOnce sync.Once
	defaultCatalog     Catalog
	defaultCatalogErr  error
)

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() (Catalog, error) {
	defaultCatalogOnce.Do(func() {
		defaultCatalog, defaultCatalogErr = ParseCatalog(catalogYAML)
	})
	return defaultCatalog, defaultCatalogErr
}

// MustDefaultCatalog is DefaultCatalog for package-level wiring; it panics on a broken embed.
func MustDefaultCatalog() Catalog {
	cat, err := DefaultCatalog()
	if err != nil {
		panic(err)
	}
	return cat
}

// ParseCatalog decodes and validates a YAML catalog document.
func ParseCatalog(data []byte) (Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return Catalog{}, fmt.Errorf("catalog: decode: %w", err)
	}
	if len(cat.Slots) != len(Slots) {
		return Catalog{}, fmt.Errorf("catalog: expected %d slots, got %d", len(Slots), len(cat.Slots))
	}
	for i, info := range cat.Slots {
		if info.Key != Slots[i] {
			return Catalog{}, fmt.Errorf("catalog: slot %d is %q, want %q", i, info.Key, Slots[i])
		}
	}
	if len(cat.PickupLocations) == 0 {
		return Catalog{}, errors.New("catalog: at least one pickup location is required")
	}
	return cat, nil
}

// SlotLabel returns the display label for slot, replacing the seasonal slot label when provided.
func (c Catalog) SlotLabel(slot Slot, seasonalLabel string) string {
	if slot == SlotSeasonal {
		if label := strings.TrimSpace(seasonalLabel); label != "" {
			return label
		}
	}
	for _, info := range c.Slots {
		if info.Key == slot {
			return info.Label
		}
	}
	return string(slot)
}

// IsPickupLocation reports whether name is a configured pickup location.
func (c Catalog) IsPickupLocation(name string) bool {
	for _, loc := range c.PickupLocations {
		if loc.Name == name {
			return true
		}
	}
	return false
}

// PickupLocationNames lists the pickup location names in catalog order.
func (c Catalog) PickupLocationNames() []string {
	out := make([]string, 0, len(c.PickupLocations))
	for _, loc := range c.PickupLocations {
		out = append(out, loc.Name)
	}
	return out
}
