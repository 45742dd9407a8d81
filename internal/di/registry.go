package di

import (
	"context"
	"fmt"

	"github.com/donabox/api/internal/platform/config"
	pfirestore "github.com/donabox/api/internal/platform/firestore"
	"github.com/donabox/api/internal/repositories"
	firestoreRepo "github.com/donabox/api/internal/repositories/firestore"
	"github.com/donabox/api/internal/repositories/memory"
)

// OpenRegistry selects the repository backend named by cfg.Storage.Driver. The returned
// provider is nil for the memory driver.
func OpenRegistry(ctx context.Context, cfg config.Config, checks ...repositories.DependencyCheck) (repositories.Registry, *pfirestore.Provider, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		return memory.NewRegistry(), nil, nil
	case config.StorageDriverFirestore, "":
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return nil, nil, fmt.Errorf("connect firestore: %w", err)
		}
		reg, err := firestoreRepo.NewRegistry(provider, firestoreRepo.RegistryOptions{
			MailCollection: cfg.Mail.Collection,
			ExtraChecks:    checks,
		})
		if err != nil {
			_ = provider.Close(ctx)
			return nil, nil, fmt.Errorf("build firestore registry: %w", err)
		}
		return reg, provider, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}
