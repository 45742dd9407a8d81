package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/donabox/api/internal/platform/firestore"
	"github.com/donabox/api/internal/repositories"
)

type adminsDocument struct {
	Emails []string `firestore:"emails"`
}

// AdminDirectory reads the staff allowlist stored in config/admins.
type AdminDirectory struct {
	docs *pfirestore.Collection[adminsDocument]
}

var _ repositories.AdminDirectory = (*AdminDirectory)(nil)

func NewAdminDirectory(provider *pfirestore.Provider) (*AdminDirectory, error) {
	if provider == nil {
		return nil, errors.New("admin directory requires firestore provider")
	}
	return &AdminDirectory{
		docs: pfirestore.NewCollection[adminsDocument](provider, configCollection),
	}, nil
}

func (d *AdminDirectory) Emails(ctx context.Context) ([]string, error) {
	doc, err := d.docs.Get(ctx, adminsDocID)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return doc.Data.Emails, nil
}
