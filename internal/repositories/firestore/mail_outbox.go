package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	pfirestore "github.com/donabox/api/internal/platform/firestore"
	"github.com/donabox/api/internal/repositories"
)

const defaultMailCollection = "mail"

// MailOutbox writes documents picked up by the mail delivery extension.
type MailOutbox struct {
	provider   *pfirestore.Provider
	collection string
	now        func() time.Time
}

var _ repositories.MailOutbox = (*MailOutbox)(nil)

// NewMailOutbox constructs an outbox writing to collection (default "mail").
func NewMailOutbox(provider *pfirestore.Provider, collection string) (*MailOutbox, error) {
	if provider == nil {
		return nil, errors.New("mail outbox requires firestore provider")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = defaultMailCollection
	}
	return &MailOutbox{provider: provider, collection: collection, now: time.Now}, nil
}

// Enqueue adds a message under an auto-generated id.
func (o *MailOutbox) Enqueue(ctx context.Context, msg repositories.MailMessage) (string, error) {
	client, err := o.provider.Client(ctx)
	if err != nil {
		return "", err
	}
	ref, _, err := client.Collection(o.collection).Add(ctx, map[string]any{
		"to":        msg.To,
		"template":  msg.Template,
		"data":      msg.Data,
		"createdAt": o.now().UTC(),
	})
	if err != nil {
		return "", pfirestore.WrapError("mail.enqueue", err)
	}
	return ref.ID, nil
}
