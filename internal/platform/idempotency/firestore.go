package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/donabox/api/internal/platform/firestore"
)

const defaultCollection = "idempotencyKeys"

// FirestoreOption customises a FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection that holds the keys.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// WithMaxAttempts bounds the transaction retries of Reserve and SaveResponse.
func WithMaxAttempts(attempts int) FirestoreOption {
	return func(store *FirestoreStore) {
		if attempts > 0 {
			store.txOpts = append(store.txOpts, pfirestore.WithTxAttempts(attempts))
		}
	}
}

// FirestoreStore keeps records in Firestore, one document per scoped key. Reserve
// and SaveResponse are transactions so two replicas never both own a key.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
	records    *pfirestore.Collection[recordDocument]
	txOpts     []pfirestore.TxOption
}

var _ Store = (*FirestoreStore)(nil)

// NewFirestoreStore binds the store to the provider's client.
func NewFirestoreStore(provider *pfirestore.Provider, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{provider: provider, collection: defaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	store.records = pfirestore.NewCollection[recordDocument](provider, store.collection)
	return store
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	var result Reservation
	err := s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, ref, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		reservation, write, err := reserve(existing, key, fingerprint, now, ttl)
		if err != nil {
			return err
		}
		result = reservation
		if write == nil {
			return nil
		}
		return tx.Set(ref, toDocument(*write))
	}, s.txOpts...)
	if err != nil {
		return Reservation{}, err
	}
	return result, nil
}

func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, ref, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}
		record, err := complete(existing, key, fingerprint, resp, now, ttl)
		if err != nil {
			return err
		}
		return tx.Set(ref, toDocument(record))
	}, s.txOpts...)
}

// CleanupExpired deletes up to limit expired records in one batch.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := s.records.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expires_at", "<=", now.UTC()).Limit(limit)
	})
	if err != nil || len(docs) == 0 {
		return 0, err
	}

	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	batch := client.Batch()
	for _, doc := range docs {
		ref, err := s.records.Ref(ctx, doc.ID)
		if err != nil {
			return 0, err
		}
		batch.Delete(ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, pfirestore.WrapError(s.collection+".cleanup", err)
	}
	return len(docs), nil
}

// Release deletes the record; a record that is already gone is not an error.
func (s *FirestoreStore) Release(ctx context.Context, key, _ string) error {
	if err := s.records.Delete(ctx, documentID(key)); err != nil && !pfirestore.IsNotFound(err) {
		return err
	}
	return nil
}

func (s *FirestoreStore) load(ctx context.Context, tx *firestore.Transaction, key string) (*Record, *firestore.DocumentRef, error) {
	doc, ref, err := s.records.GetTx(ctx, tx, documentID(key))
	switch {
	case err == nil:
		record := doc.Data.toRecord()
		return &record, ref, nil
	case pfirestore.IsNotFound(err):
		return nil, ref, nil
	default:
		return nil, ref, err
	}
}

type recordDocument struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"response_status"`
	ResponseHeaders map[string][]string `firestore:"response_headers"`
	ResponseBody    []byte              `firestore:"response_body"`
	CreatedAt       time.Time           `firestore:"created_at"`
	UpdatedAt       time.Time           `firestore:"updated_at"`
	ExpiresAt       time.Time           `firestore:"expires_at"`
}

func toDocument(r Record) recordDocument {
	return recordDocument{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (d recordDocument) toRecord() Record {
	return Record{
		Key:             d.Key,
		Fingerprint:     d.Fingerprint,
		Status:          Status(d.Status),
		ResponseStatus:  d.ResponseStatus,
		ResponseHeaders: d.ResponseHeaders,
		ResponseBody:    d.ResponseBody,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		ExpiresAt:       d.ExpiresAt,
	}
}
