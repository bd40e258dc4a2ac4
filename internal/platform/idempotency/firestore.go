package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCollection = "checkout_idempotency"

// FirestoreStore keeps keys in a Firestore collection, one document per hashed key.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// NewFirestoreStore returns a store writing to collection, or the default collection when empty.
func NewFirestoreStore(client *firestore.Client, collection string) *FirestoreStore {
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{client: client, collection: collection}
}

type entryDoc struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	State       string              `firestore:"state"`
	Status      int                 `firestore:"status"`
	Header      map[string][]string `firestore:"header,omitempty"`
	Body        []byte              `firestore:"body,omitempty"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func docFromEntry(e Entry) entryDoc {
	return entryDoc{
		Key:         e.Key,
		Fingerprint: e.Fingerprint,
		State:       string(e.State),
		Status:      e.Status,
		Header:      e.Header,
		Body:        e.Body,
		CreatedAt:   e.CreatedAt,
		ExpiresAt:   e.ExpiresAt,
	}
}

func (d entryDoc) entry() Entry {
	return Entry{
		Key:         d.Key,
		Fingerprint: d.Fingerprint,
		State:       State(d.State),
		Status:      d.Status,
		Header:      d.Header,
		Body:        d.Body,
		CreatedAt:   d.CreatedAt,
		ExpiresAt:   d.ExpiresAt,
	}
}

func (s *FirestoreStore) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(documentID(key))
}

func (s *FirestoreStore) read(tx *firestore.Transaction, ref *firestore.DocumentRef) (Entry, bool, error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	var doc entryDoc
	if err := snap.DataTo(&doc); err != nil {
		return Entry{}, false, err
	}
	return doc.entry(), true, nil
}

func (s *FirestoreStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Outcome, Entry, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.doc(key)
	var (
		outcome Outcome
		entry   Entry
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, found, err := s.read(tx, ref)
		if err != nil {
			return err
		}
		var write bool
		outcome, entry, write, err = resolveClaim(existing, found, key, fingerprint, now.UTC(), ttl)
		if err != nil || !write {
			return err
		}
		return tx.Set(ref, docFromEntry(entry))
	})
	if err != nil {
		return 0, Entry{}, err
	}
	return outcome, entry, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Captured, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	ref := s.doc(key)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		entry, found, err := s.read(tx, ref)
		if err != nil {
			return err
		}
		if found && entry.Fingerprint != fingerprint {
			return ErrKeyReused
		}
		if !found {
			entry = newInFlight(key, fingerprint, now, ttl)
		}
		entry.State = StateCompleted
		entry.Status = resp.Status
		entry.Header = storableHeader(resp.Header)
		entry.Body = resp.Body
		entry.ExpiresAt = now.Add(ttl)
		return tx.Set(ref, docFromEntry(entry))
	})
}

func (s *FirestoreStore) Abandon(ctx context.Context, key string) error {
	_, err := s.doc(key).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// Purge deletes up to limit expired keys in one batch.
func (s *FirestoreStore) Purge(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 200
	}
	docs, err := s.client.Collection(s.collection).
		Where("expiresAt", "<=", now.UTC()).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil || len(docs) == 0 {
		return 0, err
	}
	bw := s.client.BulkWriter(ctx)
	for _, d := range docs {
		if _, err := bw.Delete(d.Ref); err != nil {
			bw.End()
			return 0, err
		}
	}
	bw.End()
	return len(docs), nil
}
