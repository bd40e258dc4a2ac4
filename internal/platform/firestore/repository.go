package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document is a decoded snapshot.
type Document[T any] struct {
	ID         string
	Data       T
	UpdateTime time.Time
}

// Collection reads and writes documents of type T stored in one collection. T is encoded with
// the firestore struct tags. Every call runs inside the transaction carried by ctx, if any.
type Collection[T any] struct {
	provider *Provider
	name     string
}

func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Create fails with a conflict when id is taken.
func (c *Collection[T]) Create(ctx context.Context, id string, value T) error {
	ref, err := c.doc(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TransactionFromContext(ctx); ok {
		err = tx.Create(ref, value)
	} else {
		_, err = ref.Create(ctx, value)
	}
	return WrapError(c.label("create"), err)
}

func (c *Collection[T]) Set(ctx context.Context, id string, value T) error {
	ref, err := c.doc(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TransactionFromContext(ctx); ok {
		err = tx.Set(ref, value)
	} else {
		_, err = ref.Set(ctx, value)
	}
	return WrapError(c.label("set"), err)
}

// Update patches fields of an existing document.
func (c *Collection[T]) Update(ctx context.Context, id string, updates []firestore.Update) error {
	ref, err := c.doc(ctx, id)
	if err != nil {
		return err
	}
	if tx, ok := TransactionFromContext(ctx); ok {
		err = tx.Update(ref, updates)
	} else {
		_, err = ref.Update(ctx, updates)
	}
	return WrapError(c.label("update"), err)
}

func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := c.doc(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	var snap *firestore.DocumentSnapshot
	if tx, ok := TransactionFromContext(ctx); ok {
		snap, err = tx.Get(ref)
	} else {
		snap, err = ref.Get(ctx)
	}
	if err != nil {
		return Document[T]{}, WrapError(c.label("get"), err)
	}
	return c.decode(snap)
}

// GetAll loads ids in one round trip and drops the ones that do not exist.
func (c *Collection[T]) GetAll(ctx context.Context, ids []string) ([]Document[T], error) {
	if len(ids) == 0 {
		return nil, nil
	}
	client, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		if refs[i], err = c.doc(ctx, id); err != nil {
			return nil, err
		}
	}

	var snaps []*firestore.DocumentSnapshot
	if tx, ok := TransactionFromContext(ctx); ok {
		snaps, err = tx.GetAll(refs)
	} else {
		snaps, err = client.GetAll(ctx, refs)
	}
	if err != nil {
		return nil, WrapError(c.label("getall"), err)
	}
	return c.decodeAll(snaps)
}

// Query runs the query produced by build over the collection.
func (c *Collection[T]) Query(ctx context.Context, build func(firestore.Query) firestore.Query) ([]Document[T], error) {
	client, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	q := client.Collection(c.name).Query
	if build != nil {
		q = build(q)
	}

	var it *firestore.DocumentIterator
	if tx, ok := TransactionFromContext(ctx); ok {
		it = tx.Documents(q)
	} else {
		it = q.Documents(ctx)
	}
	defer it.Stop()

	var snaps []*firestore.DocumentSnapshot
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(c.label("query"), err)
		}
		snaps = append(snaps, snap)
	}
	return c.decodeAll(snaps)
}

func (c *Collection[T]) client(ctx context.Context) (*firestore.Client, error) {
	if c.provider == nil || c.name == "" {
		return nil, WrapError(c.label("open"), errors.New("collection is not configured"))
	}
	return c.provider.Client(ctx)
}

func (c *Collection[T]) doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.label("doc"), errors.New("document id is empty"))
	}
	client, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name).Doc(id), nil
}

func (c *Collection[T]) decode(snap *firestore.DocumentSnapshot) (Document[T], error) {
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("%s: decode %s: %w", c.name, snap.Ref.ID, err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: data, UpdateTime: snap.UpdateTime}, nil
}

func (c *Collection[T]) decodeAll(snaps []*firestore.DocumentSnapshot) ([]Document[T], error) {
	docs := make([]Document[T], 0, len(snaps))
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		doc, err := c.decode(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Collection[T]) label(action string) string {
	return c.name + "." + action
}
