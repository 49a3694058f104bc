// Package store is the document database behind every service: keyed
// documents grouped in collections, transactions, atomic batches and a
// change feed. Documents are encoded with BSON tags in both backends.
package store

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned once a transaction has been retried the
	// maximum number of times without committing.
	ErrConflict = errors.New("transaction conflict")
)

// Collection names.
const (
	Users         = "users"
	Sessions      = "sessions"
	Events        = "events"
	Challenges    = "challenges"
	Messages      = "messages"
	Notifications = "notifications"
	// Emails holds one models.EmailClaim per registered address, keyed by
	// the normalized email.
	Emails = "user_emails"
)

// Tx is the read/write handle passed to a transaction body. Update sets
// top-level fields only.
type Tx interface {
	Get(ctx context.Context, coll, id string, out any) error
	Set(ctx context.Context, coll, id string, doc any) error
	Update(ctx context.Context, coll, id string, fields bson.M) error
	Delete(ctx context.Context, coll, id string) error
}

type Store interface {
	Tx

	// Find decodes matching documents into out, which must point to a slice.
	Find(ctx context.Context, coll string, q Query, out any) error

	// RunTransaction runs fn with serializable isolation. fn may run more
	// than once and must use the ctx it is given. An error returned by fn
	// aborts without retry.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Batch applies every op or none of them.
	Batch(ctx context.Context, ops ...Op) error

	// Subscribe calls fn for each committed change in coll until the
	// returned func is called. fn must not block.
	Subscribe(ctx context.Context, coll string, fn func(Change)) (func(), error)
}

type ChangeOp string

const (
	OpPut    ChangeOp = "put"
	OpDelete ChangeOp = "delete"
)

// Change describes one committed write. Doc is nil for deletes. Version
// grows with every commit of the memory store and is zero for Mongo.
type Change struct {
	Collection string
	ID         string
	Op         ChangeOp
	Doc        bson.Raw
	Version    uint64
}

// ---------------- QUERY ----------------

type Cond struct {
	Field string
	Value any
}

// Query is an equality filter with an optional single-field sort.
type Query struct {
	Where   []Cond
	OrderBy string
	Desc    bool
	Limit   int
}

func Where(field string, value any) Query {
	return Query{}.And(field, value)
}

func (q Query) And(field string, value any) Query {
	q.Where = append(append([]Cond(nil), q.Where...), Cond{Field: field, Value: value})
	return q
}

func (q Query) Sort(field string, desc bool) Query {
	q.OrderBy = field
	q.Desc = desc
	return q
}

func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// ---------------- BATCH ----------------

type OpKind int

const (
	BatchSet OpKind = iota
	BatchUpdate
	BatchDelete
)

type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Doc        any
	Fields     bson.M
}

func SetOp(coll, id string, doc any) Op {
	return Op{Kind: BatchSet, Collection: coll, ID: id, Doc: doc}
}

func UpdateOp(coll, id string, fields bson.M) Op {
	return Op{Kind: BatchUpdate, Collection: coll, ID: id, Fields: fields}
}

func DeleteOp(coll, id string) Op {
	return Op{Kind: BatchDelete, Collection: coll, ID: id}
}

func applyOp(ctx context.Context, tx Tx, op Op) error {
	switch op.Kind {
	case BatchSet:
		return tx.Set(ctx, op.Collection, op.ID, op.Doc)
	case BatchUpdate:
		return tx.Update(ctx, op.Collection, op.ID, op.Fields)
	case BatchDelete:
		return tx.Delete(ctx, op.Collection, op.ID)
	}
	return errors.New("unknown batch op")
}
