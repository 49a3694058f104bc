package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"

	"github.com/phillip/haojiu-go/metrics"
)

const defaultMaxAttempts = 5

var errRetry = errors.New("stale read")

type docKey struct{ coll, id string }

type record struct {
	raw     bson.Raw
	version uint64
}

// Memory is an in-process Store. Transactions are optimistic: reads
// remember the version they saw and the commit fails if any of them
// moved, in which case the body is run again.
type Memory struct {
	mu    sync.RWMutex
	docs  map[string]map[string]record
	clock uint64

	subMu  sync.RWMutex
	subs   map[string]map[int]func(Change)
	nextID int

	// pending holds committed changes in commit order, guarded by mu.
	// Only the holder of dispatching delivers them.
	pending     []Change
	dispatching sync.Mutex

	MaxAttempts int
}

func NewMemory() *Memory {
	return &Memory{
		docs:        map[string]map[string]record{},
		subs:        map[string]map[int]func(Change){},
		MaxAttempts: defaultMaxAttempts,
	}
}

func (m *Memory) Get(ctx context.Context, coll, id string, out any) error {
	m.mu.RLock()
	rec, ok := m.docs[coll][id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%s/%s: %w", coll, id, ErrNotFound)
	}
	return bson.Unmarshal(rec.raw, out)
}

func (m *Memory) Set(ctx context.Context, coll, id string, doc any) error {
	return m.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Set(ctx, coll, id, doc)
	})
}

func (m *Memory) Update(ctx context.Context, coll, id string, fields bson.M) error {
	return m.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Update(ctx, coll, id, fields)
	})
}

func (m *Memory) Delete(ctx context.Context, coll, id string) error {
	return m.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Delete(ctx, coll, id)
	})
}

func (m *Memory) Batch(ctx context.Context, ops ...Op) error {
	return m.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		for _, op := range ops {
			if err := applyOp(ctx, tx, op); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Memory) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	attempts := m.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		tx := &memTx{m: m, reads: map[docKey]uint64{}, writes: map[docKey]bson.Raw{}}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if err := m.commit(tx); err == nil {
			m.drain()
			return nil
		}
		metrics.StoreTxRetries.Inc()
	}
	return ErrConflict
}

// commit applies t if none of its reads moved and queues the resulting
// changes while still holding mu, so the queue is in commit order.
func (m *Memory) commit(t *memTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, seen := range t.reads {
		if m.docs[k.coll][k.id].version != seen {
			return errRetry
		}
	}

	for _, k := range t.order {
		m.clock++
		raw := t.writes[k]
		if raw == nil {
			delete(m.docs[k.coll], k.id)
			m.pending = append(m.pending, Change{Collection: k.coll, ID: k.id, Op: OpDelete, Version: m.clock})
			continue
		}
		if m.docs[k.coll] == nil {
			m.docs[k.coll] = map[string]record{}
		}
		m.docs[k.coll][k.id] = record{raw: raw, version: m.clock}
		m.pending = append(m.pending, Change{Collection: k.coll, ID: k.id, Op: OpPut, Doc: raw, Version: m.clock})
	}
	return nil
}

func (m *Memory) Find(ctx context.Context, coll string, q Query, out any) error {
	conds := make([]bson.RawValue, len(q.Where))
	for i, c := range q.Where {
		v, err := rawValueOf(c.Value)
		if err != nil {
			return fmt.Errorf("encode condition %s: %w", c.Field, err)
		}
		conds[i] = v
	}

	m.mu.RLock()
	var matched []bson.Raw
	for _, rec := range m.docs[coll] {
		if matches(rec.raw, q.Where, conds) {
			matched = append(matched, rec.raw)
		}
	}
	m.mu.RUnlock()

	orderBy, desc := q.OrderBy, q.Desc
	if orderBy == "" {
		orderBy, desc = "_id", false
	}
	sort.SliceStable(matched, func(i, j int) bool {
		c := compareRaw(lookup(matched[i], orderBy), lookup(matched[j], orderBy))
		if desc {
			return c > 0
		}
		return c < 0
	})
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return decodeAll(matched, out)
}

func (m *Memory) Subscribe(ctx context.Context, coll string, fn func(Change)) (func(), error) {
	m.subMu.Lock()
	m.nextID++
	id := m.nextID
	if m.subs[coll] == nil {
		m.subs[coll] = map[int]func(Change){}
	}
	m.subs[coll][id] = fn
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs[coll], id)
			m.subMu.Unlock()
		})
	}, nil
}

// drain delivers queued changes one goroutine at a time. A commit made
// while another goroutine is delivering (including from inside a
// subscriber) is picked up by that goroutine.
func (m *Memory) drain() {
	for {
		if !m.dispatching.TryLock() {
			return
		}
		for {
			m.mu.Lock()
			batch := m.pending
			m.pending = nil
			m.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			m.notify(batch)
		}
		m.dispatching.Unlock()

		m.mu.RLock()
		more := len(m.pending) > 0
		m.mu.RUnlock()
		if !more {
			return
		}
	}
}

func (m *Memory) notify(changes []Change) {
	for _, c := range changes {
		m.subMu.RLock()
		fns := make([]func(Change), 0, len(m.subs[c.Collection]))
		for _, fn := range m.subs[c.Collection] {
			fns = append(fns, fn)
		}
		m.subMu.RUnlock()
		for _, fn := range fns {
			fn(c)
		}
	}
}

// ---------------- TRANSACTION ----------------

type memTx struct {
	m      *Memory
	reads  map[docKey]uint64
	writes map[docKey]bson.Raw // nil value = delete
	order  []docKey
}

func (t *memTx) read(k docKey) (bson.Raw, bool) {
	if raw, ok := t.writes[k]; ok {
		return raw, raw != nil
	}
	t.m.mu.RLock()
	rec, ok := t.m.docs[k.coll][k.id]
	t.m.mu.RUnlock()
	if _, seen := t.reads[k]; !seen {
		t.reads[k] = rec.version
	}
	return rec.raw, ok
}

func (t *memTx) write(k docKey, raw bson.Raw) {
	if _, ok := t.writes[k]; !ok {
		t.order = append(t.order, k)
	}
	t.writes[k] = raw
}

func (t *memTx) Get(ctx context.Context, coll, id string, out any) error {
	raw, ok := t.read(docKey{coll, id})
	if !ok {
		return fmt.Errorf("%s/%s: %w", coll, id, ErrNotFound)
	}
	return bson.Unmarshal(raw, out)
}

func (t *memTx) Set(ctx context.Context, coll, id string, doc any) error {
	raw, err := encodeWithID(id, doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", coll, id, err)
	}
	t.write(docKey{coll, id}, raw)
	return nil
}

func (t *memTx) Update(ctx context.Context, coll, id string, fields bson.M) error {
	k := docKey{coll, id}
	base, ok := t.read(k)
	if !ok {
		return fmt.Errorf("%s/%s: %w", coll, id, ErrNotFound)
	}
	raw, err := mergeFields(base, fields)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", coll, id, err)
	}
	t.write(k, raw)
	return nil
}

func (t *memTx) Delete(ctx context.Context, coll, id string) error {
	k := docKey{coll, id}
	if _, ok := t.read(k); !ok {
		return fmt.Errorf("%s/%s: %w", coll, id, ErrNotFound)
	}
	t.write(k, nil)
	return nil
}

// ---------------- BSON HELPERS ----------------

func encodeWithID(id string, doc any) (bson.Raw, error) {
	b, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var d bson.D
	if err := bson.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	out := bson.D{{Key: "_id", Value: id}}
	for _, e := range d {
		if e.Key != "_id" {
			out = append(out, e)
		}
	}
	return bson.Marshal(out)
}

func mergeFields(base bson.Raw, fields bson.M) (bson.Raw, error) {
	var d bson.D
	if err := bson.Unmarshal(base, &d); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == "_id" {
			continue
		}
		replaced := false
		for i := range d {
			if d[i].Key == k {
				d[i].Value = fields[k]
				replaced = true
				break
			}
		}
		if !replaced {
			d = append(d, bson.E{Key: k, Value: fields[k]})
		}
	}
	return bson.Marshal(d)
}

func rawValueOf(v any) (bson.RawValue, error) {
	b, err := bson.Marshal(bson.D{{Key: "v", Value: v}})
	if err != nil {
		return bson.RawValue{}, err
	}
	return bson.Raw(b).Lookup("v"), nil
}

func lookup(raw bson.Raw, field string) bson.RawValue {
	v, err := raw.LookupErr(strings.Split(field, ".")...)
	if err != nil {
		return bson.RawValue{}
	}
	return v
}

func matches(raw bson.Raw, where []Cond, want []bson.RawValue) bool {
	for i, c := range where {
		got := lookup(raw, c.Field)
		if got.Equal(want[i]) {
			continue
		}
		if _, ok := numeric(got); ok && compareRaw(got, want[i]) == 0 {
			continue
		}
		return false
	}
	return true
}

func numeric(v bson.RawValue) (float64, bool) {
	switch v.Type {
	case bsontype.Int32:
		return float64(v.Int32()), true
	case bsontype.Int64:
		return float64(v.Int64()), true
	case bsontype.Double:
		return v.Double(), true
	}
	return 0, false
}

func compareRaw(a, b bson.RawValue) int {
	if an, ok := numeric(a); ok {
		if bn, ok := numeric(b); ok {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			}
			return 0
		}
	}
	if a.Type != b.Type {
		// missing values sort first
		switch {
		case a.Type == 0:
			return -1
		case b.Type == 0:
			return 1
		}
		return int(a.Type) - int(b.Type)
	}
	switch a.Type {
	case bsontype.String:
		return strings.Compare(a.StringValue(), b.StringValue())
	case bsontype.DateTime:
		x, y := a.DateTime(), b.DateTime()
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
	case bsontype.Boolean:
		x, y := a.Boolean(), b.Boolean()
		switch {
		case !x && y:
			return -1
		case x && !y:
			return 1
		}
	}
	return 0
}

func decodeAll(raws []bson.Raw, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return errors.New("store: out must be a pointer to a slice")
	}
	slice := reflect.MakeSlice(rv.Elem().Type(), 0, len(raws))
	elem := rv.Elem().Type().Elem()
	for _, raw := range raws {
		p := reflect.New(elem)
		if err := bson.Unmarshal(raw, p.Interface()); err != nil {
			return fmt.Errorf("decode document: %w", err)
		}
		slice = reflect.Append(slice, p.Elem())
	}
	rv.Elem().Set(slice)
	return nil
}
