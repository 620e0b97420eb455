package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// Tx is an overlay over a backend: reads see the transaction's own staged
// writes first, writes are only staged.
type Tx struct {
	ctx     context.Context
	backend Backend
	batch   *Batch
}

func newTx(ctx context.Context, backend Backend) *Tx {
	return &Tx{ctx: ctx, backend: backend, batch: NewBatch()}
}

// Context returns the operation context.
func (t *Tx) Context() context.Context { return t.ctx }

// Get returns a cell value or ErrNotFound.
func (t *Tx) Get(key string) ([]byte, error) {
	if v, ok := t.batch.Puts[key]; ok {
		return v, nil
	}
	if _, ok := t.batch.Deletes[key]; ok {
		return nil, ErrNotFound
	}
	return t.backend.Get(t.ctx, key)
}

// Put stages a cell write.
func (t *Tx) Put(key string, value []byte) { t.batch.put(key, value) }

// Delete stages a cell removal.
func (t *Tx) Delete(key string) { t.batch.del(key) }

// Members returns the set members as seen by this transaction, ascending.
func (t *Tx) Members(set string) ([]string, error) {
	base, err := t.backend.Members(t.ctx, set)
	if err != nil {
		return nil, err
	}
	adds := t.batch.Adds[set]
	removes := t.batch.Removes[set]
	if len(adds) == 0 && len(removes) == 0 {
		return base, nil
	}

	merged := make(map[string]struct{}, len(base)+len(adds))
	for _, m := range base {
		merged[m] = struct{}{}
	}
	for m := range adds {
		merged[m] = struct{}{}
	}
	for m := range removes {
		delete(merged, m)
	}
	out := make([]string, 0, len(merged))
	for m := range merged {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

// IsMember reports whether member is in set.
func (t *Tx) IsMember(set, member string) (bool, error) {
	if _, ok := t.batch.Adds[set][member]; ok {
		return true, nil
	}
	if _, ok := t.batch.Removes[set][member]; ok {
		return false, nil
	}
	members, err := t.backend.Members(t.ctx, set)
	if err != nil {
		return false, err
	}
	i := sort.SearchStrings(members, member)
	return i < len(members) && members[i] == member, nil
}

// AddMember stages a set insertion.
func (t *Tx) AddMember(set, member string) { t.batch.add(set, member) }

// RemoveMember stages a set removal.
func (t *Tx) RemoveMember(set, member string) { t.batch.remove(set, member) }

// GetJSON decodes a cell into v. It reports false when the cell is missing.
func (t *Tx) GetJSON(key string, v any) (bool, error) {
	raw, err := t.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("store: decode %s: %w", key, err)
	}
	return true, nil
}

// PutJSON stages v encoded as JSON.
func (t *Tx) PutJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	t.Put(key, raw)
	return nil
}

// GetAmount reads a decimal cell; a missing cell is zero.
func (t *Tx) GetAmount(key string) (decimal.Decimal, error) {
	raw, err := t.Get(key)
	if errors.Is(err, ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	v, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("store: decode amount %s: %w", key, err)
	}
	return v, nil
}

// SetAmount stages a decimal cell. Zero clears the cell so no empty
// balance lingers.
func (t *Tx) SetAmount(key string, v decimal.Decimal) {
	if v.IsZero() {
		t.Delete(key)
		return
	}
	t.Put(key, []byte(v.String()))
}
