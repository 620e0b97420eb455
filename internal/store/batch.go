package store

import "sort"

// Batch is the set of staged writes of one operation.
type Batch struct {
	Puts    map[string][]byte
	Deletes map[string]struct{}
	Adds    map[string]map[string]struct{}
	Removes map[string]map[string]struct{}
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{
		Puts:    make(map[string][]byte),
		Deletes: make(map[string]struct{}),
		Adds:    make(map[string]map[string]struct{}),
		Removes: make(map[string]map[string]struct{}),
	}
}

// Empty reports whether the batch carries no writes.
func (b *Batch) Empty() bool {
	return len(b.Puts) == 0 && len(b.Deletes) == 0 && len(b.Adds) == 0 && len(b.Removes) == 0
}

func (b *Batch) put(key string, value []byte) {
	delete(b.Deletes, key)
	b.Puts[key] = append([]byte(nil), value...)
}

func (b *Batch) del(key string) {
	delete(b.Puts, key)
	b.Deletes[key] = struct{}{}
}

func (b *Batch) add(set, member string) {
	if rm, ok := b.Removes[set]; ok {
		delete(rm, member)
		if len(rm) == 0 {
			delete(b.Removes, set)
		}
	}
	adds, ok := b.Adds[set]
	if !ok {
		adds = make(map[string]struct{})
		b.Adds[set] = adds
	}
	adds[member] = struct{}{}
}

func (b *Batch) remove(set, member string) {
	if adds, ok := b.Adds[set]; ok {
		delete(adds, member)
		if len(adds) == 0 {
			delete(b.Adds, set)
		}
	}
	rm, ok := b.Removes[set]
	if !ok {
		rm = make(map[string]struct{})
		b.Removes[set] = rm
	}
	rm[member] = struct{}{}
}

// CellKeys returns every cell key touched by the batch, sorted.
func (b *Batch) CellKeys() []string {
	keys := make([]string, 0, len(b.Puts)+len(b.Deletes))
	for k := range b.Puts {
		keys = append(keys, k)
	}
	for k := range b.Deletes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sortedKeys returns the keys of a string-keyed map in ascending order so
// every backend applies a batch deterministically.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
