package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key prefixes inside LevelDB. Set members are stored as empty-valued keys
// under "s/{set}\x00{member}" so a prefix scan lists one set.
const (
	levelCellPrefix = "c/"
	levelSetPrefix  = "s/"
	levelSetSep     = "\x00"
)

// LevelBackend implements Backend on an embedded LevelDB. A Batch is
// written with one leveldb.Batch, which LevelDB applies atomically.
type LevelBackend struct {
	db *leveldb.DB
}

// NewLevelBackend creates or opens a LevelDB database at path.
func NewLevelBackend(path string) (*LevelBackend, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb %s: %w", path, err)
	}
	return &LevelBackend{db: db}, nil
}

// NewMemLevelBackend opens LevelDB over in-memory storage.
func NewMemLevelBackend() (*LevelBackend, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &LevelBackend{db: db}, nil
}

func (l *LevelBackend) Get(_ context.Context, key string) ([]byte, error) {
	v, err := l.db.Get([]byte(levelCellPrefix+key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return v, err
}

func (l *LevelBackend) Members(_ context.Context, set string) ([]string, error) {
	prefix := []byte(levelSetPrefix + set + levelSetSep)
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var members []string
	for iter.Next() {
		members = append(members, string(iter.Key()[len(prefix):]))
	}
	return members, iter.Error()
}

func (l *LevelBackend) Apply(_ context.Context, b *Batch) error {
	batch := new(leveldb.Batch)
	for _, k := range sortedKeys(b.Deletes) {
		batch.Delete([]byte(levelCellPrefix + k))
	}
	for _, k := range sortedKeys(b.Puts) {
		batch.Put([]byte(levelCellPrefix+k), b.Puts[k])
	}
	for _, set := range sortedKeys(b.Removes) {
		for _, member := range sortedKeys(b.Removes[set]) {
			batch.Delete(levelMemberKey(set, member))
		}
	}
	for _, set := range sortedKeys(b.Adds) {
		for _, member := range sortedKeys(b.Adds[set]) {
			batch.Put(levelMemberKey(set, member), nil)
		}
	}
	return l.db.Write(batch, nil)
}

func (l *LevelBackend) Close() error { return l.db.Close() }

func levelMemberKey(set, member string) []byte {
	return []byte(levelSetPrefix + set + levelSetSep + member)
}
