package host

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/atmx/settlement-engine/internal/model"
	"github.com/atmx/settlement-engine/internal/store"
)

var ErrUnknownItem = errors.New("host: unknown item")

// MetadataSource resolves the creator, royalty and attributes of an item.
type MetadataSource interface {
	Item(tx *store.Tx, collection string, nonce uint64) (model.ItemMetadata, error)
}

// Registry keeps item metadata in the engine store. Items are registered
// when they are minted into the ledger.
type Registry struct{}

func itemKey(collection string, nonce uint64) string {
	return fmt.Sprintf("item:%s:%d", collection, nonce)
}

// Register records metadata for a new item. Metadata is immutable.
func (Registry) Register(tx *store.Tx, meta model.ItemMetadata) error {
	if meta.Nonce == 0 {
		return fmt.Errorf("host: item %s needs a non-zero nonce", meta.Collection)
	}
	var existing model.ItemMetadata
	ok, err := tx.GetJSON(itemKey(meta.Collection, meta.Nonce), &existing)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("host: item %s-%d already registered", meta.Collection, meta.Nonce)
	}
	return tx.PutJSON(itemKey(meta.Collection, meta.Nonce), meta)
}

// Item implements MetadataSource.
func (Registry) Item(tx *store.Tx, collection string, nonce uint64) (model.ItemMetadata, error) {
	var meta model.ItemMetadata
	ok, err := tx.GetJSON(itemKey(collection, nonce), &meta)
	if err != nil {
		return model.ItemMetadata{}, err
	}
	if !ok {
		return model.ItemMetadata{}, fmt.Errorf("%w: %s-%d", ErrUnknownItem, collection, nonce)
	}
	return meta, nil
}

// CachedMetadata fronts a source with an in-process LRU. Only committed,
// immutable metadata is ever cached.
type CachedMetadata struct {
	source MetadataSource
	cache  *lru.Cache[string, model.ItemMetadata]
}

// NewCachedMetadata wraps source with a cache of size entries.
func NewCachedMetadata(source MetadataSource, size int) (*CachedMetadata, error) {
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, model.ItemMetadata](size)
	if err != nil {
		return nil, err
	}
	return &CachedMetadata{source: source, cache: cache}, nil
}

// Item implements MetadataSource.
func (c *CachedMetadata) Item(tx *store.Tx, collection string, nonce uint64) (model.ItemMetadata, error) {
	key := itemKey(collection, nonce)
	if meta, ok := c.cache.Get(key); ok {
		return meta, nil
	}
	meta, err := c.source.Item(tx, collection, nonce)
	if err != nil {
		return meta, err
	}
	c.cache.Add(key, meta)
	return meta, nil
}

// Len returns the number of cached entries.
func (c *CachedMetadata) Len() int { return c.cache.Len() }
