package embedder

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"

	"go.etcd.io/bbolt"
)

var cacheBucket = []byte("embeddings")

// BoltCache is a bbolt-backed embedding cache. Entries are keyed by the
// canonical record id; the producing model's name is stored with each
// vector so a model change invalidates stale entries on read.
type BoltCache struct {
	db     *bbolt.DB
	logger *slog.Logger
}

// NewBoltCache opens (or creates) the cache database at path.
func NewBoltCache(path string, logger *slog.Logger) (*BoltCache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(cacheBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache bucket: %w", err)
	}

	return &BoltCache{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (c *BoltCache) Close() error {
	return c.db.Close()
}

// Get returns the cached vector for a record if it was produced by model.
func (c *BoltCache) Get(recordID, model string) ([]float32, bool) {
	var vec []float32

	err := c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(cacheBucket).Get([]byte(recordID))
		if data == nil {
			return nil
		}
		gotModel, v, err := decodeEntry(data)
		if err != nil {
			return err
		}
		if gotModel != model {
			// Stale entry from a previous model; treat as a miss.
			return nil
		}
		vec = v
		return nil
	})
	if err != nil {
		c.logger.Warn("failed to read embedding cache", "record_id", recordID, "error", err)
		return nil, false
	}

	return vec, vec != nil
}

// Put stores a vector for a record, overwriting any previous entry.
// Write failures are logged and swallowed; the caller recomputes next time.
func (c *BoltCache) Put(recordID, model string, vector []float32) {
	err := c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(cacheBucket).Put([]byte(recordID), encodeEntry(model, vector))
	})
	if err != nil {
		c.logger.Warn("failed to write embedding cache", "record_id", recordID, "error", err)
	}
}

// encodeEntry packs a model tag and vector as:
// uint16 model length, model bytes, little-endian float32s.
func encodeEntry(model string, vec []float32) []byte {
	buf := make([]byte, 2+len(model)+len(vec)*4)
	binary.LittleEndian.PutUint16(buf, uint16(len(model)))
	copy(buf[2:], model)
	off := 2 + len(model)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[off+i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeEntry(data []byte) (string, []float32, error) {
	if len(data) < 2 {
		return "", nil, fmt.Errorf("cache entry too short: %d bytes", len(data))
	}
	modelLen := int(binary.LittleEndian.Uint16(data))
	if len(data) < 2+modelLen || (len(data)-2-modelLen)%4 != 0 {
		return "", nil, fmt.Errorf("malformed cache entry: %d bytes, model len %d", len(data), modelLen)
	}
	model := string(data[2 : 2+modelLen])

	raw := data[2+modelLen:]
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return model, vec, nil
}

// CachedEmbedder decorates an Embedder with a best-effort record cache.
// Plain Embed/EmbedBatch calls (query text has no stable identity) pass
// through; EmbedRecord consults the cache first.
type CachedEmbedder struct {
	Embedder
	cache  Cache
	logger *slog.Logger
}

// NewCachedEmbedder creates a caching decorator around inner.
func NewCachedEmbedder(inner Embedder, cache Cache, logger *slog.Logger) *CachedEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedEmbedder{Embedder: inner, cache: cache, logger: logger}
}

// EmbedRecord returns the cached vector for recordID when available,
// otherwise computes it and writes through.
func (c *CachedEmbedder) EmbedRecord(ctx context.Context, recordID, text string) ([]float32, error) {
	model := c.ModelName()

	if vec, ok := c.cache.Get(recordID, model); ok {
		return vec, nil
	}

	vec, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Put(recordID, model, vec)
	return vec, nil
}
