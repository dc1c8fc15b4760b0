// Package designcache memoizes validated documents by request fingerprint.
// Analysis itself never consults it; callers decide when a cached design
// is good enough.
package designcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"figmento/internal/design"
	"figmento/internal/provider"
)

const (
	DefaultSize = 128
	DefaultTTL  = 30 * time.Minute
)

// Settings are the knobs besides the input that change the answer.
type Settings struct {
	Model     string
	MaxTokens int
}

// Fingerprint hashes everything that determines a response. Image bytes
// are hashed separately so large inputs do not bloat the key material.
func Fingerprint(in provider.Input, providerID provider.ID, s Settings) string {
	key := struct {
		Provider    provider.ID `json:"p"`
		Model       string      `json:"m"`
		MaxTokens   int         `json:"t"`
		System      string      `json:"s"`
		Prompt      string      `json:"q"`
		Temperature *float64    `json:"temp,omitempty"`
		ImageMIME   string      `json:"im,omitempty"`
		ImageHash   string      `json:"ih,omitempty"`
	}{
		Provider:    providerID,
		Model:       s.Model,
		MaxTokens:   s.MaxTokens,
		System:      in.System,
		Prompt:      in.Prompt,
		Temperature: in.Temperature,
	}
	if in.MaxTokens > 0 {
		key.MaxTokens = in.MaxTokens
	}
	if in.Image != nil {
		sum := sha256.Sum256(in.Image.Data)
		key.ImageMIME = in.Image.MIMEType
		key.ImageHash = hex.EncodeToString(sum[:])
	}
	b, _ := json.Marshal(key)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Cache is a size-bounded LRU whose entries also expire after a TTL.
type Cache struct {
	lru     *expirable.LRU[string, design.Document]
	hits    atomic.Int64
	misses  atomic.Int64
	evicted atomic.Int64
}

func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{}
	c.lru = expirable.NewLRU[string, design.Document](size, func(string, design.Document) {
		c.evicted.Add(1)
	}, ttl)
	return c
}

func (c *Cache) Get(fingerprint string) (design.Document, bool) {
	doc, ok := c.lru.Get(fingerprint)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return doc, ok
}

func (c *Cache) Put(fingerprint string, doc design.Document) {
	c.lru.Add(fingerprint, doc)
}

func (c *Cache) Len() int { return c.lru.Len() }

// Stats reports hits, misses and evictions since creation.
func (c *Cache) Stats() (hits, misses, evicted int64) {
	return c.hits.Load(), c.misses.Load(), c.evicted.Load()
}
