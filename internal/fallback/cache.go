package fallback

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dgallion1/docmux/internal/document"
	"github.com/dgallion1/docmux/internal/engine"
)

// Cache remembers accepted extractions by category and content hash.
// Exhausted outcomes are never stored so a recovered engine gets another try.
type Cache struct {
	entries *lru.Cache[string, cacheEntry]
}

type cacheEntry struct {
	engine string
	doc    document.CanonicalDocument
}

func NewCache(size int) (*Cache, error) {
	entries, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &Cache{entries: entries}, nil
}

func cacheKey(c engine.Category, hash string) string {
	return string(c) + ":" + hash
}

// Get returns a private copy of the cached document and the engine that produced it.
func (c *Cache) Get(cat engine.Category, hash string) (document.CanonicalDocument, string, bool) {
	e, ok := c.entries.Get(cacheKey(cat, hash))
	if !ok {
		return document.CanonicalDocument{}, "", false
	}
	return cloneDoc(e.doc), e.engine, true
}

func (c *Cache) Add(cat engine.Category, hash, engineName string, doc document.CanonicalDocument) {
	c.entries.Add(cacheKey(cat, hash), cacheEntry{engine: engineName, doc: cloneDoc(doc)})
}

func (c *Cache) Len() int {
	return c.entries.Len()
}

func cloneDoc(d document.CanonicalDocument) document.CanonicalDocument {
	out := d
	out.Blocks = make([]document.ContentBlock, len(d.Blocks))
	for i, b := range d.Blocks {
		if b.Coordinates != nil {
			r := *b.Coordinates
			b.Coordinates = &r
		}
		out.Blocks[i] = b
	}
	return out
}
