package hierarchy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lidarstack/pc-server/log"
	"github.com/lidarstack/pc-server/schema"
)

// Cache persists hierarchy trees on local disk. Keys are deterministic
// filenames derived from the request; writes are atomic through a
// write-temp-then-rename, which also serializes concurrent builders of the
// same key. All read errors demote to a miss.
type Cache struct {
	// Dir is the base directory for cache files.
	Dir string

	// RootPath, when set, short-circuits the lookup for lod_min == 0.
	RootPath string
}

func NewCache(dir, rootPath string) *Cache {
	return &Cache{Dir: dir, RootPath: rootPath}
}

// Key derives the cache filename for a hierarchy request.
func (c *Cache) Key(table, column string, lodMin, lodMax int, box schema.Bbox) string {
	coords := make([]string, 0, 6)
	for _, v := range box.Slice() {
		coords = append(coords, strconv.FormatFloat(v, 'f', -1, 64))
	}
	return fmt.Sprintf("%s_%s_%d_%d_%s.hcy", table, column, lodMin, lodMax,
		strings.Join(coords, "_"))
}

func (c *Cache) path(key string, lodMin int) string {
	if lodMin == 0 && c.RootPath != "" {
		return c.RootPath
	}
	return filepath.Join(c.Dir, key)
}

// Get returns the cached document, byte-for-byte as written. A file that does
// not unmarshal back into a tree counts as a miss.
func (c *Cache) Get(key string, lodMin int) ([]byte, bool) {
	path := c.path(key, lodMin)

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Debugf("hierarchy cache read %s: %s", path, err)
		}
		return nil, false
	}

	var tree schema.HierarchyNode
	if err := json.Unmarshal(raw, &tree); err != nil {
		log.Debugf("hierarchy cache entry %s is corrupt: %s", path, err)
		return nil, false
	}

	return raw, true
}

// Put serializes the tree and writes it atomically, returning the bytes that
// future Gets will serve.
func (c *Cache) Put(key string, lodMin int, tree *schema.HierarchyNode) ([]byte, error) {
	raw, err := json.Marshal(tree)
	if err != nil {
		return nil, err
	}

	path := c.path(key, lodMin)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return raw, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return raw, err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return raw, err
	}
	if err := tmp.Close(); err != nil {
		return raw, err
	}

	return raw, os.Rename(tmp.Name(), path)
}
