// Package cache keeps provider catalogs on disk so listings survive an
// unreachable vendor.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/ports"
)

const (
	defaultMaxEntries = 50
	defaultTTL        = 7 * 24 * time.Hour
)

// FileCatalogCache stores one JSON snapshot per provider.
type FileCatalogCache struct {
	dir        string
	mu         sync.Mutex
	maxEntries int
	ttl        time.Duration
	now        func() time.Time
}

// NewFileCatalogCache returns a cache rooted at dir.
func NewFileCatalogCache(dir string) *FileCatalogCache {
	return &FileCatalogCache{
		dir:        dir,
		maxEntries: defaultMaxEntries,
		ttl:        defaultTTL,
		now:        time.Now,
	}
}

// Get returns the snapshot for a provider. Expired snapshots are removed and reported missing.
func (c *FileCatalogCache) Get(providerID string) (domain.CatalogSnapshot, bool, error) {
	if providerID == "" {
		return domain.CatalogSnapshot{}, false, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.pathFor(providerID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.CatalogSnapshot{}, false, nil
		}
		return domain.CatalogSnapshot{}, false, fmt.Errorf("read catalog cache: %w", err)
	}
	var snapshot domain.CatalogSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		_ = os.Remove(path)
		return domain.CatalogSnapshot{}, false, fmt.Errorf("decode catalog cache %s: %w", providerID, err)
	}
	if c.ttl > 0 && c.now().Sub(snapshot.FetchedAt) > c.ttl {
		_ = os.Remove(path)
		return domain.CatalogSnapshot{}, false, nil
	}
	return snapshot, true, nil
}

// Set stores a snapshot, evicting the oldest files beyond the entry limit.
func (c *FileCatalogCache) Set(snapshot domain.CatalogSnapshot) error {
	if snapshot.ProviderID == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, domain.DirectoryPermissions); err != nil {
		return fmt.Errorf("create catalog cache dir: %w", err)
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode catalog cache: %w", err)
	}
	if err := os.WriteFile(c.pathFor(snapshot.ProviderID), data, domain.SecureFilePermissions); err != nil {
		return fmt.Errorf("write catalog cache: %w", err)
	}
	return c.evictIfNeeded()
}

// Dir exposes the cache directory path.
func (c *FileCatalogCache) Dir() string {
	return c.dir
}

// Clear removes all cached catalogs.
func (c *FileCatalogCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return os.RemoveAll(c.dir)
}

// pathFor maps a provider id to a file name; ids may contain path separators.
func (c *FileCatalogCache) pathFor(providerID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(providerID)
	return filepath.Join(c.dir, safe+".json")
}

func (c *FileCatalogCache) evictIfNeeded() error {
	if c.maxEntries <= 0 {
		return nil
	}
	files, err := os.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(files) <= c.maxEntries {
		return nil
	}
	type fileInfo struct {
		name string
		mod  time.Time
	}
	var infos []fileInfo
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{name: f.Name(), mod: info.ModTime()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].mod.Before(infos[j].mod) })
	for len(infos) > c.maxEntries {
		_ = os.Remove(filepath.Join(c.dir, infos[0].name))
		infos = infos[1:]
	}
	return nil
}

var _ ports.CatalogCache = (*FileCatalogCache)(nil)
