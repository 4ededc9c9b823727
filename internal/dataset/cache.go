package dataset

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-gota/gota/dataframe"

	"marketml/internal/blob"
	"marketml/internal/store"
)

// Cache stores dataset artifacts under a local data root and mirrors them to
// a remote blob store. Remote failures are logged and never returned; local
// read and write failures propagate.
//
// Saves without an explicit version are tagged with the current UTC second,
// so two such saves within the same second overwrite each other. Callers
// that need finer uniqueness must pass explicit versions.
type Cache struct {
	dataDir string
	remote  blob.Store
	prefix  string
	log     *slog.Logger
	now     func() time.Time
	metrics *cacheMetrics
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the clock used to generate version tags.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a Cache rooted at dataDir. A nil remote disables
// mirroring; a nil logger uses slog.Default.
func NewCache(dataDir string, remote blob.Store, prefix string, log *slog.Logger, opts ...Option) *Cache {
	if remote == nil {
		remote = blob.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	c := &Cache{
		dataDir: dataDir,
		remote:  remote,
		prefix:  prefix,
		log:     log.With("component", "dataset"),
		now:     time.Now,
		metrics: newCacheMetrics(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DataDir returns the local data root.
func (c *Cache) DataDir() string { return c.dataDir }

// PathFor returns the local path of d.
func (c *Cache) PathFor(d Descriptor) (string, error) {
	return PathFor(c.dataDir, d)
}

// KeyFor returns the remote key of d.
func (c *Cache) KeyFor(d Descriptor) (string, error) {
	return KeyFor(c.prefix, d)
}

// Exists reports whether d is available locally or in the mirror. Descriptor
// errors and local stat failures other than not-exist are returned; remote
// errors count as absent.
func (c *Cache) Exists(ctx context.Context, d Descriptor) (bool, error) {
	path, err := c.PathFor(d)
	if err != nil {
		return false, err
	}
	key, err := c.KeyFor(d)
	if err != nil {
		return false, err
	}
	local, err := statLocal(path)
	if err != nil || local {
		return local, err
	}
	ok, err := c.remote.Exists(ctx, key)
	if err != nil {
		c.log.Warn("remote exists check failed", "key", key, "error", err)
		return false, nil
	}
	return ok, nil
}

// statLocal reports whether path exists. Only a not-exist error means absent.
func statLocal(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	}
	return false, err
}

// Load returns the artifact for d. The local file is preferred; otherwise the
// mirror is consulted and a hit is copied locally. A latest request with no
// alias falls back to the newest concrete local version. found is false with
// a nil error when nothing matches.
func (c *Cache) Load(ctx context.Context, d Descriptor) (dataframe.DataFrame, bool, error) {
	path, err := c.PathFor(d)
	if err != nil {
		return dataframe.DataFrame{}, false, err
	}
	key, err := c.KeyFor(d)
	if err != nil {
		return dataframe.DataFrame{}, false, err
	}

	local, err := statLocal(path)
	if err != nil {
		return dataframe.DataFrame{}, false, err
	}
	if local {
		df, err := store.ReadFrameFile(path)
		if err != nil {
			return dataframe.DataFrame{}, false, err
		}
		c.metrics.load(ctx, d, tierLocal)
		c.log.Debug("dataset loaded", "path", path)
		return df, true, nil
	}

	if df, ok := c.loadRemote(ctx, key, path); ok {
		c.metrics.load(ctx, d, tierRemote)
		return df, true, nil
	}

	if d.readVersion() == Latest {
		versions, err := c.ListVersions(d, false)
		if err != nil {
			return dataframe.DataFrame{}, false, err
		}
		if len(versions) > 0 {
			newest := versions[len(versions)-1]
			c.log.Info("latest alias missing, using newest version", "dataset", d.String(), "version", newest)
			c.metrics.load(ctx, d, tierFallback)
			return c.Load(ctx, d.WithVersion(newest))
		}
	}

	c.metrics.load(ctx, d, tierMiss)
	return dataframe.DataFrame{}, false, nil
}

func (c *Cache) loadRemote(ctx context.Context, key, path string) (dataframe.DataFrame, bool) {
	data, err := c.remote.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			c.metrics.mirrorError(ctx, "get")
			c.log.Warn("remote fetch failed", "key", key, "error", err)
		}
		return dataframe.DataFrame{}, false
	}

	df, err := store.DecodeFrame(data)
	if err != nil {
		c.log.Warn("remote artifact unreadable", "key", key, "error", err)
		return dataframe.DataFrame{}, false
	}

	if err := store.WriteFile(path, data); err != nil {
		c.log.Warn("failed to persist remote artifact locally", "path", path, "error", err)
	}
	c.log.Info("dataset loaded from remote", "key", key)
	return df, true
}

// Save writes df under d and, unless d is the latest alias itself, under the
// latest alias too. It returns the path of the versioned file.
func (c *Cache) Save(ctx context.Context, d Descriptor, df dataframe.DataFrame) (string, error) {
	for _, bucket := range buckets {
		if err := os.MkdirAll(filepath.Join(c.dataDir, bucket), 0o755); err != nil {
			return "", fmt.Errorf("creating bucket root: %w", err)
		}
	}

	if d.Version == "" {
		d.Version = c.now().UTC().Format(VersionLayout)
	}

	data, err := store.EncodeFrame(df)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", d, err)
	}

	path, err := c.write(ctx, d, data)
	if err != nil {
		return "", err
	}

	if d.Version != Latest {
		if _, err := c.write(ctx, d.WithVersion(Latest), data); err != nil {
			return "", err
		}
	}

	c.log.Info("dataset saved", "path", path, "rows", df.Nrow())
	return path, nil
}

func (c *Cache) write(ctx context.Context, d Descriptor, data []byte) (string, error) {
	path, err := c.PathFor(d)
	if err != nil {
		return "", err
	}
	key, err := c.KeyFor(d)
	if err != nil {
		return "", err
	}

	if err := store.WriteFile(path, data); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	c.metrics.save(ctx, d)

	if err := c.remote.Put(ctx, key, data); err != nil {
		c.metrics.mirrorError(ctx, "put")
		c.log.Warn("remote mirror failed", "key", key, "error", err)
	}
	return path, nil
}

// ListVersions returns the sorted version tags stored locally for the
// descriptor prefix of d. The latest alias is excluded unless includeLatest
// is set. Versions that exist only in the mirror are not listed.
func (c *Cache) ListVersions(d Descriptor, includeLatest bool) ([]string, error) {
	path, err := c.PathFor(d.WithVersion(Latest))
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var versions []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		v := strings.TrimSuffix(e.Name(), fileExt)
		if v == Latest && !includeLatest {
			continue
		}
		versions = append(versions, v)
	}
	sort.Strings(versions)
	return versions, nil
}

// LatestVersion returns the newest concrete version stored locally for d.
func (c *Cache) LatestVersion(d Descriptor) (string, bool, error) {
	versions, err := c.ListVersions(d, false)
	if err != nil || len(versions) == 0 {
		return "", false, err
	}
	return versions[len(versions)-1], true, nil
}
