package assignment

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/colorfulnotion/fraudproof/fperrors"
	"github.com/colorfulnotion/fraudproof/log"
	"github.com/sethvargo/go-retry"
)

const defaultURLTemplate = "https://metadata.sqd-datasets.io/assignments/{network}/{id}.fb.1.gz"

type LoaderConfig struct {
	URLTemplate string
	Network     string
	Retries     uint64
	Backoff     time.Duration
	Timeout     time.Duration
}

func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		URLTemplate: defaultURLTemplate,
		Network:     "mainnet",
		Retries:     2,
		Backoff:     200 * time.Millisecond,
		Timeout:     30 * time.Second,
	}
}

// BlobCache holds inflated snapshot bytes across restarts.
// *storage.BlobStore is one.
type BlobCache interface {
	Get(key []byte) ([]byte, bool, error)
	Put(key, value []byte) error
}

// Loader fetches and decodes snapshots by assignment id. The template may
// name an http(s) URL or a local path.
type Loader struct {
	cfg    LoaderConfig
	client *http.Client
	cache  BlobCache
}

func NewLoader(cfg LoaderConfig) *Loader {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = defaultURLTemplate
	}
	return &Loader{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

// WithCache makes the loader consult c before downloading and store every
// snapshot that decodes.
func (l *Loader) WithCache(c BlobCache) *Loader {
	l.cache = c
	return l
}

// CacheKeyPrefix starts every key the loader writes to its BlobCache.
// Keys continue with "<network>/<id>".
const CacheKeyPrefix = "snapshot/"

func (l *Loader) cacheKey(id string) []byte {
	return []byte(CacheKeyPrefix + l.cfg.Network + "/" + id)
}

// Location expands the template for one assignment id.
func (l *Loader) Location(id string) string {
	r := strings.NewReplacer("{network}", l.cfg.Network, "{id}", id)
	return r.Replace(l.cfg.URLTemplate)
}

// Load fetches, decompresses and decodes the snapshot for id. Transport
// errors are retried; a snapshot that downloads but fails to decode is not.
func (l *Loader) Load(ctx context.Context, id string) (*Snapshot, error) {
	if snap, ok := l.cached(id); ok {
		return snap, nil
	}
	loc := l.Location(id)

	var raw []byte
	backoff := retry.WithMaxRetries(l.cfg.Retries, retry.NewExponential(l.backoff()))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		b, err := l.fetch(ctx, loc)
		if err != nil {
			log.Debug(log.AssignMonitoring, "snapshot fetch failed", "location", loc, "err", err)
			return retry.RetryableError(err)
		}
		raw = b
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", fperrors.ErrSnapshotFetch, loc, err)
	}

	plain, err := gunzip(raw, isRemote(loc))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", fperrors.ErrSnapshotBad, loc, err)
	}
	snap, err := Decode(plain)
	if err != nil {
		return nil, err
	}
	if l.cache != nil {
		if err := l.cache.Put(l.cacheKey(id), plain); err != nil {
			log.Warn(log.AssignMonitoring, "snapshot cache put", "id", id, "err", err)
		}
	}
	log.Debug(log.AssignMonitoring, "snapshot loaded", "id", id, "workers", len(snap.Workers), "datasets", len(snap.Datasets))
	return snap, nil
}

// cached misses on any cache error or on an entry that no longer decodes.
func (l *Loader) cached(id string) (*Snapshot, bool) {
	if l.cache == nil {
		return nil, false
	}
	plain, ok, err := l.cache.Get(l.cacheKey(id))
	if err != nil || !ok {
		return nil, false
	}
	snap, err := Decode(plain)
	if err != nil {
		log.Warn(log.AssignMonitoring, "cached snapshot unreadable", "id", id, "err", err)
		return nil, false
	}
	log.Debug(log.AssignMonitoring, "snapshot cache hit", "id", id)
	return snap, true
}

func (l *Loader) backoff() time.Duration {
	if l.cfg.Backoff <= 0 {
		return 100 * time.Millisecond
	}
	return l.cfg.Backoff
}

func isRemote(loc string) bool {
	return strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://")
}

func (l *Loader) fetch(ctx context.Context, loc string) ([]byte, error) {
	if !isRemote(loc) {
		return os.ReadFile(strings.TrimPrefix(loc, "file://"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// gunzip inflates b. Published snapshots are always gzip; an inflated
// payload is only accepted when strict is false (local files).
func gunzip(b []byte, strict bool) ([]byte, error) {
	if len(b) < 2 || b[0] != 0x1f || b[1] != 0x8b {
		if strict {
			return nil, errors.New("payload is not gzip")
		}
		return b, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}

// Compress gzips an encoded snapshot in the published form.
func Compress(b []byte) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, _ = zw.Write(b)
	_ = zw.Close()
	return buf.Bytes()
}
