package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	appLog "confsched/internal/log"
)

// ErrNotAvailable marks a 404 from a source. Sub-conference schedules are
// routinely published late, so a 404 is an expected, non-fatal condition.
var ErrNotAvailable = errors.New("not yet available (404)")

// Source identifies one remote schedule document.
type Source struct {
	// Name is the declared source name, used for cache keys and logging.
	Name string
	// URL is the document endpoint.
	URL string
	// Token, if set, is sent as an Authorization header.
	Token string
}

// Result contains the outcome of fetching a single source.
type Result struct {
	Source    Source
	Body      []byte
	FromCache bool
}

// cacheEntry holds HTTP cache metadata for a single URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher retrieves schedule documents with a disk-backed HTTP cache
// (ETag / Last-Modified). In offline mode it serves cached bodies without
// touching the network at all, which keeps repeated local runs fast and
// reproducible.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	online   bool
}

// NewFetcher creates a Fetcher. cacheDir is the base directory for per-URL
// cache subdirectories; online controls whether the network is consulted.
func NewFetcher(cacheDir string, online bool) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/source-cache"
	}
	return &Fetcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		cacheDir: cacheDir,
		online:   online,
	}
}

// Fetch retrieves a single source, honoring the cache.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (Result, error) {
	if src.URL == "" {
		return Result{}, errors.New("source URL is empty")
	}

	cachePath, err := f.cachePathForURL(src.URL)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return Result{}, err
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	if !f.online {
		if len(cachedBody) > 0 {
			appLog.Debug("offline mode, using cached body", "source", src.Name, "url", redactURL(src.URL))
			return Result{Source: src, Body: cachedBody, FromCache: true}, nil
		}
		appLog.Info("offline mode but nothing cached, fetching", "source", src.Name, "url", redactURL(src.URL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return Result{}, err
	}
	if src.Token != "" {
		req.Header.Set("Authorization", "Token "+src.Token)
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	appLog.Info("fetching source", "source", src.Name, "url", redactURL(src.URL))

	resp, err := f.client.Do(req)
	if err != nil {
		// Network error; if we have a cached body, fall back to it.
		if len(cachedBody) > 0 {
			appLog.Error("fetch failed, using cached body", err, "source", src.Name, "url", redactURL(src.URL))
			return Result{Source: src, Body: cachedBody, FromCache: true}, nil
		}
		return Result{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return Result{}, readErr
		}

		newMeta := cacheEntry{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			UpdatedAt:    time.Now().UTC(),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("cache save failed", err, "source", src.Name, "url", redactURL(src.URL))
		}

		appLog.Debug("fetch success", "source", src.Name, "status", resp.StatusCode, "bytes", len(body))
		return Result{Source: src, Body: body, FromCache: false}, nil

	case http.StatusNotModified:
		if len(cachedBody) == 0 {
			return Result{}, errors.New("received 304 Not Modified but no cached body available")
		}
		appLog.Debug("not modified, using cache", "source", src.Name, "url", redactURL(src.URL))
		return Result{Source: src, Body: cachedBody, FromCache: true}, nil

	case http.StatusNotFound:
		return Result{}, fmt.Errorf("%s: %w", src.Name, ErrNotAvailable)

	default:
		if len(cachedBody) > 0 {
			appLog.Error("non-OK response, using cached body", errors.New(resp.Status),
				"source", src.Name, "url", redactURL(src.URL), "status", resp.StatusCode)
			return Result{Source: src, Body: cachedBody, FromCache: true}, nil
		}
		return Result{}, fmt.Errorf("%s: HTTP %s", src.Name, resp.Status)
	}
}

func (f *Fetcher) cachePathForURL(url string) (string, error) {
	if url == "" {
		return "", errors.New("empty url")
	}
	sum := sha256.Sum256([]byte(url))
	// Use first 16 hex chars as directory name.
	dir := hex.EncodeToString(sum[:8])
	return filepath.Join(f.cacheDir, dir), nil
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.dat"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	// Write body first so meta never points at a missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.dat"), body, 0o600); err != nil {
		return err
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// redactURL hides query strings and paths of source URLs in logs; pretalx
// token-bearing URLs must not leak into log files.
func redactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	i := -1
	for idx := 0; idx+2 < len(u); idx++ {
		if u[idx:idx+3] == "://" {
			i = idx + 3
			break
		}
	}
	if i == -1 {
		return "...(redacted)"
	}

	j := i
	for j < len(u) && u[j] != '/' {
		j++
	}
	return u[:j] + redactedSuffix
}
