// Package ics acquires calendar feeds: fetch with HTTP caching, VEVENT
// parsing, recurrence expansion, and conversion into provider records for
// the normalizer.
package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"taskcal/internal/log"
)

// Source is one ICS subscription. Name doubles as the category key the
// layout palette resolves colors with.
type Source struct {
	ID   string
	Name string
	URL  string
}

// FetchResult is the body obtained for one source, fresh or from cache.
type FetchResult struct {
	Source    Source
	Body      []byte
	FromCache bool
}

// cacheMeta is the conditional-request state stored next to a cached body.
type cacheMeta struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const maxFeedBytes = 16 << 20

// Fetcher downloads ICS feeds with ETag/Last-Modified revalidation and a
// per-URL disk cache, so a flaky network never blanks the panel.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	log      *logrus.Entry
}

// NewFetcher returns a fetcher caching under cacheDir.
func NewFetcher(cacheDir string, logger *logrus.Entry) *Fetcher {
	if cacheDir == "" {
		cacheDir = "./var/ics-cache"
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
		log:      logger,
	}
}

// FetchAll fetches every source. Sources that fail without a cached body
// are reported in the error map by source ID; the result slice only holds
// sources that produced a body.
func (f *Fetcher) FetchAll(ctx context.Context, sources []Source) ([]FetchResult, map[string]error) {
	results := make([]FetchResult, 0, len(sources))
	errs := make(map[string]error)

	for _, src := range sources {
		res, err := f.FetchOne(ctx, src)
		if err != nil {
			errs[src.ID] = err
			f.log.WithError(err).WithFields(logrus.Fields{"id": src.ID, "url": RedactURL(src.URL)}).
				Error("ics fetch failed")
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// FetchOne fetches one source, sending If-None-Match/If-Modified-Since from
// the cache and falling back to the cached body on 304, network errors, and
// non-OK statuses.
func (f *Fetcher) FetchOne(ctx context.Context, src Source) (FetchResult, error) {
	if src.URL == "" {
		return FetchResult{}, errors.New("ics: source URL is empty")
	}

	dir := f.cacheDirFor(src.URL)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return FetchResult{}, err
	}
	meta, _ := readMeta(dir)
	cached, _ := os.ReadFile(filepath.Join(dir, "body.ics"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return FetchResult{}, err
	}
	if meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta.LastModified != "" {
		req.Header.Set("If-Modified-Since", meta.LastModified)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			f.log.WithError(err).WithField("id", src.ID).Warn("ics fetch failed, serving cached body")
			return FetchResult{Source: src, Body: cached, FromCache: true}, nil
		}
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
		if err != nil {
			return FetchResult{}, err
		}
		f.saveCache(dir, cacheMeta{
			URL:          src.URL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}, body, src)
		f.log.WithFields(logrus.Fields{"id": src.ID, "bytes": len(body)}).Debug("ics fetched")
		return FetchResult{Source: src, Body: body}, nil

	case http.StatusNotModified:
		if len(cached) == 0 {
			return FetchResult{}, errors.New("ics: 304 with no cached body")
		}
		f.log.WithField("id", src.ID).Debug("ics not modified, serving cached body")
		return FetchResult{Source: src, Body: cached, FromCache: true}, nil

	default:
		if len(cached) > 0 {
			f.log.WithFields(logrus.Fields{"id": src.ID, "status": resp.StatusCode}).
				Warn("ics fetch non-OK, serving cached body")
			return FetchResult{Source: src, Body: cached, FromCache: true}, nil
		}
		return FetchResult{}, errors.New("ics: " + resp.Status)
	}
}

func (f *Fetcher) cacheDirFor(u string) string {
	sum := sha256.Sum256([]byte(u))
	return filepath.Join(f.cacheDir, hex.EncodeToString(sum[:8]))
}

func readMeta(dir string) (cacheMeta, error) {
	var meta cacheMeta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheMeta{}, err
	}
	return meta, nil
}

// saveCache writes body before meta so the metadata never points at a body
// that is not there. Failures only cost the next revalidation.
func (f *Fetcher) saveCache(dir string, meta cacheMeta, body []byte, src Source) {
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		f.log.WithError(err).WithField("id", src.ID).Warn("ics cache body write failed")
		return
	}
	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600); err != nil {
		f.log.WithError(err).WithField("id", src.ID).Warn("ics cache meta write failed")
	}
}

// RedactURL strips credentials, path, and query from a feed URL so logs
// never leak private tokens.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "invalid-url"
	}
	return u.Scheme + "://" + u.Host + "/…"
}
