// Package versions resolves a Minecraft version identifier to a locally
// cached server jar, consulting the official version manifest first and a
// community archive of pre-manifest servers as a fallback.
package versions

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Resolve when a version identifier is known to
// neither the official manifest nor the archive index.
var ErrNotFound = errors.New("no server jar found for version")

// Source locates and caches server jars. All remote lookups are memoized for
// the lifetime of the Source, and the manifest and archive index are
// additionally persisted as JSON files under CacheDir, which are treated as
// authoritative once present.
type Source struct {
	// Log is used for download progress and duplicate-entry diagnostics. If
	// nil, Log is set to slog.Default().
	Log *slog.Logger
	// Client is the HTTP client used for all remote lookups. Defaults to
	// http.DefaultClient.
	Client *http.Client
	// CacheDir is the directory holding the persisted JSON caches.
	CacheDir string
	// VersionsDir is the directory server jars are downloaded into.
	VersionsDir string
	// ManifestURL is the official version manifest endpoint.
	ManifestURL string
	// ArchiveURL is the base URL of the archived-server directory listing.
	ArchiveURL string

	metaURLs   map[string]string
	serverURLs map[string]string
	archived   map[string]string
}

// Resolve returns the path of a locally cached server jar for the version
// passed, downloading it first if it is not cached yet. If no download URL
// can be found through either the official manifest or the archive index, an
// error wrapping ErrNotFound is returned.
func (s *Source) Resolve(version string) (string, error) {
	path := filepath.Join(s.VersionsDir, version+".jar")
	if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
		return path, nil
	}

	url, err := s.officialServerURL(version)
	if err != nil {
		return "", err
	}
	if url == "" {
		if url, err = s.archivedServerURL(version); err != nil {
			return "", err
		}
	}
	if url == "" {
		return "", fmt.Errorf("%w: %v", ErrNotFound, version)
	}

	s.log().Info("downloading server jar", "version", version, "url", url)
	if err := s.download(url, path); err != nil {
		return "", fmt.Errorf("download server jar: %w", err)
	}
	return path, nil
}

// download streams the file at url to dest. The body is written to a uniquely
// named temporary file first and moved into place once complete, so an
// interrupted download never leaves a half-written jar in the cache.
func (s *Source) download(url, dest string) error {
	resp, err := s.client().Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %v for %v", resp.Status, url)
	}

	tmp := dest + "." + uuid.New().String() + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// get performs a GET request and returns the full response body.
func (s *Source) get(url string) ([]byte, error) {
	resp, err := s.client().Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %v for %v", resp.Status, url)
	}
	return io.ReadAll(resp.Body)
}

func (s *Source) client() *http.Client {
	if s.Client == nil {
		return http.DefaultClient
	}
	return s.Client
}

func (s *Source) log() *slog.Logger {
	if s.Log == nil {
		return slog.Default()
	}
	return s.Log
}

// cachedJSON reads the JSON cache file at path into a value of type T. When
// the file is absent or unreadable, fetch is invoked and its result persisted
// before being returned. Cache files are authoritative once present: no
// freshness check is performed.
func cachedJSON[T any](log *slog.Logger, path string, fetch func() (T, error)) (T, error) {
	var v T
	if b, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
		log.Warn("ignoring corrupt cache file", "path", path)
	}
	v, err := fetch()
	if err != nil {
		return v, err
	}
	b, err := json.Marshal(v)
	if err != nil {
		return v, err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return v, fmt.Errorf("write cache file: %w", err)
	}
	return v, nil
}
