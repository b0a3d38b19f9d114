package versions

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// manifestCacheName is the file name of the persisted official manifest.
const manifestCacheName = "version_manifest_v2.json"

// manifestSchema is the shape the official manifest must satisfy before it is
// trusted and persisted. Upstream occasionally serves error pages with a 200
// status; validating here keeps those out of the cache.
var manifestSchema = jsonschema.MustCompileString("version_manifest_v2.schema.json", `{
	"type": "object",
	"required": ["versions"],
	"properties": {
		"versions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "url"],
				"properties": {
					"id": {"type": "string"},
					"url": {"type": "string"}
				}
			}
		}
	}
}`)

type manifestFile struct {
	Versions []manifestVersion `json:"versions"`
}

type manifestVersion struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type versionMeta struct {
	Downloads map[string]struct {
		URL string `json:"url"`
	} `json:"downloads"`
}

// metadataURLs returns the id → per-version metadata URL map built from the
// official manifest, fetching and caching the manifest on first use.
func (s *Source) metadataURLs() (map[string]string, error) {
	if s.metaURLs != nil {
		return s.metaURLs, nil
	}
	manifest, err := cachedJSON(s.log(), filepath.Join(s.CacheDir, manifestCacheName), s.fetchManifest)
	if err != nil {
		return nil, err
	}
	urls := make(map[string]string, len(manifest.Versions))
	for _, v := range manifest.Versions {
		if prev, ok := urls[v.ID]; ok {
			s.log().Warn("duplicate version id in manifest", "id", v.ID, "previous", prev, "kept", v.URL)
		}
		urls[v.ID] = v.URL
	}
	s.metaURLs = urls
	return urls, nil
}

// fetchManifest downloads and validates the official version manifest.
func (s *Source) fetchManifest() (manifestFile, error) {
	s.log().Info("getting official version manifest", "url", s.ManifestURL)
	var manifest manifestFile
	b, err := s.get(s.ManifestURL)
	if err != nil {
		return manifest, fmt.Errorf("fetch version manifest: %w", err)
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return manifest, fmt.Errorf("decode version manifest: %w", err)
	}
	if err := manifestSchema.Validate(doc); err != nil {
		return manifest, fmt.Errorf("version manifest has unexpected shape: %w", err)
	}
	if err := json.Unmarshal(b, &manifest); err != nil {
		return manifest, fmt.Errorf("decode version manifest: %w", err)
	}
	return manifest, nil
}

// officialServerURL returns the server download URL for the version passed,
// or "" if the official manifest does not offer a server jar for it. Results,
// including negative ones, are memoized for the process lifetime.
func (s *Source) officialServerURL(version string) (string, error) {
	if url, ok := s.serverURLs[version]; ok {
		return url, nil
	}
	metaURLs, err := s.metadataURLs()
	if err != nil {
		return "", err
	}
	metaURL, ok := metaURLs[version]
	if !ok {
		s.memoServerURL(version, "")
		return "", nil
	}

	s.log().Info("getting version metadata", "version", version)
	b, err := s.get(metaURL)
	if err != nil {
		return "", fmt.Errorf("fetch version metadata: %w", err)
	}
	var meta versionMeta
	if err := json.Unmarshal(b, &meta); err != nil {
		return "", fmt.Errorf("decode version metadata: %w", err)
	}
	url := meta.Downloads["server"].URL
	s.memoServerURL(version, url)
	return url, nil
}

func (s *Source) memoServerURL(version, url string) {
	if s.serverURLs == nil {
		s.serverURLs = make(map[string]string)
	}
	s.serverURLs[version] = url
}
