package versions

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// archiveCacheName is the file name of the persisted archive index.
const archiveCacheName = "archived_versions.json"

// listingLink matches the anchor tags of a plain directory-listing page.
// Anything the expression does not match is silently skipped, so a malformed
// listing merely yields fewer entries.
var listingLink = regexp.MustCompile(`<a href="([^"]+)">([^<]+)</a>`)

// archivedServerURL returns the archived download URL for the version passed,
// or "" if the archive does not carry it. The index is built once by crawling
// the directory-listing tree and persisted under CacheDir.
func (s *Source) archivedServerURL(version string) (string, error) {
	if s.archived == nil {
		index, err := cachedJSON(s.log(), filepath.Join(s.CacheDir, archiveCacheName), s.crawlArchive)
		if err != nil {
			return "", err
		}
		s.archived = index
	}
	return s.archived[version], nil
}

// crawlArchive walks the directory-listing HTML tree rooted at ArchiveURL and
// collects every *.jar entry, keyed by file name with the extension stripped.
// Duplicate names are logged; the entry found last wins.
func (s *Source) crawlArchive() (map[string]string, error) {
	s.log().Info("getting a list of archived versions", "url", s.ArchiveURL)
	index := make(map[string]string)
	var walk func(url string) error
	walk = func(url string) error {
		b, err := s.get(url)
		if err != nil {
			return fmt.Errorf("fetch archive listing: %w", err)
		}
		for _, m := range listingLink.FindAllStringSubmatch(string(b), -1) {
			rel, name := m[1], m[2]
			if rel == "../" {
				continue
			}
			next := url + rel
			switch {
			case strings.HasSuffix(rel, "/"):
				if err := walk(next); err != nil {
					return err
				}
			case strings.HasSuffix(name, ".jar"):
				key := strings.TrimSuffix(name, ".jar")
				if prev, ok := index[key]; ok {
					s.log().Warn("duplicate archived version name", "name", key, "previous", prev, "kept", next)
				}
				index[key] = next
			}
		}
		return nil
	}
	if err := walk(s.ArchiveURL); err != nil {
		return nil, err
	}
	return index, nil
}
