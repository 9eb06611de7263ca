package storage

import (
	"io/fs"
	"path/filepath"
	"strings"
)

// Search walks the library for entries whose name contains query,
// case-insensitively, returning at most maxResults. Files that are
// neither media nor subtitles are not reported.
func Search(basePath, query string, maxResults int) ([]*FileEntry, error) {
	query = strings.ToLower(query)
	var results []*FileEntry

	err := filepath.WalkDir(basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, keep walking
		}
		if len(results) >= maxResults {
			return filepath.SkipAll
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.Contains(strings.ToLower(d.Name()), query) {
			return nil
		}

		rel, _ := filepath.Rel(basePath, path)
		if d.IsDir() {
			results = append(results, &FileEntry{Name: d.Name(), Path: rel, IsDir: true})
			return nil
		}
		kind := fileKind(d.Name())
		if kind == "" {
			return nil
		}
		fe := &FileEntry{Name: d.Name(), Path: rel, Kind: kind}
		if info, err := d.Info(); err == nil {
			fe.Size = info.Size()
		}
		results = append(results, fe)
		return nil
	})
	return results, err
}
