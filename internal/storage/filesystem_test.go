package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func testLibrary(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Show", "Episode 01.mkv"))
	writeFile(t, filepath.Join(root, "Show", "Episode 01.srt"))
	writeFile(t, filepath.Join(root, "Show", "cover.jpg"))
	writeFile(t, filepath.Join(root, "Show", ".hidden.mkv"))
	writeFile(t, filepath.Join(root, "podcast.mp3"))
	return root
}

func TestListDirectory(t *testing.T) {
	root := testLibrary(t)

	entries, err := ListDirectory(root, "")
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want dir + mp3", len(entries))
	}
	if !entries[0].IsDir || entries[0].Name != "Show" {
		t.Errorf("directories must sort first, got %+v", entries[0])
	}
	if entries[1].Kind != "audio" || entries[1].Name != "podcast.mp3" {
		t.Errorf("entry = %+v", entries[1])
	}

	entries, err = ListDirectory(root, "Show")
	if err != nil {
		t.Fatalf("ListDirectory(Show): %v", err)
	}
	// cover.jpg and the hidden file are filtered out.
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want mkv + srt", len(entries))
	}
	if entries[0].Kind != "video" || entries[1].Kind != "subtitle" {
		t.Errorf("kinds = %q, %q", entries[0].Kind, entries[1].Kind)
	}
	if entries[0].Path != filepath.Join("Show", "Episode 01.mkv") {
		t.Errorf("path = %q", entries[0].Path)
	}
}

func TestListDirectoryRejectsEscape(t *testing.T) {
	root := testLibrary(t)
	for _, rel := range []string{"..", "../..", "Show/../../etc"} {
		if _, err := ListDirectory(root, rel); err == nil {
			t.Errorf("ListDirectory(%q) must fail", rel)
		}
	}
}

func TestSearch(t *testing.T) {
	root := testLibrary(t)

	results, err := Search(root, "episode", 50)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want mkv + srt", len(results))
	}

	// Matching directories are reported; junk files are not.
	results, err = Search(root, "show", 50)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || !results[0].IsDir {
		t.Fatalf("results = %+v, want the Show directory", results)
	}
	if results, _ := Search(root, "cover", 50); len(results) != 0 {
		t.Errorf("junk file surfaced in search: %+v", results)
	}

	if results, _ := Search(root, "e", 1); len(results) != 1 {
		t.Errorf("maxResults not honored: %d", len(results))
	}
}

func TestFileKinds(t *testing.T) {
	cases := []struct {
		name string
		kind string
	}{
		{"a.MKV", "video"},
		{"b.flac", "audio"},
		{"c.ass", "subtitle"},
		{"d.nfo", ""},
	}
	for _, c := range cases {
		if got := fileKind(c.name); got != c.kind {
			t.Errorf("fileKind(%q) = %q, want %q", c.name, got, c.kind)
		}
	}
	if !IsMediaFile("x.webm") || IsMediaFile("x.srt") {
		t.Error("IsMediaFile misclassifies")
	}
}
