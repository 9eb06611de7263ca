package storage

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type FileEntry struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
	Kind  string `json:"kind,omitempty"` // video, audio, subtitle
	Size  int64  `json:"size,omitempty"`
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mkv": true, ".avi": true, ".mov": true,
	".wmv": true, ".flv": true, ".webm": true, ".m4v": true,
	".ts": true, ".mpg": true, ".mpeg": true,
}

var audioExtensions = map[string]bool{
	".mp3": true, ".m4a": true, ".flac": true, ".wav": true,
	".aac": true, ".opus": true, ".ogg": true,
}

var subtitleExtensions = map[string]bool{
	".srt": true, ".vtt": true, ".ass": true, ".ssa": true, ".sub": true,
}

func IsVideoFile(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

func IsAudioFile(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

// IsMediaFile reports whether the file can feed the pipeline: anything
// ffmpeg can pull an audio track out of.
func IsMediaFile(name string) bool {
	return IsVideoFile(name) || IsAudioFile(name)
}

func IsSubtitleFile(name string) bool {
	return subtitleExtensions[strings.ToLower(filepath.Ext(name))]
}

func fileKind(name string) string {
	switch {
	case IsVideoFile(name):
		return "video"
	case IsAudioFile(name):
		return "audio"
	case IsSubtitleFile(name):
		return "subtitle"
	}
	return ""
}

// resolve joins rel under base and rejects paths that escape it.
func resolve(base, rel string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	full := filepath.Join(absBase, rel)
	if full != absBase && !strings.HasPrefix(full, absBase+string(filepath.Separator)) {
		return "", os.ErrPermission
	}
	return full, nil
}

// ListDirectory returns one level of the media library: directories
// first, then files, both name-sorted. Hidden files and files that are
// neither media nor subtitles are skipped.
func ListDirectory(basePath, relativePath string) ([]*FileEntry, error) {
	fullPath, err := resolve(basePath, relativePath)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, err
	}

	var result []*FileEntry
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if entry.IsDir() {
			result = append(result, &FileEntry{
				Name:  entry.Name(),
				Path:  filepath.Join(relativePath, entry.Name()),
				IsDir: true,
			})
			continue
		}
		kind := fileKind(entry.Name())
		if kind == "" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		result = append(result, &FileEntry{
			Name: entry.Name(),
			Path: filepath.Join(relativePath, entry.Name()),
			Kind: kind,
			Size: info.Size(),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].IsDir != result[j].IsDir {
			return result[i].IsDir
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}
