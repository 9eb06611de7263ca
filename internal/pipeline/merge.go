package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sublate/backend/internal/subtitle"
)

// ResolveSubtitle loads the raw content behind a subtitle id
// ("embedded:N", "external:name", "generated:rel") for a media file.
func (s *Service) ResolveSubtitle(ctx context.Context, mediaRel, id string) ([]byte, error) {
	src, err := s.mediaFile(mediaRel)
	if err != nil {
		return nil, err
	}
	return s.loadSubtitle(ctx, src, id)
}

// OutputDir returns the subtitle-root-relative directory holding a media
// file's generated tracks.
func (s *Service) OutputDir(mediaRel string) string {
	return mediaHash(mediaRel)
}

// HasGeneratedTracks reports whether any run has produced tracks for the
// media file. The library browser flags those entries.
func (s *Service) HasGeneratedTracks(mediaRel string) bool {
	dir := filepath.Join(s.cfg.SubtitlePath, s.OutputDir(mediaRel))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() {
			return true
		}
	}
	return false
}

// MergeSubtitles stacks the secondary track's text above the primary's,
// cue by cue, and writes the result next to the media file's generated
// tracks. It returns the subtitle-root-relative output path and cue count.
func (s *Service) MergeSubtitles(ctx context.Context, mediaRel, primaryID, secondaryID, title string) (string, int, error) {
	primaryRaw, err := s.ResolveSubtitle(ctx, mediaRel, primaryID)
	if err != nil {
		return "", 0, fmt.Errorf("load primary: %w", err)
	}
	secondaryRaw, err := s.ResolveSubtitle(ctx, mediaRel, secondaryID)
	if err != nil {
		return "", 0, fmt.Errorf("load secondary: %w", err)
	}

	primary := subtitle.Parse(string(primaryRaw))
	if len(primary) == 0 {
		return "", 0, fmt.Errorf("no cues in %s", primaryID)
	}
	secondary := subtitle.Parse(string(secondaryRaw))
	if len(secondary) == 0 {
		return "", 0, fmt.Errorf("no cues in %s", secondaryID)
	}

	merged := subtitle.Merge(primary, secondary)

	base := safeTitle(title)
	if base == "" {
		base = safeTitle(strings.TrimSuffix(filepath.Base(mediaRel), filepath.Ext(mediaRel)))
	}
	if base == "" {
		base = "subtitles"
	}
	rel := filepath.Join(mediaHash(mediaRel), base+".merged.srt")
	if err := subtitle.WriteSRT(filepath.Join(s.cfg.SubtitlePath, rel), merged); err != nil {
		return "", 0, fmt.Errorf("write merged track: %w", err)
	}
	return rel, len(merged), nil
}
