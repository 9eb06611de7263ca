package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ExtractWAV decodes src's audio track into dst as 16 kHz mono s16 WAV, the
// format the silence detector and the speech engines consume.
func ExtractWAV(ctx context.Context, src, dst string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
		"-vn", "-sn", "-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dst,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg extract: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// CutWAV extracts [start, end) of src's audio as 16 kHz mono WAV bytes.
// ffmpeg needs a seekable output to finalize the RIFF header, so the clip
// goes through a temp file rather than a pipe.
func CutWAV(ctx context.Context, src string, start, end time.Duration) ([]byte, error) {
	if end <= start {
		return nil, fmt.Errorf("cut: empty range %v..%v", start, end)
	}

	tmp, err := os.CreateTemp("", "clip-*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp clip: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(end - start),
		"-i", src,
		"-vn", "-sn", "-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		tmpPath,
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ffmpeg cut %v..%v: %w: %s", start, end, err, strings.TrimSpace(string(output)))
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read clip: %w", err)
	}
	return data, nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// ExtractSubtitle demuxes embedded subtitle stream streamIndex of src as SRT.
// The SRT muxer streams, so the output goes through a pipe.
func ExtractSubtitle(ctx context.Context, src string, streamIndex int) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-i", src,
		"-map", fmt.Sprintf("0:%d", streamIndex),
		"-f", "srt",
		"pipe:1",
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg extract subtitle stream %d: %w", streamIndex, err)
	}
	return output, nil
}

// ConvertToSRT transcodes a subtitle file ffmpeg can read (ASS, SSA, VTT)
// into SRT.
func ConvertToSRT(ctx context.Context, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-i", path,
		"-f", "srt",
		"pipe:1",
	)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg convert %s: %w", filepath.Base(path), err)
	}
	return output, nil
}
