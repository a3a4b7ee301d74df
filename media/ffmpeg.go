package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/crateclip/errutil"
)

// FFmpeg cuts clips and renders cover videos through the ffmpeg and ffprobe
// binaries.
type FFmpeg struct {
	bin      string
	probeBin string
}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{bin: "ffmpeg", probeBin: "ffprobe"}
}

func (f *FFmpeg) Duration(ctx context.Context, path string) (time.Duration, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	cmd := exec.CommandContext(ctx, f.probeBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); nil != err {
		if errutil.IsContext(ctx) {
			return 0, ctx.Err()
		}
		return 0, &TranscodeError{Path: path, Err: fmt.Errorf("probe command failed: %v: %s", err, stderr.String())}
	}

	secs, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if nil != err {
		flawP := flaw.P{"path": path, "probe_output": stdout.String(), "err_debug_tree": errutil.Tree(err).FlawP()}
		return 0, flaw.From(fmt.Errorf("failed to parse probed duration: %v", err)).Append(flawP)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func (f *FFmpeg) ExtractClip(ctx context.Context, src, dst string, start, duration time.Duration) error {
	args := []string{
		"-y",
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
		"-i", src,
		"-acodec", "libmp3lame",
		dst,
	}
	cmd := exec.CommandContext(ctx, f.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); nil != err {
		if errutil.IsContext(ctx) {
			return ctx.Err()
		}
		return &TranscodeError{Path: src, Err: fmt.Errorf("clip extraction failed: %v: %s", err, stderr.String())}
	}
	return nil
}

func (f *FFmpeg) RenderCoverVideo(ctx context.Context, coverPath, audioPath, outPath string, duration time.Duration) error {
	args := []string{
		"-y",
		"-loop", "1",
		"-i", coverPath,
		"-i", audioPath,
		"-t", formatSeconds(duration),
		"-r", "24",
		"-c:v", "libx264",
		"-preset", "medium",
		"-tune", "stillimage",
		"-c:a", "aac",
		"-pix_fmt", "yuv420p",
		"-vf", "scale=-2:1080,pad=1080:1080:(ow-iw)/2:(oh-ih)/2:black",
		"-shortest",
		// Callers may hand a scratch output name, so the container format
		// cannot be left to extension sniffing.
		"-f", "mp4",
		outPath,
	}
	cmd := exec.CommandContext(ctx, f.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); nil != err {
		if errutil.IsContext(ctx) {
			return ctx.Err()
		}
		return &TranscodeError{Path: outPath, Err: fmt.Errorf("cover video render failed: %v: %s", err, stderr.String())}
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
