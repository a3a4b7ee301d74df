// Package media wraps the external tools the video generator shells out to.
// Each tool is a capability interface so pipeline logic never touches
// os/exec directly and tests can swap in fakes.
package media

import (
	"context"
	"fmt"
	"time"
)

// Source is one resolved audio source candidate.
type Source struct {
	Title    string
	URL      string
	Channel  string
	Duration time.Duration
}

// Fetcher resolves and downloads source audio for a search query.
type Fetcher interface {
	// Search returns the top result for the query, or *ResolutionError when
	// nothing matches.
	Search(ctx context.Context, query string) (*Source, error)
	// Download fetches the audio of the given source URL into stem.mp3 and
	// returns the downloaded file path.
	Download(ctx context.Context, sourceURL, stem string) (string, error)
}

// Transcoder cuts clips and renders cover videos.
type Transcoder interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
	// ExtractClip writes the [start, start+duration) window of src to dst.
	ExtractClip(ctx context.Context, src, dst string, start, duration time.Duration) error
	// RenderCoverVideo composes a still cover image with a clip into a
	// 1080x1080 padded mp4 of the given duration.
	RenderCoverVideo(ctx context.Context, coverPath, audioPath, outPath string, duration time.Duration) error
}

// ResolutionError means no usable audio source exists for a track. It is
// fatal for the track only; the release continues.
type ResolutionError struct {
	Query string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve audio for %q: %v", e.Query, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// TranscodeError is a per-track tool failure. The caller retries once before
// marking the track permanently failed.
type TranscodeError struct {
	Path string
	Err  error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode of %q failed: %v", e.Path, e.Err)
}

func (e *TranscodeError) Unwrap() error {
	return e.Err
}
