package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/crateclip/errutil"
)

// YTDLP resolves audio through the yt-dlp binary.
type YTDLP struct {
	bin string
}

func NewYTDLP() *YTDLP {
	return &YTDLP{bin: "yt-dlp"}
}

func (y *YTDLP) Search(ctx context.Context, query string) (*Source, error) {
	args := []string{
		"-J",
		"ytsearch1:" + query,
		"--no-warnings",
		"--no-playlist",
		"--skip-download",
	}
	cmd := exec.CommandContext(ctx, y.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); nil != err {
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		return nil, &ResolutionError{Query: query, Err: fmt.Errorf("search command failed: %v: %s", err, stderr.String())}
	}

	entry := gjson.GetBytes(stdout.Bytes(), "entries.0")
	if !entry.Exists() {
		return nil, &ResolutionError{Query: query, Err: errors.New("no search results")}
	}

	sourceURL := entry.Get("webpage_url").String()
	if sourceURL == "" {
		sourceURL = entry.Get("url").String()
	}
	if sourceURL == "" {
		return nil, &ResolutionError{Query: query, Err: errors.New("search result has no URL")}
	}

	channel := entry.Get("channel").String()
	if channel == "" {
		channel = entry.Get("uploader").String()
	}

	return &Source{
		Title:    entry.Get("title").String(),
		URL:      sourceURL,
		Channel:  channel,
		Duration: time.Duration(entry.Get("duration").Float() * float64(time.Second)),
	}, nil
}

func (y *YTDLP) Download(ctx context.Context, sourceURL, stem string) (string, error) {
	args := []string{
		sourceURL,
		"-x", "--audio-format", "mp3",
		"-o", stem + ".%(ext)s",
		"--no-playlist",
		"--no-warnings",
		"--quiet",
	}
	cmd := exec.CommandContext(ctx, y.bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); nil != err {
		if errutil.IsContext(ctx) {
			return "", ctx.Err()
		}
		return "", &ResolutionError{Query: sourceURL, Err: fmt.Errorf("download command failed: %v: %s", err, stderr.String())}
	}

	mp3Path := stem + ".mp3"
	if _, err := os.Stat(mp3Path); nil == err {
		return mp3Path, nil
	}

	downloaded, err := downloadedAudio(stem)
	if nil != err {
		return "", err
	}
	if downloaded == "" {
		return "", &ResolutionError{Query: sourceURL, Err: errors.New("download produced no file")}
	}
	return downloaded, nil
}

// downloadedAudio finds the file yt-dlp left behind when it kept the original
// container extension. A sanitized track title may still carry glob
// metacharacters like brackets, so the lookup is a plain prefix match over
// the directory listing.
func downloadedAudio(stem string) (string, error) {
	dirPath := filepath.Dir(stem)
	entries, err := os.ReadDir(dirPath)
	if nil != err {
		flawP := flaw.P{"stem": stem, "err_debug_tree": errutil.Tree(err).FlawP()}
		return "", flaw.From(fmt.Errorf("failed to list download directory: %v", err)).Append(flawP)
	}

	prefix := filepath.Base(stem) + "."
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), prefix) {
			return filepath.Join(dirPath, entry.Name()), nil
		}
	}
	return "", nil
}
