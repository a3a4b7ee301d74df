// Package generate drives the first pipeline: one Discogs release in, a
// folder of per-track promo clips plus the metadata text file out. Tracks
// are processed strictly one after another and every failure is confined to
// its track so a run makes maximum forward progress.
package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/crateclip/cache"
	"github.com/xeptore/crateclip/config"
	"github.com/xeptore/crateclip/discogs"
	"github.com/xeptore/crateclip/errutil"
	"github.com/xeptore/crateclip/media"
	"github.com/xeptore/crateclip/ratelimit"
	"github.com/xeptore/crateclip/relfs"
	"github.com/xeptore/crateclip/txt"
)

var ErrNoCover = errors.New("release has no usable cover image")

type Generator struct {
	cfg        *config.Config
	client     *discogs.Client
	fetcher    media.Fetcher
	transcoder media.Transcoder
	cache      *cache.Cache
	userAgent  string
	logger     zerolog.Logger
}

func New(
	cfg *config.Config,
	client *discogs.Client,
	fetcher media.Fetcher,
	transcoder media.Transcoder,
	c *cache.Cache,
	userAgent string,
	logger zerolog.Logger,
) *Generator {
	return &Generator{
		cfg:        cfg,
		client:     client,
		fetcher:    fetcher,
		transcoder: transcoder,
		cache:      c,
		userAgent:  userAgent,
		logger:     logger,
	}
}

type TrackStatus string

const (
	TrackStatusRendered TrackStatus = "rendered"
	TrackStatusExists   TrackStatus = "exists"
	TrackStatusSkipped  TrackStatus = "skipped"
	TrackStatusFailed   TrackStatus = "failed"
)

type TrackResult struct {
	Position  string
	Title     string
	Status    TrackStatus
	VideoPath string
	Err       error
}

type Summary struct {
	Release *discogs.Release
	Dir     relfs.ReleaseDir
	Tracks  []TrackResult
}

func (s *Summary) Rendered() int {
	n := 0
	for _, t := range s.Tracks {
		if t.Status == TrackStatusRendered {
			n++
		}
	}
	return n
}

func (s *Summary) Failed() int {
	n := 0
	for _, t := range s.Tracks {
		if t.Status == TrackStatusFailed {
			n++
		}
	}
	return n
}

// Run executes the whole pipeline for one release link: fetch metadata,
// write the text file, download cover art, then render one clip per track.
func (g *Generator) Run(ctx context.Context, link string) (*Summary, error) {
	kind, id, err := discogs.ParseLink(link)
	if nil != err {
		return nil, err
	}

	release, err := g.fetchRelease(ctx, kind, id)
	if nil != err {
		return nil, err
	}
	g.logger.Info().
		Str("title", release.Title).
		Int("tracks", len(release.Tracks)).
		Msg("Release loaded")

	dir := relfs.From(g.cfg.OutputDir).Release(release.Title)
	if err := dir.Create(); nil != err {
		return nil, err
	}

	if err := txt.Write(dir.TxtPath, release); nil != err {
		return nil, err
	}

	summary := &Summary{Release: release, Dir: dir, Tracks: nil}

	if err := g.ensureCover(ctx, release, dir); nil != err {
		if errors.Is(err, ErrNoCover) {
			g.logger.Error().Str("title", release.Title).Msg("No usable cover image. Text file was written, video generation aborted")
			return summary, ErrNoCover
		}
		return summary, err
	}

	for i, track := range release.Tracks {
		if track.Title == "" {
			summary.Tracks = append(summary.Tracks, TrackResult{
				Position:  track.Position,
				Title:     track.Title,
				Status:    TrackStatusSkipped,
				VideoPath: "",
				Err:       nil,
			})
			continue
		}

		res := g.processTrack(ctx, release, dir, track)
		summary.Tracks = append(summary.Tracks, res)
		if errutil.IsContext(ctx) {
			return summary, ctx.Err()
		}

		if res.Status == TrackStatusRendered && i < len(release.Tracks)-1 {
			time.Sleep(ratelimit.TrackFetchSleep())
		}
	}
	return summary, nil
}

func (g *Generator) fetchRelease(ctx context.Context, kind discogs.LinkKind, id int64) (*discogs.Release, error) {
	key := string(kind) + "/" + strconv.FormatInt(id, 10)
	item, err := g.cache.Releases.Fetch(key, cache.DefaultReleaseTTL, func() (*discogs.Release, error) {
		var release *discogs.Release
		fetch := func() error {
			r, err := g.client.Fetch(ctx, kind, id)
			if nil != err {
				if errors.Is(err, discogs.ErrTooManyRequests) && !errutil.IsContext(ctx) {
					return err
				}
				return backoff.Permanent(err)
			}
			release = r
			return nil
		}
		if err := backoff.Retry(fetch, backoff.WithContext(g.newBackoff(), ctx)); nil != err {
			return nil, err
		}
		return release, nil
	})
	if nil != err {
		return nil, err
	}
	return item.Value(), nil
}

func (g *Generator) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(g.cfg.Retry.InitialDelaySec) * time.Second
	b.Multiplier = 2
	b.MaxInterval = time.Minute
	return backoff.WithMaxRetries(b, uint64(g.cfg.Retry.MaxAttempts)) //nolint:gosec
}

func (g *Generator) ensureCover(ctx context.Context, release *discogs.Release, dir relfs.ReleaseDir) error {
	if dir.HasCover() {
		return nil
	}
	if len(release.Images) == 0 {
		return ErrNoCover
	}

	img := release.Images[0]
	coverBytes, err := g.downloadCover(ctx, img)
	if nil != err {
		if errutil.IsContext(ctx) {
			return ctx.Err()
		}
		g.logger.Warn().Err(err).Str("url", img.URI).Msg("Cover download failed")
		return ErrNoCover
	}

	if err := os.WriteFile(dir.CoverPath, coverBytes, 0o0644); nil != err {
		flawP := flaw.P{"path": dir.CoverPath, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to write cover file: %v", err)).Append(flawP)
	}
	return nil
}

// downloadCover fetches the full-resolution cover and falls back to the
// 150px thumbnail when the full image is rejected.
func (g *Generator) downloadCover(ctx context.Context, img discogs.Image) ([]byte, error) {
	item, err := g.cache.Covers.Fetch(img.URI, cache.DefaultCoverTTL, func() ([]byte, error) {
		b, err := g.fetchImage(ctx, img.URI)
		if nil == err {
			return b, nil
		}
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		if img.Thumb == "" {
			return nil, err
		}
		return g.fetchImage(ctx, img.Thumb)
	})
	if nil != err {
		return nil, err
	}
	return item.Value(), nil
}

func (g *Generator) fetchImage(ctx context.Context, imageURL string) (b []byte, err error) {
	flawP := flaw.P{"url": imageURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if nil != err {
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return nil, flaw.From(fmt.Errorf("failed to create image request: %v", err)).Append(flawP)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Referer", "https://www.discogs.com/")
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	client := http.Client{Timeout: config.CoverDownloadTimeout} //nolint:exhaustruct
	resp, err := client.Do(req)
	if nil != err {
		switch {
		case errutil.IsContext(ctx):
			return nil, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return nil, context.DeadlineExceeded
		default:
			flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
			return nil, flaw.From(fmt.Errorf("failed to send image request: %v", err)).Append(flawP)
		}
	}
	defer func() {
		if closeErr := resp.Body.Close(); nil != closeErr && nil == err {
			flawP["err_debug_tree"] = errutil.Tree(closeErr).FlawP()
			err = flaw.From(fmt.Errorf("failed to close image response body: %v", closeErr)).Append(flawP)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		flawP["response"] = errutil.HTTPResponseFlawPayload(resp)
		return nil, fmt.Errorf("unexpected image response status code: %d", resp.StatusCode)
	}

	b, err = io.ReadAll(resp.Body)
	if nil != err {
		if errutil.IsContext(ctx) {
			return nil, ctx.Err()
		}
		flawP["err_debug_tree"] = errutil.Tree(err).FlawP()
		return nil, flaw.From(fmt.Errorf("failed to read image response body: %v", err)).Append(flawP)
	}
	return b, nil
}

func (g *Generator) processTrack(ctx context.Context, release *discogs.Release, dir relfs.ReleaseDir, track discogs.Track) TrackResult {
	res := TrackResult{
		Position:  track.Position,
		Title:     track.Title,
		Status:    TrackStatusFailed,
		VideoPath: dir.TrackVideoPath(track.Position, track.Title),
		Err:       nil,
	}

	// Existing output is the completion marker; re-runs must not transcode
	// again.
	if dir.HasVideo(track.Position, track.Title) {
		res.Status = TrackStatusExists
		return res
	}

	logger := g.logger.With().Str("position", track.Position).Str("title", track.Title).Logger()

	audioPath, err := g.resolveAudio(ctx, release, dir, track)
	if nil != err {
		logger.Warn().Err(err).Msg("Audio resolution failed. Skipping track")
		res.Err = err
		return res
	}
	defer func() {
		if removeErr := os.Remove(audioPath); nil != removeErr && !errors.Is(removeErr, os.ErrNotExist) {
			logger.Warn().Err(removeErr).Str("path", audioPath).Msg("Failed to remove temporary audio file")
		}
	}()

	start, duration := g.cfg.Clip.Start(), g.cfg.Clip.Duration()
	total, err := g.transcoder.Duration(ctx, audioPath)
	if nil != err {
		if errutil.IsContext(ctx) {
			res.Err = ctx.Err()
			return res
		}
		logger.Warn().Err(err).Msg("Audio probe failed. Skipping track")
		res.Err = err
		return res
	}
	if total < start+duration {
		res.Err = &media.ResolutionError{
			Query: track.Title,
			Err:   fmt.Errorf("source is %s long, clip window needs %s", total, start+duration),
		}
		logger.Warn().Err(res.Err).Msg("Source too short for clip window. Skipping track")
		return res
	}

	clipPath := dir.TrackStem(track.Position, track.Title) + ".clip.mp3"
	defer func() {
		if removeErr := os.Remove(clipPath); nil != removeErr && !errors.Is(removeErr, os.ErrNotExist) {
			logger.Warn().Err(removeErr).Str("path", clipPath).Msg("Failed to remove temporary clip file")
		}
	}()

	if err := g.renderWithRetry(ctx, dir, audioPath, clipPath, res.VideoPath, start, duration); nil != err {
		if errutil.IsContext(ctx) {
			res.Err = ctx.Err()
			return res
		}
		logger.Error().Err(err).Msg("Track render failed permanently")
		res.Err = err
		return res
	}

	logger.Info().Str("video", res.VideoPath).Msg("Track video rendered")
	res.Status = TrackStatusRendered
	res.Err = nil
	return res
}

// renderWithRetry runs the cut-and-compose step, repeating once on transcode
// failures before giving the track up. The final video name doubles as the
// completion marker, so rendering lands on a scratch name first and only a
// finished file is moved into place. An interrupted render must never leave
// a file that a later run would mistake for a done track.
func (g *Generator) renderWithRetry(ctx context.Context, dir relfs.ReleaseDir, audioPath, clipPath, videoPath string, start, duration time.Duration) error {
	partPath := videoPath + ".part"
	defer func() {
		if removeErr := os.Remove(partPath); nil != removeErr && !errors.Is(removeErr, os.ErrNotExist) {
			g.logger.Warn().Err(removeErr).Str("path", partPath).Msg("Failed to remove partial video output")
		}
	}()

	render := func() error {
		if err := g.transcoder.ExtractClip(ctx, audioPath, clipPath, start, duration); nil != err {
			return err
		}
		return g.transcoder.RenderCoverVideo(ctx, dir.CoverPath, clipPath, partPath, duration)
	}

	if err := render(); nil != err {
		if errTranscode := new(media.TranscodeError); !errors.As(err, &errTranscode) || errutil.IsContext(ctx) {
			return err
		}
		g.logger.Warn().Err(err).Msg("Transcode failed, retrying once")
		if err := render(); nil != err {
			return err
		}
	}

	if err := os.Rename(partPath, videoPath); nil != err {
		flawP := flaw.P{"from": partPath, "to": videoPath, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to move rendered video into place: %v", err)).Append(flawP)
	}
	return nil
}

func (g *Generator) resolveAudio(ctx context.Context, release *discogs.Release, dir relfs.ReleaseDir, track discogs.Track) (string, error) {
	query := buildQuery(release, track)
	src, err := g.fetcher.Search(ctx, query)
	if nil != err {
		if errutil.IsContext(ctx) {
			return "", ctx.Err()
		}
		fallback := strings.TrimSpace(release.Title + " " + track.Title)
		g.logger.Debug().Str("query", query).Str("fallback", fallback).Msg("Primary search failed, trying fallback query")
		src, err = g.fetcher.Search(ctx, fallback)
		if nil != err {
			return "", err
		}
	}
	return g.fetcher.Download(ctx, src.URL, dir.TrackStem(track.Position, track.Title))
}

// buildQuery combines label, track artist, and title, which disambiguates
// white-label and common-title searches far better than title alone.
func buildQuery(release *discogs.Release, track discogs.Track) string {
	var parts []string
	if len(release.Labels) > 0 {
		parts = append(parts, release.Labels[0])
	}
	if artists := release.TrackArtists(track); artists != "" {
		parts = append(parts, artists)
	}
	parts = append(parts, track.Title)
	return strings.Join(parts, " ")
}
