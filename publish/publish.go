// Package publish uploads a release folder's videos to cloud storage and
// posts them to Instagram, as a reel for a single video or as one or more
// carousels for several.
package publish

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/matryer/try.v1"

	"github.com/xeptore/crateclip/config"
	"github.com/xeptore/crateclip/errutil"
	"github.com/xeptore/crateclip/instagram"
	"github.com/xeptore/crateclip/iterutil"
	"github.com/xeptore/crateclip/mathutil"
	"github.com/xeptore/crateclip/relfs"
	"github.com/xeptore/crateclip/sliceutil"
	"github.com/xeptore/crateclip/storage"
	"github.com/xeptore/crateclip/txt"
)

const publishAttempts = 2

type Uploader interface {
	Upload(ctx context.Context, localPath, keyPrefix string) (string, error)
}

type Graph interface {
	CreateReelContainer(ctx context.Context, videoURL, caption string) (string, error)
	CreateCarouselChild(ctx context.Context, videoURL string) (string, error)
	CreateCarouselParent(ctx context.Context, childIDs []string, caption string) (string, error)
	WaitFinished(ctx context.Context, containerID string) error
	Publish(ctx context.Context, containerID string) (string, error)
}

type Options struct {
	Price       string
	CaptionFile string
	Owner       string
}

type PartResult struct {
	Part    int
	MediaID string
	Err     error
}

type Result struct {
	Folder   string
	MediaIDs []string
	Parts    []PartResult
}

type Publisher struct {
	cfg      *config.Config
	uploader Uploader
	graph    Graph
	logger   zerolog.Logger
}

func New(cfg *config.Config, uploader Uploader, graph Graph, logger zerolog.Logger) *Publisher {
	return &Publisher{cfg: cfg, uploader: uploader, graph: graph, logger: logger}
}

// Run publishes one ready release folder. Upload failures skip the affected
// video and continue with the rest; a carousel whose child container errors
// or expires is abandoned whole rather than posted partially.
func (p *Publisher) Run(ctx context.Context, folder relfs.Folder, opts Options) (*Result, error) {
	caption, err := Caption(folder.TxtPath, opts.CaptionFile, opts.Price)
	if nil != err {
		return nil, err
	}

	p.logger.Info().
		Str("folder", folder.Name).
		Strs("videos", sliceutil.Map(folder.Videos, filepath.Base)).
		Msg("Uploading videos to storage")
	urls := p.uploadAll(ctx, folder)
	if errutil.IsContext(ctx) {
		return nil, ctx.Err()
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("no videos of folder %q could be uploaded", folder.Name)
	}

	result := &Result{Folder: folder.Name, MediaIDs: nil, Parts: nil}
	if len(urls) == 1 {
		mediaID, err := p.publishReel(ctx, urls[0], caption)
		if nil != err {
			return nil, err
		}
		result.MediaIDs = append(result.MediaIDs, mediaID)
		result.Parts = append(result.Parts, PartResult{Part: 1, MediaID: mediaID, Err: nil})
	} else {
		size := mathutil.OptimalCarouselSize(len(urls), p.cfg.Publish.MaxCarouselItems)
		totalParts := mathutil.CeilInts(len(urls), size)
		for i, chunk := range iterutil.WithIndex(slices.Chunk(urls, size)) {
			part := i + 1
			mediaID, err := p.publishPart(ctx, chunk, partCaption(caption, part, totalParts))
			if nil != err {
				if errutil.IsContext(ctx) {
					return nil, ctx.Err()
				}
				p.logger.Error().Err(err).Int("part", part).Str("folder", folder.Name).Msg("Failed to publish carousel part")
				result.Parts = append(result.Parts, PartResult{Part: part, MediaID: "", Err: err})
				continue
			}
			result.MediaIDs = append(result.MediaIDs, mediaID)
			result.Parts = append(result.Parts, PartResult{Part: part, MediaID: mediaID, Err: nil})
		}
	}

	if len(result.MediaIDs) == 0 {
		return nil, fmt.Errorf("no part of folder %q could be published", folder.Name)
	}
	if err := p.record(folder, opts, result); nil != err {
		return nil, err
	}
	return result, nil
}

func (p *Publisher) uploadAll(ctx context.Context, folder relfs.Folder) []string {
	urls := make([]string, 0, len(folder.Videos))
	for _, videoPath := range folder.Videos {
		signedURL, err := p.uploader.Upload(ctx, videoPath, relfs.SanitizeFileName(folder.Name))
		if nil != err {
			if errutil.IsContext(ctx) {
				return urls
			}
			var uploadErr *storage.UploadError
			if errors.As(err, &uploadErr) {
				p.logger.Warn().Err(err).Str("video", filepath.Base(videoPath)).Msg("Skipping video that failed to upload")
				continue
			}
			p.logger.Error().Err(err).Str("video", filepath.Base(videoPath)).Msg("Skipping video that failed to upload")
			continue
		}
		urls = append(urls, signedURL)
	}
	return urls
}

func (p *Publisher) publishReel(ctx context.Context, videoURL, caption string) (string, error) {
	containerID, err := p.graph.CreateReelContainer(ctx, videoURL, caption)
	if nil != err {
		return "", err
	}
	if err := p.graph.WaitFinished(ctx, containerID); nil != err {
		return "", err
	}
	return p.publishContainer(ctx, containerID)
}

func (p *Publisher) publishPart(ctx context.Context, urls []string, caption string) (string, error) {
	// A carousel needs at least two children; an even split can still leave a
	// one-video tail.
	if len(urls) == 1 {
		return p.publishReel(ctx, urls[0], caption)
	}

	childIDs := make([]string, 0, len(urls))
	for _, videoURL := range urls {
		childID, err := p.graph.CreateCarouselChild(ctx, videoURL)
		if nil != err {
			return "", err
		}
		if err := p.graph.WaitFinished(ctx, childID); nil != err {
			return "", err
		}
		childIDs = append(childIDs, childID)
	}

	parentID, err := p.graph.CreateCarouselParent(ctx, childIDs, caption)
	if nil != err {
		return "", err
	}
	if err := p.graph.WaitFinished(ctx, parentID); nil != err {
		return "", err
	}
	return p.publishContainer(ctx, parentID)
}

// publishContainer retries the final publish call once on transient failures.
// Graph API client errors are never retried; a rejected publish stays
// rejected.
func (p *Publisher) publishContainer(ctx context.Context, containerID string) (string, error) {
	var mediaID string
	err := try.Do(func(attempt int) (bool, error) {
		var publishErr error
		mediaID, publishErr = p.graph.Publish(ctx, containerID)
		if nil == publishErr {
			return false, nil
		}
		if errutil.IsContext(ctx) {
			return false, ctx.Err()
		}
		var apiErr *instagram.APIError
		if errors.As(publishErr, &apiErr) && apiErr.Status >= http.StatusBadRequest && apiErr.Status < http.StatusInternalServerError {
			return false, publishErr
		}
		if attempt < publishAttempts {
			p.logger.Warn().Err(publishErr).Str("container_id", containerID).Msg("Publish attempt failed. Retrying")
			time.Sleep(time.Duration(attempt) * time.Second)
		}
		return attempt < publishAttempts, publishErr
	})
	if nil != err {
		return "", err
	}
	return mediaID, nil
}

func (p *Publisher) record(folder relfs.Folder, opts Options, result *Result) error {
	header := txt.Header{Title: folder.Name, Artists: "", Year: "", Country: ""}
	if raw, err := os.ReadFile(folder.TxtPath); nil == err {
		header = txt.ParseHeader(string(raw))
		if header.Title == "" {
			header.Title = folder.Name
		}
	}

	entry := LedgerEntry{
		Folder:      folder.Name,
		Title:       header.Title,
		Artists:     header.Artists,
		Year:        header.Year,
		Country:     header.Country,
		Price:       opts.Price,
		Owner:       opts.Owner,
		MediaIDs:    result.MediaIDs,
		PublishedAt: time.Now().UTC(),
	}
	ledgerPath := relfs.From(p.cfg.OutputDir).LedgerPath()
	return AppendLedger(ledgerPath, entry)
}
