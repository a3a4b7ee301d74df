package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/xeptore/crateclip/ctxutil"
	"github.com/xeptore/crateclip/errutil"
	"github.com/xeptore/crateclip/instagram"
	"github.com/xeptore/crateclip/publish"
	"github.com/xeptore/crateclip/relfs"
	"github.com/xeptore/crateclip/storage"
)

func runPublish(cliCtx *cli.Context) error {
	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(zerolog.TraceLevel)
	cfg, err := loadConfig(cliCtx, logger)
	if nil != err {
		return err
	}

	igUserID := os.Getenv("IG_USER_ID")
	igAccessToken := os.Getenv("IG_ACCESS_TOKEN")
	switch {
	case igUserID == "":
		return errors.New("IG_USER_ID environment variable is empty")
	case igAccessToken == "":
		return errors.New("IG_ACCESS_TOKEN environment variable is empty")
	case cfg.Storage.Bucket == "":
		return errors.New("storage bucket is not configured")
	}

	ready, incomplete, err := relfs.List(cfg.OutputDir)
	if nil != err {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("output directory %q does not exist", cfg.OutputDir)
		}
		return err
	}
	for _, folder := range incomplete {
		logger.Warn().Str("folder", folder.Name).Msg("Skipping incomplete release folder")
	}

	ledger, err := publish.ReadLedger(relfs.From(cfg.OutputDir).LedgerPath())
	if nil != err {
		return err
	}

	selected, err := selectFolders(cliCtx, ready, ledger, logger)
	if nil != err {
		return err
	}
	if len(selected) == 0 {
		logger.Info().Msg("Nothing to publish")
		return nil
	}

	uploader, err := storage.New(cfg.Storage)
	if nil != err {
		return err
	}
	graph := instagram.NewClient(igUserID, igAccessToken, cfg.Publish, logger.With().Str("module", "instagram").Logger())
	publisher := publish.New(cfg, uploader, graph, logger.With().Str("module", "publish").Logger())

	opts := publish.Options{
		Price:       cliCtx.String(flagPrice),
		CaptionFile: cliCtx.String(flagCaptionFile),
		Owner:       cliCtx.String(flagOwner),
	}

	// A post caught mid-flight by a signal gets a short grace period to run
	// its final publish call instead of leaving an orphaned container behind.
	publishCtx, cancelPublish := ctxutil.WithDelayedTimeout(ctx, 10*time.Second)
	defer cancelPublish()

	var failed int
	for _, folder := range selected {
		if errutil.IsContext(ctx) {
			return ctx.Err()
		}
		logger.Info().Str("folder", folder.Name).Int("videos", len(folder.Videos)).Msg("Publishing release folder")

		result, err := publisher.Run(publishCtx, folder, opts)
		if nil != err {
			switch {
			case errutil.IsContext(publishCtx):
				return publishCtx.Err()
			case errors.Is(err, instagram.ErrTooManyRequests):
				logger.Error().Str("folder", folder.Name).Msg("Graph API rate limit reached. Stopping")
				return err
			default:
				if apiErr := new(instagram.APIError); errors.As(err, &apiErr) && apiErr.IsAuthError() {
					return fmt.Errorf("access token was rejected: %v", err)
				}
				logger.Error().Err(err).Str("folder", folder.Name).Msg("Failed to publish release folder. Continuing with the next one")
				failed++
				continue
			}
		}
		logger.Info().
			Str("folder", folder.Name).
			Strs("media_ids", result.MediaIDs).
			Msg("Release folder published")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d folders failed to publish", failed, len(selected))
	}
	return nil
}

func selectFolders(cliCtx *cli.Context, ready []relfs.Folder, ledger []publish.LedgerEntry, logger zerolog.Logger) ([]relfs.Folder, error) {
	names := cliCtx.StringSlice(flagFolder)
	all := cliCtx.Bool(flagAll)
	republish := cliCtx.Bool(flagRepublish)
	if len(names) == 0 && !all {
		return nil, errors.New("specify folders with --folder or pass --all")
	}
	if len(names) > 0 && all {
		return nil, errors.New("--folder and --all are mutually exclusive")
	}

	if all {
		var selected []relfs.Folder
		for _, folder := range ready {
			if !republish && publish.IsPublished(ledger, folder.Name) {
				logger.Debug().Str("folder", folder.Name).Msg("Folder is already published. Skipping")
				continue
			}
			selected = append(selected, folder)
		}
		return selected, nil
	}

	var selected []relfs.Folder
	for _, name := range names {
		idx := slices.IndexFunc(ready, func(f relfs.Folder) bool { return f.Name == name })
		if idx < 0 {
			return nil, fmt.Errorf("folder %q is not a ready release folder", name)
		}
		if !republish && publish.IsPublished(ledger, name) {
			return nil, fmt.Errorf("folder %q is already published. pass --republish to post it again", name)
		}
		selected = append(selected, ready[idx])
	}
	return selected, nil
}
