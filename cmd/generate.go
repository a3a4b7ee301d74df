package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/xeptore/crateclip/cache"
	"github.com/xeptore/crateclip/discogs"
	"github.com/xeptore/crateclip/errutil"
	"github.com/xeptore/crateclip/generate"
	"github.com/xeptore/crateclip/media"
)

func runGenerate(cliCtx *cli.Context) error {
	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(zerolog.TraceLevel)
	cfg, err := loadConfig(cliCtx, logger)
	if nil != err {
		return err
	}

	links := cliCtx.Args().Slice()
	if len(links) == 0 {
		return errors.New("at least one release link is required")
	}
	// ParseLink ignores the host, so a link copied from the wrong site
	// would fetch an unrelated release. Reject such arguments before any
	// work starts.
	for _, link := range links {
		if discogs.IsLink(link) {
			continue
		}
		if _, _, err := discogs.ParseLink(link); nil != err {
			return err
		}
		if strings.ContainsRune(link, '/') {
			return fmt.Errorf("%q is not a discogs.com release link", link)
		}
	}

	token := os.Getenv("DISCOGS_TOKEN")
	if token == "" {
		return errors.New("DISCOGS_TOKEN environment variable is empty")
	}
	userAgent := os.Getenv("DISCOGS_USER_AGENT")
	if userAgent == "" {
		userAgent = discogs.DefaultUserAgent
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o0755); nil != err {
		return fmt.Errorf("failed to create output directory: %v", err)
	}

	client := discogs.NewClient(ctx, token, userAgent, logger.With().Str("module", "discogs").Logger())
	defer client.Close()

	gen := generate.New(
		cfg,
		client,
		media.NewYTDLP(),
		media.NewFFmpeg(),
		cache.New(),
		userAgent,
		logger.With().Str("module", "generate").Logger(),
	)

	for _, link := range links {
		summary, err := gen.Run(ctx, link)
		if nil != err {
			switch {
			case errutil.IsContext(ctx):
				return ctx.Err()
			case errors.Is(err, context.DeadlineExceeded):
				return context.DeadlineExceeded
			case errors.Is(err, discogs.ErrNotFound):
				logger.Error().Str("link", link).Msg("Release was not found. Skipping")
				continue
			case errors.Is(err, discogs.ErrTooManyRequests):
				logger.Error().Str("link", link).Msg("Discogs rate limit held after retries. Stopping")
				return err
			case errors.Is(err, generate.ErrNoCover):
				logger.Error().Str("link", link).Msg("Release has no usable cover image. Skipping")
				continue
			case errutil.IsFlaw(err):
				return err
			default:
				if errLink := new(discogs.InvalidLinkError); errors.As(err, &errLink) {
					logger.Error().Str("link", link).Err(err).Msg("Link is not a Discogs release link. Skipping")
					continue
				}
				panic(errutil.UnknownError(err))
			}
		}
		logger.Info().
			Str("release", summary.Release.Title).
			Str("dir", summary.Dir.Path).
			Int("rendered", summary.Rendered()).
			Int("failed", summary.Failed()).
			Msg("Release processed")
	}
	return nil
}
