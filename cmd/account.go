package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/xeptore/crateclip/errutil"
	"github.com/xeptore/crateclip/instagram"
)

func runAccount(cliCtx *cli.Context) error {
	ctx, cancel := signal.NotifyContext(cliCtx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := newLogger(zerolog.InfoLevel)
	cfg, err := loadConfig(cliCtx, logger)
	if nil != err {
		return err
	}

	igAccessToken := os.Getenv("IG_ACCESS_TOKEN")
	if igAccessToken == "" {
		return errors.New("IG_ACCESS_TOKEN environment variable is empty")
	}

	graph := instagram.NewClient("", igAccessToken, cfg.Publish, logger.With().Str("module", "instagram").Logger())
	accounts, err := graph.Accounts(ctx)
	if nil != err {
		if errutil.IsContext(ctx) {
			return ctx.Err()
		}
		return err
	}
	if len(accounts) == 0 {
		fmt.Fprintln(cliCtx.App.Writer, "No pages are reachable with this access token")
		return nil
	}

	for _, account := range accounts {
		igUserID := account.IGUserID
		if igUserID == "" {
			igUserID = "no linked Instagram business account"
		}
		fmt.Fprintf(cliCtx.App.Writer, "page %s (%s): %s\n", account.PageName, account.PageID, igUserID)
	}
	return nil
}
