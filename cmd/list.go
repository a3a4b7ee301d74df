package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/xeptore/crateclip/publish"
	"github.com/xeptore/crateclip/relfs"
)

func runList(cliCtx *cli.Context) error {
	logger := newLogger(zerolog.InfoLevel)
	cfg, err := loadConfig(cliCtx, logger)
	if nil != err {
		return err
	}

	ready, incomplete, err := relfs.List(cfg.OutputDir)
	if nil != err {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("output directory %q does not exist", cfg.OutputDir)
		}
		return err
	}

	ledger, err := publish.ReadLedger(relfs.From(cfg.OutputDir).LedgerPath())
	if nil != err {
		return err
	}

	for _, folder := range ready {
		state := "ready"
		if publish.IsPublished(ledger, folder.Name) {
			state = "published"
		}
		fmt.Fprintf(cliCtx.App.Writer, "%-10s %s (%d videos)\n", state, folder.Name, len(folder.Videos))
	}
	for _, folder := range incomplete {
		fmt.Fprintf(cliCtx.App.Writer, "%-10s %s\n", "incomplete", folder.Name)
	}
	if len(ready) == 0 && len(incomplete) == 0 {
		fmt.Fprintln(cliCtx.App.Writer, "No release folders found")
	}
	return nil
}
