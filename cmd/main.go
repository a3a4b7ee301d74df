package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/crateclip/config"
	"github.com/xeptore/crateclip/constant"
	"github.com/xeptore/crateclip/errutil"
	"github.com/xeptore/crateclip/log"
)

const (
	flagConfigFilePath = "config"
	flagPrice          = "price"
	flagCaptionFile    = "caption-file"
	flagOwner          = "owner"
	flagFolder         = "folder"
	flagAll            = "all"
	flagRepublish      = "republish"
)

// newLogger picks the log encoding: human-readable by default, raw JSON
// lines when LOG_FORMAT=json is set for cron or CI runs.
func newLogger(level zerolog.Level) zerolog.Logger {
	if os.Getenv("LOG_FORMAT") == "json" {
		return log.NewPacked(os.Stdout).Level(level)
	}
	return log.NewPretty(os.Stdout).Level(level)
}

func main() {
	logger := newLogger(zerolog.TraceLevel)
	defer func() {
		if r := recover(); nil != r {
			logger.Error().Func(log.Panic(r)).Msg("Application panicked")
			os.Exit(1)
		}
	}()

	if err := godotenv.Load(); nil != err {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn().Msg(".env file was not found")
		} else {
			logger.Fatal().Err(err).Msg("Failed to load .env file")
		}
	}

	//nolint:exhaustruct
	app := &cli.App{
		Name:     "crateclip",
		Version:  constant.Version,
		Compiled: constant.CompileTime,
		Suggest:  true,
		Usage:    "Discogs release promo clips and Instagram publisher",
		Commands: []*cli.Command{
			//nolint:exhaustruct
			{
				Name:      "generate",
				Aliases:   []string{"g"},
				Usage:     "Generate promo clips for Discogs release links",
				ArgsUsage: "<link>...",
				Action:    runGenerate,
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.StringFlag{
						Name:     flagConfigFilePath,
						Aliases:  []string{"c"},
						Usage:    "Config file path",
						Required: false,
					},
				},
			},
			//nolint:exhaustruct
			{
				Name:    "publish",
				Aliases: []string{"p"},
				Usage:   "Publish ready release folders to Instagram",
				Action:  runPublish,
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.StringFlag{
						Name:     flagConfigFilePath,
						Aliases:  []string{"c"},
						Usage:    "Config file path",
						Required: false,
					},
					//nolint:exhaustruct
					&cli.StringSliceFlag{
						Name:    flagFolder,
						Aliases: []string{"f"},
						Usage:   "Release folder name to publish. Repeatable",
					},
					//nolint:exhaustruct
					&cli.BoolFlag{
						Name:  flagAll,
						Usage: "Publish every ready folder that is not in the ledger",
					},
					//nolint:exhaustruct
					&cli.StringFlag{
						Name:  flagPrice,
						Usage: "Asking price to append to the caption",
					},
					//nolint:exhaustruct
					&cli.StringFlag{
						Name:  flagCaptionFile,
						Usage: "File whose content replaces the generated caption",
					},
					//nolint:exhaustruct
					&cli.StringFlag{
						Name:  flagOwner,
						Usage: "Owner name to record in the ledger",
					},
					//nolint:exhaustruct
					&cli.BoolFlag{
						Name:  flagRepublish,
						Usage: "Publish folders even when the ledger already has them",
					},
				},
			},
			//nolint:exhaustruct
			{
				Name:    "list",
				Aliases: []string{"l"},
				Usage:   "List release folders and their publish state",
				Action:  runList,
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.StringFlag{
						Name:     flagConfigFilePath,
						Aliases:  []string{"c"},
						Usage:    "Config file path",
						Required: false,
					},
				},
			},
			//nolint:exhaustruct
			{
				Name:   "account",
				Usage:  "List Facebook pages and their linked Instagram accounts",
				Action: runAccount,
				Flags: []cli.Flag{
					//nolint:exhaustruct
					&cli.StringFlag{
						Name:     flagConfigFilePath,
						Aliases:  []string{"c"},
						Usage:    "Config file path",
						Required: false,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); nil != err {
		if errors.Is(err, context.Canceled) {
			logger.Trace().Msg("Application was canceled")
			return
		}
		if flawErr := new(flaw.Flaw); errors.As(err, &flawErr) {
			if flawBytes, yamlErr := errutil.FlawToYAML(flawErr); nil == yamlErr {
				reportPath := fmt.Sprintf("flaw-%s.yaml", time.Now().Format("2006-01-02-15-04-05"))
				if writeErr := os.WriteFile(reportPath, flawBytes, 0o0644); nil == writeErr {
					logger.Info().Str("path", reportPath).Msg("Flaw report written")
				}
			}
			logger.Fatal().Func(log.Flaw(flawErr)).Msg("Application exited with flaw")
			return
		}
		logger.Fatal().Err(err).Msg("Application exited with error")
	}
}

func loadConfig(cliCtx *cli.Context, logger zerolog.Logger) (*config.Config, error) {
	cfgFilePath := cliCtx.String(flagConfigFilePath)
	cfgEnv := os.Getenv("CONFIG")
	switch {
	case cfgFilePath != "" && cfgEnv != "":
		return nil, errors.New("config file path and config environment variable are both set. specify only one")
	case cfgFilePath == "" && cfgEnv == "":
		return nil, errors.New("config file path and config environment variable are both empty. specify one")
	case cfgFilePath != "":
		logger.Debug().Str("config_file_path", cfgFilePath).Msg("Loading config from file")
		cfg, err := config.FromFile(cfgFilePath)
		if nil != err {
			return nil, fmt.Errorf("failed to load config file: %v", err)
		}
		return cfg, nil
	default:
		logger.Debug().Msg("Loading config from environment variable")
		cfg, err := config.FromString(cfgEnv)
		if nil != err {
			return nil, fmt.Errorf("failed to load config from environment variable: %v", err)
		}
		return cfg, nil
	}
}
