package cmd

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/stupside/streamsniff/internal/app"
)

func playCommand() *cli.Command {
	var pageURL string

	return &cli.Command{
		Name:  "play",
		Usage: "Load a page, dismiss consent, enter the player and press play, then list manifests",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verify", Usage: "Confirm each manifest with a GET before reporting it"},
			&cli.BoolFlag{Name: "no-block-ads", Usage: "Let ad and tracker requests through"},
			&cli.BoolFlag{Name: "json", Usage: "Print findings as JSON"},
		},
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name:        "url",
				Destination: &pageURL,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := app.ConfigFrom(cmd)
			if err != nil {
				return err
			}

			target, err := targetFrom(pageURL, cfg)
			if err != nil {
				return err
			}

			return runSniff(ctx, cfg, sniffRun{
				target:         target,
				interact:       true,
				blockAds:       !cmd.Bool("no-block-ads"),
				verify:         cfg.Verify.Enabled || cmd.Bool("verify"),
				stopOnVerified: cfg.Capture.StopOnVerified,
				json:           cmd.Bool("json"),
			})
		},
	}
}
