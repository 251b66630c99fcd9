package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/stupside/streamsniff/internal/app"
	"github.com/stupside/streamsniff/internal/manifest"
)

func classifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Classify URLs as pure, wrapped or rejected manifest candidates",
		ArgsUsage: "<url>...",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := app.ConfigFrom(cmd)
			if err != nil {
				return err
			}

			urls := cmd.Args().Slice()
			if len(urls) == 0 {
				return fmt.Errorf("no URLs given")
			}

			filter := newFilter(cfg)
			ads := manifest.NewAdFilter(cfg.Capture.AdBlockList)

			for _, u := range urls {
				line := fmt.Sprintf("%-8s %s", filter.Classify(u), u)
				if resolved, ok := filter.Resolve(u); ok && resolved != u {
					line += " -> " + resolved
				}
				if ads.IsAd(u) {
					line += " [ad]"
				}
				fmt.Fprintln(os.Stdout, line)
			}
			return nil
		},
	}
}
