package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/stupside/streamsniff/internal/app"
	"github.com/stupside/streamsniff/internal/failure"
)

func verifyCommand() *cli.Command {
	var manifestURL string

	return &cli.Command{
		Name:  "verify",
		Usage: "Check that a manifest URL answers with a playlist",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "referer", Usage: "Page URL replayed as Referer and Origin"},
		},
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name:        "url",
				Destination: &manifestURL,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := app.ConfigFrom(cmd)
			if err != nil {
				return err
			}
			if manifestURL == "" {
				return fmt.Errorf("no manifest URL given")
			}

			probe, err := newVerifier(cfg).Probe(ctx, manifestURL, cmd.String("referer"))
			if err != nil {
				fmt.Fprintf(os.Stdout, "not playable (%s): %v\n", failure.KindOf(err), err)
				return nil
			}

			fmt.Fprintf(os.Stdout, "playable: HTTP %d", probe.Status)
			if probe.Playlist != "" {
				fmt.Fprintf(os.Stdout, ", %s playlist, %d variants, %d segments", probe.Playlist, probe.Variants, probe.Segments)
			}
			fmt.Fprintln(os.Stdout)
			return nil
		},
	}
}
