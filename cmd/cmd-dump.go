package cmd

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/stupside/streamsniff/internal/app"
	"github.com/stupside/streamsniff/internal/dump"
	"github.com/stupside/streamsniff/internal/sniff"
)

func dumpCommand() *cli.Command {
	var pageURL string

	return &cli.Command{
		Name:  "dump",
		Usage: "Record every request and response of a page load to JSON files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "requests", Usage: "Request output file (default output.request_path)"},
			&cli.StringFlag{Name: "responses", Usage: "Response output file (default output.response_path)"},
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

			requestPath := cmp.Or(cmd.String("requests"), cfg.Output.RequestPath)
			responsePath := cmp.Or(cmd.String("responses"), cfg.Output.ResponsePath)

			capturer := &sniff.BrowserCapturer{
				Browser:  cfg.Browser,
				Settings: cfg.Capture,
				Actions:  cfg.Actions,
			}
			svc := sniff.NewService(capturer, newFilter(cfg), nil)

			collector, err := svc.Record(ctx, target, cfg.Capture.BodySizeCap)
			if err != nil {
				return fmt.Errorf("capturing %s: %w", target, err)
			}

			requests := collector.Requests()
			slog.InfoContext(ctx, "saving requests", "count", len(requests), "path", requestPath)
			if err := dump.WriteFile(requestPath, requests); err != nil {
				return err
			}

			responses := collector.Responses()
			slog.InfoContext(ctx, "saving responses", "count", len(responses), "path", responsePath)
			if err := dump.WriteFile(responsePath, responses); err != nil {
				return err
			}

			slog.InfoContext(ctx, "dump complete", "manifests_seen", len(collector.Observations()))
			return nil
		},
	}
}
