package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/stupside/streamsniff/internal/app"
	"github.com/stupside/streamsniff/internal/manifest"
	"github.com/stupside/streamsniff/internal/report"
	"github.com/stupside/streamsniff/internal/sniff"
)

// sniffRun holds the per-command switches shared by sniff and play.
type sniffRun struct {
	target         string
	interact       bool
	blockAds       bool
	verify         bool
	stopOnVerified bool
	json           bool
}

func sniffCommand() *cli.Command {
	var pageURL string

	return &cli.Command{
		Name:  "sniff",
		Usage: "Load a page and list the manifests it requests",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "verify", Usage: "Confirm each manifest with a GET before reporting it"},
			&cli.BoolFlag{Name: "stop-on-verified", Usage: "Stop waiting once a manifest is confirmed"},
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
				verify:         cfg.Verify.Enabled || cmd.Bool("verify"),
				stopOnVerified: cfg.Capture.StopOnVerified || cmd.Bool("stop-on-verified"),
				json:           cmd.Bool("json"),
			})
		},
	}
}

// runSniff captures run.target and prints its findings.
func runSniff(ctx context.Context, cfg *app.Config, run sniffRun) error {
	capturer := &sniff.BrowserCapturer{
		Browser:  cfg.Browser,
		Settings: cfg.Capture,
		Actions:  cfg.Actions,
		Interact: run.interact,
	}

	opts := sniff.Options{
		Verify:         run.verify,
		StopOnVerified: run.stopOnVerified,
		Concurrency:    cfg.Verify.Concurrency,
	}

	if run.blockAds {
		adFilter := manifest.NewAdFilter(cfg.Capture.AdBlockList)
		capturer.BlockPatterns = adFilter.BlockPatterns()
		opts.AdFilter = adFilter
	}

	var verifier *manifest.Verifier
	if run.verify {
		verifier = newVerifier(cfg)
	}

	svc := sniff.NewService(capturer, newFilter(cfg), verifier)

	findings, err := svc.Run(ctx, run.target, opts)
	if err != nil {
		return fmt.Errorf("capturing %s: %w", run.target, err)
	}

	if run.json {
		return report.JSON(os.Stdout, findings)
	}
	return report.Console(os.Stdout, findings)
}

// targetFrom picks the URL argument, falling back to capture.target_url.
func targetFrom(arg string, cfg *app.Config) (string, error) {
	if arg != "" {
		return arg, nil
	}
	if cfg.Capture.TargetURL != "" {
		return cfg.Capture.TargetURL, nil
	}
	return "", fmt.Errorf("no URL given and capture.target_url is not set")
}

func newFilter(cfg *app.Config) *manifest.Filter {
	return manifest.NewFilter(cfg.Capture.Marker, cfg.Capture.BlockList, cfg.Capture.UnwrapParam)
}

func newVerifier(cfg *app.Config) *manifest.Verifier {
	return manifest.NewVerifier(manifest.VerifierConfig{
		Timeout:       cfg.Verify.Timeout,
		UserAgent:     cfg.Verify.UserAgent,
		Signature:     cfg.Verify.Signature,
		PeekBytes:     cfg.Verify.PeekBytes,
		Inspect:       cfg.Verify.Inspect,
		RatePerSecond: cfg.Verify.RatePerSecond,
		Burst:         cfg.Verify.Burst,
	})
}
