// Package sniff turns a browser capture into a list of playable manifests.
package sniff

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stupside/streamsniff/internal/capture"
	"github.com/stupside/streamsniff/internal/manifest"
)

// ErrManifestConfirmed is the cause attached to a capture stopped early
// because a manifest was verified.
var ErrManifestConfirmed = errors.New("manifest confirmed")

// CaptureRequest describes one capture for a Capturer.
type CaptureRequest struct {
	Target    string
	Collector *capture.Collector
	// Until is cancelled once the capture may stop waiting for traffic.
	Until context.Context
}

// Capturer drives a page and feeds what it sees into a collector.
type Capturer interface {
	Capture(ctx context.Context, req CaptureRequest) error
}

// Options tunes a Run.
type Options struct {
	Verify         bool
	StopOnVerified bool
	Concurrency    int
	// AdFilter drops ad/tracker URLs when set.
	AdFilter *manifest.AdFilter
}

// Service runs captures and filters their observations.
type Service struct {
	capturer Capturer
	filter   *manifest.Filter
	verifier *manifest.Verifier
}

// NewService creates a Service. verifier may be nil when Run is never asked
// to verify.
func NewService(capturer Capturer, filter *manifest.Filter, verifier *manifest.Verifier) *Service {
	return &Service{capturer: capturer, filter: filter, verifier: verifier}
}

// Run captures target and returns its manifest findings, best first. An empty
// result is not an error.
func (s *Service) Run(ctx context.Context, target string, opts Options) ([]Finding, error) {
	verify := opts.Verify && s.verifier != nil
	if opts.Verify && s.verifier == nil {
		slog.WarnContext(ctx, "verification requested without a verifier, skipping")
	}

	var results *verdicts
	if verify {
		results = newVerdicts(s.verifier)
	}

	until, stop := context.WithCancelCause(ctx)
	defer stop(nil)

	var early earlyChecks
	var onObservation func(capture.Observation)
	if verify && opts.StopOnVerified {
		onObservation = func(o capture.Observation) {
			pure, ok := s.keep(o, opts.AdFilter)
			if !ok {
				return
			}
			early.Go(func() {
				if _, ok := results.check(ctx, pure, target); ok {
					slog.InfoContext(ctx, "manifest confirmed, stopping capture", "url", pure)
					stop(ErrManifestConfirmed)
				}
			})
		}
	}

	collector := capture.NewCollector(capture.CollectorConfig{
		Match:         s.filter.HasMarker,
		OnObservation: onObservation,
	})

	err := s.capturer.Capture(ctx, CaptureRequest{Target: target, Collector: collector, Until: until})
	// Listener events can still arrive after Capture returns.
	early.CloseAndWait()
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}

	findings := s.filterObservations(collector.Observations(), opts.AdFilter)
	slog.InfoContext(ctx, "capture filtered",
		"observed", len(collector.Observations()),
		"kept", len(findings),
	)

	if verify {
		findings = s.verifyAll(ctx, results, target, findings, opts.Concurrency)
	}

	rank(findings)
	return findings, nil
}

// Record captures target with full request/response recording.
func (s *Service) Record(ctx context.Context, target string, bodySizeCap int) (*capture.Collector, error) {
	collector := capture.NewCollector(capture.CollectorConfig{
		Match:       s.filter.HasMarker,
		Record:      true,
		BodySizeCap: bodySizeCap,
	})

	if err := s.capturer.Capture(ctx, CaptureRequest{Target: target, Collector: collector, Until: ctx}); err != nil {
		return nil, err
	}
	return collector, nil
}

// filterObservations resolves, ad-filters and dedupes observations, keeping
// discovery order.
func (s *Service) filterObservations(observations []capture.Observation, adFilter *manifest.AdFilter) []Finding {
	seen := make(map[string]bool)
	var findings []Finding

	for _, o := range observations {
		pure, ok := s.keep(o, adFilter)
		if !ok {
			continue
		}

		key := manifest.Normalize(pure)
		if seen[key] {
			continue
		}
		seen[key] = true

		findings = append(findings, Finding{
			URL:          pure,
			Referer:      o.Referer,
			Origin:       o.Origin,
			UserAgent:    o.UserAgent,
			DiscoveredAt: o.DiscoveredAt,
			Source:       o.Source,
		})
	}

	return findings
}

// keep resolves an observation to a pure manifest URL and applies the ad
// filter. URLs seen through a manifest MIME type need not carry the marker.
func (s *Service) keep(o capture.Observation, adFilter *manifest.AdFilter) (string, bool) {
	resolve, classify := s.filter.Resolve, s.filter.Classify
	if o.Source == capture.SourceMIME {
		resolve, classify = s.filter.ResolveServed, s.filter.ClassifyServed
	}

	pure, ok := resolve(o.URL)
	if !ok {
		slog.Debug("candidate rejected", "url", o.URL, "source", o.Source, "class", classify(o.URL))
		return "", false
	}
	if adFilter.IsAd(pure) {
		slog.Debug("candidate dropped as ad", "url", pure)
		return "", false
	}
	return pure, true
}

// earlyChecks tracks verifications started from collector callbacks. Once
// closed it refuses new work, so a late listener event cannot race the wait.
type earlyChecks struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Go runs fn in a goroutine unless the tracker is closed.
func (e *earlyChecks) Go(fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
	return true
}

// CloseAndWait refuses further work and waits for running checks.
func (e *earlyChecks) CloseAndWait() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
}

// verifyAll checks findings with at most concurrency requests in flight and
// keeps the confirmed ones.
func (s *Service) verifyAll(ctx context.Context, results *verdicts, target string, findings []Finding, concurrency int) []Finding {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))

	for i := range findings {
		g.Go(func() error {
			probe, ok := results.check(gctx, findings[i].URL, target)
			findings[i].Verified = ok
			findings[i].Playlist = probe.Playlist
			findings[i].Variants = probe.Variants
			return nil
		})
	}
	_ = g.Wait()

	verified := findings[:0]
	for _, f := range findings {
		if f.Verified {
			verified = append(verified, f)
		}
	}

	slog.InfoContext(ctx, "verification complete", "checked", results.checked(), "verified", len(verified))
	return verified
}
