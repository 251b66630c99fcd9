package sniff

import (
	"context"
	"log/slog"
	"sync"

	"github.com/stupside/streamsniff/internal/failure"
	"github.com/stupside/streamsniff/internal/manifest"
)

type verdict struct {
	done  chan struct{}
	probe manifest.Probe
	ok    bool
}

// verdicts verifies each URL at most once per run. Concurrent checks of the
// same URL share the first one's result.
type verdicts struct {
	verifier *manifest.Verifier

	mu sync.Mutex
	m  map[string]*verdict
}

func newVerdicts(verifier *manifest.Verifier) *verdicts {
	return &verdicts{verifier: verifier, m: make(map[string]*verdict)}
}

func (v *verdicts) check(ctx context.Context, manifestURL, referer string) (manifest.Probe, bool) {
	key := manifest.Normalize(manifestURL)

	v.mu.Lock()
	if e, ok := v.m[key]; ok {
		v.mu.Unlock()
		select {
		case <-e.done:
			return e.probe, e.ok
		case <-ctx.Done():
			return manifest.Probe{}, false
		}
	}
	e := &verdict{done: make(chan struct{})}
	v.m[key] = e
	v.mu.Unlock()

	defer close(e.done)

	probe, err := v.verifier.Probe(ctx, manifestURL, referer)
	if err != nil {
		slog.DebugContext(ctx, "verification failed",
			"url", manifestURL,
			"kind", failure.KindOf(err),
			"retryable", failure.KindOf(err).Retryable(),
			"error", err,
		)
		return probe, false
	}

	e.probe, e.ok = probe, true
	slog.DebugContext(ctx, "manifest verified", "url", manifestURL, "playlist", probe.Playlist)
	return probe, true
}

// checked returns how many distinct URLs have been checked.
func (v *verdicts) checked() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.m)
}
