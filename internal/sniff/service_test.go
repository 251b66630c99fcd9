package sniff

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stupside/streamsniff/internal/capture"
	"github.com/stupside/streamsniff/internal/failure"
	"github.com/stupside/streamsniff/internal/manifest"
)

// stubCapturer replays a fixed list of URLs into the collector.
type stubCapturer struct {
	urls    []string
	headers map[string]string
	// source defaults to capture.SourceRequest.
	source capture.Source
	err    error
	// wait blocks until Until is done or the timeout passes.
	wait      time.Duration
	stopped   error
	collector *capture.Collector
}

func (s *stubCapturer) Capture(ctx context.Context, req CaptureRequest) error {
	s.collector = req.Collector
	if s.err != nil {
		return s.err
	}
	source := cmp.Or(s.source, capture.SourceRequest)
	for _, u := range s.urls {
		req.Collector.Observe(u, s.headers, source)
	}
	if s.wait > 0 {
		select {
		case <-req.Until.Done():
			s.stopped = context.Cause(req.Until)
		case <-time.After(s.wait):
		}
	}
	return nil
}

func urlsOf(findings []Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.URL
	}
	return out
}

func TestService_EndToEndFilter(t *testing.T) {
	captured := []string{
		"https://cdn.example/x/player.m3u8",
		"https://cdn.example/x/master.m3u8",
		"https://cdn.example/ads/t.m3u8?doubleclick.net",
	}
	filter := manifest.NewFilter("", []string{"player"}, "")

	tests := []struct {
		name     string
		adFilter *manifest.AdFilter
		want     []string
	}{
		{
			name:     "ad filter active",
			adFilter: manifest.NewAdFilter(manifest.DefaultAdBlockList),
			want:     []string{"https://cdn.example/x/master.m3u8"},
		},
		{
			name: "ad filter off",
			want: []string{
				"https://cdn.example/x/master.m3u8",
				"https://cdn.example/ads/t.m3u8?doubleclick.net",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&stubCapturer{urls: captured}, filter, nil)

			findings, err := svc.Run(context.Background(), "https://watch.example/", Options{AdFilter: tt.adFilter})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			got := urlsOf(findings)
			slices.Sort(got)
			want := slices.Clone(tt.want)
			slices.Sort(want)
			if !slices.Equal(got, want) {
				t.Errorf("Run() = %v, want %v", got, want)
			}
		})
	}
}

func TestService_UnwrapsAndDedupes(t *testing.T) {
	inner := "https://cdn.example/hls/index.m3u8"
	svc := NewService(&stubCapturer{
		urls: []string{
			"https://proxy.example/redirect?link=" + strings.ReplaceAll(inner, ":", "%3A"),
			inner,
			"https://CDN.example/hls/index.m3u8#frag",
			"https://cdn.example/embed/other.m3u8",
			"https://cdn.example/app.js",
		},
		headers: map[string]string{"Referer": "https://watch.example/", "User-Agent": "ua"},
	}, manifest.NewFilter("", nil, ""), nil)

	findings, err := svc.Run(context.Background(), "https://watch.example/", Options{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(findings) != 1 || findings[0].URL != inner {
		t.Fatalf("Run() = %v, want only %s", urlsOf(findings), inner)
	}
	if findings[0].Referer != "https://watch.example/" || findings[0].UserAgent != "ua" {
		t.Errorf("headers lost: %+v", findings[0])
	}
	if findings[0].Verified {
		t.Error("Verified set without verification")
	}
}

func TestService_RanksMasterFirst(t *testing.T) {
	svc := NewService(&stubCapturer{urls: []string{
		"https://cdn.example/a/720p/index.m3u8",
		"https://cdn.example/b/stream.m3u8",
		"https://cdn.example/c/master.m3u8",
	}}, manifest.NewFilter("", nil, ""), nil)

	findings, err := svc.Run(context.Background(), "https://watch.example/", Options{})
	if err != nil {
		t.Fatal(err)
	}

	got := urlsOf(findings)
	want := []string{
		"https://cdn.example/c/master.m3u8",
		"https://cdn.example/b/stream.m3u8",
		"https://cdn.example/a/720p/index.m3u8",
	}
	if !slices.Equal(got, want) {
		t.Errorf("Run() = %v, want %v", got, want)
	}
}

func TestService_CaptureError(t *testing.T) {
	launch := failure.New(failure.BrowserLaunch, "launch", "", errors.New("exec: not found"))
	svc := NewService(&stubCapturer{err: launch}, manifest.NewFilter("", nil, ""), nil)

	_, err := svc.Run(context.Background(), "https://watch.example/", Options{})
	if !failure.IsKind(err, failure.BrowserLaunch) {
		t.Errorf("Run() error = %v, want browser_launch", err)
	}
}

// manifestServer serves a playlist on paths containing "good" and 404s
// elsewhere, counting requests.
func manifestServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if !strings.Contains(r.URL.Path, "good") {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-STREAM-INF:BANDWIDTH=1\nlow.m3u8\n")
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestService_VerifyKeepsConfirmed(t *testing.T) {
	srv, hits := manifestServer(t)

	svc := NewService(&stubCapturer{urls: []string{
		srv.URL + "/good/master.m3u8",
		srv.URL + "/bad/master.m3u8",
		srv.URL + "/good/alt.m3u8",
	}}, manifest.NewFilter("", nil, ""), manifest.NewVerifier(manifest.VerifierConfig{Inspect: true}))

	findings, err := svc.Run(context.Background(), "https://watch.example/", Options{Verify: true, Concurrency: 2})
	if err != nil {
		t.Fatal(err)
	}

	got := urlsOf(findings)
	want := []string{srv.URL + "/good/master.m3u8", srv.URL + "/good/alt.m3u8"}
	if !slices.Equal(got, want) {
		t.Errorf("Run() = %v, want %v", got, want)
	}
	for _, f := range findings {
		if !f.Verified || f.Playlist != manifest.PlaylistMaster || f.Variants != 1 {
			t.Errorf("finding = %+v", f)
		}
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("server hit %d times, want 3", n)
	}
}

func TestService_StopOnVerified(t *testing.T) {
	srv, hits := manifestServer(t)

	capturer := &stubCapturer{
		urls: []string{srv.URL + "/good/master.m3u8"},
		wait: 5 * time.Second,
	}
	svc := NewService(capturer, manifest.NewFilter("", nil, ""), manifest.NewVerifier(manifest.VerifierConfig{}))

	start := time.Now()
	findings, err := svc.Run(context.Background(), "https://watch.example/", Options{Verify: true, StopOnVerified: true})
	if err != nil {
		t.Fatal(err)
	}

	if time.Since(start) > 4*time.Second {
		t.Error("capture was not stopped early")
	}
	if !errors.Is(capturer.stopped, ErrManifestConfirmed) {
		t.Errorf("stop cause = %v, want ErrManifestConfirmed", capturer.stopped)
	}
	if len(findings) != 1 || !findings[0].Verified {
		t.Errorf("Run() = %+v", findings)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("manifest verified %d times, want 1", n)
	}
}

func TestService_LateObservationNotVerified(t *testing.T) {
	srv, hits := manifestServer(t)

	capturer := &stubCapturer{urls: []string{srv.URL + "/good/master.m3u8"}}
	svc := NewService(capturer, manifest.NewFilter("", nil, ""), manifest.NewVerifier(manifest.VerifierConfig{}))

	if _, err := svc.Run(context.Background(), "https://watch.example/", Options{Verify: true, StopOnVerified: true}); err != nil {
		t.Fatal(err)
	}
	before := hits.Load()

	// The browser listener may still deliver events after Capture returns.
	if !capturer.collector.Observe(srv.URL+"/good/late.m3u8", nil, capture.SourceRequest) {
		t.Fatal("late observation was deduplicated")
	}
	time.Sleep(100 * time.Millisecond)

	if n := hits.Load(); n != before {
		t.Errorf("server hit %d times after Run returned, want %d", n, before)
	}
}

func TestEarlyChecks(t *testing.T) {
	var e earlyChecks
	var ran atomic.Int32

	for range 3 {
		if !e.Go(func() { ran.Add(1) }) {
			t.Fatal("Go() refused work before close")
		}
	}
	e.CloseAndWait()

	if n := ran.Load(); n != 3 {
		t.Errorf("ran %d checks before close, want 3", n)
	}
	if e.Go(func() { ran.Add(1) }) {
		t.Error("Go() accepted work after close")
	}
	if n := ran.Load(); n != 3 {
		t.Errorf("ran %d checks, want 3", n)
	}
}

func TestService_KeepsServedManifestWithoutMarker(t *testing.T) {
	served := "https://cdn.example/stream?id=42"

	tests := []struct {
		name   string
		source capture.Source
		want   []string
	}{
		{"served as manifest", capture.SourceMIME, []string{served}},
		{"seen as request", capture.SourceRequest, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(&stubCapturer{urls: []string{served}, source: tt.source}, manifest.NewFilter("", nil, ""), nil)

			findings, err := svc.Run(context.Background(), "https://watch.example/", Options{})
			if err != nil {
				t.Fatal(err)
			}
			if got := urlsOf(findings); !slices.Equal(got, tt.want) {
				t.Errorf("Run() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestService_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(&stubCapturer{urls: []string{"https://cdn.example/a.m3u8"}}, manifest.NewFilter("", nil, ""), nil)
	if _, err := svc.Run(ctx, "https://watch.example/", Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestService_Record(t *testing.T) {
	svc := NewService(&stubCapturer{urls: []string{"https://cdn.example/a.m3u8"}}, manifest.NewFilter("", nil, ""), nil)

	collector, err := svc.Record(context.Background(), "https://watch.example/", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(collector.Observations()) != 1 {
		t.Errorf("observations = %v", collector.Observations())
	}
}
