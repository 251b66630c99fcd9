package manifest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stupside/streamsniff/internal/failure"
)

const masterPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-STREAM-INF:BANDWIDTH=800000,RESOLUTION=640x360
360p/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720
720p/index.m3u8
`

const mediaPlaylist = `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:6.0,
seg0.ts
#EXTINF:6.0,
seg1.ts
#EXT-X-ENDLIST
`

func servePlaylist(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func TestVerifier_Verify(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"playlist", http.StatusOK, masterPlaylist, true},
		{"signature after leading bytes", http.StatusOK, "\ufeff\n" + masterPlaylist, true},
		{"not found", http.StatusNotFound, masterPlaylist, false},
		{"html", http.StatusOK, "<html><body>nope</body></html>", false},
		{"signature too late", http.StatusOK, strings.Repeat(" ", 100) + masterPlaylist, false},
		{"empty body", http.StatusOK, "", false},
		{"partial content", http.StatusPartialContent, masterPlaylist, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := servePlaylist(tt.status, tt.body)
			defer srv.Close()

			v := NewVerifier(VerifierConfig{})
			if got := v.Verify(context.Background(), srv.URL+"/master.m3u8", "https://page.example/"); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifier_VerifyUnreachable(t *testing.T) {
	srv := servePlaylist(http.StatusOK, masterPlaylist)
	addr := srv.URL
	srv.Close()

	v := NewVerifier(VerifierConfig{Timeout: 2 * time.Second})
	if v.Verify(context.Background(), addr+"/master.m3u8", "") {
		t.Error("Verify() = true for a closed server")
	}

	_, err := v.Probe(context.Background(), addr+"/master.m3u8", "")
	if !failure.IsKind(err, failure.VerificationTransport) {
		t.Errorf("Probe() error kind = %v, want verification_transport", failure.KindOf(err))
	}
}

func TestVerifier_VerifyTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	v := NewVerifier(VerifierConfig{Timeout: 50 * time.Millisecond})
	if v.Verify(context.Background(), srv.URL+"/slow.m3u8", "") {
		t.Error("Verify() = true for a server that never answers")
	}
}

func TestVerifier_ProbeKinds(t *testing.T) {
	notFound := servePlaylist(http.StatusNotFound, "")
	defer notFound.Close()
	html := servePlaylist(http.StatusOK, "<html></html>")
	defer html.Close()

	v := NewVerifier(VerifierConfig{})

	probe, err := v.Probe(context.Background(), notFound.URL, "")
	if !failure.IsKind(err, failure.VerificationStatus) {
		t.Errorf("404 kind = %v, want verification_status", failure.KindOf(err))
	}
	if probe.Status != http.StatusNotFound {
		t.Errorf("probe.Status = %d, want 404", probe.Status)
	}

	if _, err := v.Probe(context.Background(), html.URL, ""); !failure.IsKind(err, failure.VerificationSignature) {
		t.Errorf("html kind = %v, want verification_signature", failure.KindOf(err))
	}
}

func TestVerifier_ReplaysHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		fmt.Fprint(w, mediaPlaylist)
	}))
	defer srv.Close()

	v := NewVerifier(VerifierConfig{UserAgent: "test-agent"})
	if !v.Verify(context.Background(), srv.URL+"/index.m3u8", "https://page.example/watch/") {
		t.Fatal("Verify() = false")
	}

	want := map[string]string{
		"User-Agent": "test-agent",
		"Referer":    "https://page.example/watch/",
		"Origin":     "https://page.example/watch",
		"Accept":     "*/*",
	}
	for k, v := range want {
		if got.Get(k) != v {
			t.Errorf("header %s = %q, want %q", k, got.Get(k), v)
		}
	}
}

func TestRequestHeaders_NoReferer(t *testing.T) {
	h := RequestHeaders(DefaultUserAgent, "")
	if h.Get("Referer") != "" || h.Get("Origin") != "" {
		t.Errorf("unexpected Referer/Origin: %v", h)
	}
	if h.Get("Accept") != "*/*" {
		t.Errorf("Accept = %q", h.Get("Accept"))
	}
}

func TestVerifier_Inspect(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		playlist PlaylistType
		variants int
		segments int
	}{
		{"master", masterPlaylist, PlaylistMaster, 2, 0},
		{"media", mediaPlaylist, PlaylistMedia, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := servePlaylist(http.StatusOK, tt.body)
			defer srv.Close()

			v := NewVerifier(VerifierConfig{Inspect: true})
			probe, err := v.Probe(context.Background(), srv.URL+"/x.m3u8", "")
			if err != nil {
				t.Fatalf("Probe() error = %v", err)
			}
			if probe.Playlist != tt.playlist || probe.Variants != tt.variants || probe.Segments != tt.segments {
				t.Errorf("Probe() = %+v, want playlist=%s variants=%d segments=%d", probe, tt.playlist, tt.variants, tt.segments)
			}
		})
	}
}

func TestVerifier_CancelledContext(t *testing.T) {
	srv := servePlaylist(http.StatusOK, masterPlaylist)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := NewVerifier(VerifierConfig{RatePerSecond: 1})
	if v.Verify(ctx, srv.URL, "") {
		t.Error("Verify() = true with a cancelled context")
	}
}
