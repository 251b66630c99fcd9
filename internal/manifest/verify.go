package manifest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/grafov/m3u8"
	"golang.org/x/time/rate"

	"github.com/stupside/streamsniff/internal/failure"
)

const (
	// DefaultSignature is the first tag of every HLS playlist.
	DefaultSignature = "#EXTM3U"
	// DefaultPeekBytes is how much of the body is searched for the signature.
	DefaultPeekBytes = 100
	// DefaultVerifyTimeout bounds a single verification request.
	DefaultVerifyTimeout = 10 * time.Second
	// DefaultUserAgent is the desktop Chrome UA replayed on verification.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// maxInspectBytes bounds how much of a playlist is decoded on inspection.
	maxInspectBytes = 1 << 20
)

// PlaylistType labels an inspected manifest.
type PlaylistType string

const (
	PlaylistUnknown PlaylistType = ""
	PlaylistMaster  PlaylistType = "master"
	PlaylistMedia   PlaylistType = "media"
)

// VerifierConfig configures a Verifier. Zero values fall back to defaults.
type VerifierConfig struct {
	Timeout       time.Duration
	UserAgent     string
	Signature     string
	PeekBytes     int
	Inspect       bool
	RatePerSecond float64
	Burst         int
}

// Probe describes a successfully verified manifest.
type Probe struct {
	Status   int
	Playlist PlaylistType
	Variants int
	Segments int
}

// Verifier confirms candidate manifests with a single GET each.
type Verifier struct {
	cfg     VerifierConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewVerifier creates a Verifier.
func NewVerifier(cfg VerifierConfig) *Verifier {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultVerifyTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Signature == "" {
		cfg.Signature = DefaultSignature
	}
	if cfg.PeekBytes <= 0 {
		cfg.PeekBytes = DefaultPeekBytes
	}

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	return &Verifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, max(cfg.Burst, 1)),
	}
}

// RequestHeaders builds the headers replayed on a verification request.
// Origin is the page URL without its trailing slash.
func RequestHeaders(userAgent, referer string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "*/*")
	if referer != "" {
		h.Set("Referer", referer)
		h.Set("Origin", strings.TrimRight(referer, "/"))
	}
	return h
}

// Verify reports whether manifestURL serves a playable manifest. Every
// failure, transport errors included, is reported as false.
func (v *Verifier) Verify(ctx context.Context, manifestURL, referer string) bool {
	_, err := v.Probe(ctx, manifestURL, referer)
	if err != nil {
		slog.DebugContext(ctx, "manifest not verified", "url", manifestURL, "kind", failure.KindOf(err), "error", err)
		return false
	}
	return true
}

// Probe fetches manifestURL and checks that the response is a 200 whose first
// bytes contain the manifest signature. Failures are *failure.Error values.
func (v *Verifier) Probe(ctx context.Context, manifestURL, referer string) (Probe, error) {
	if err := v.limiter.Wait(ctx); err != nil {
		return Probe{}, failure.New(failure.VerificationTransport, "wait", manifestURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return Probe{}, failure.New(failure.VerificationTransport, "build request", manifestURL, err)
	}
	req.Header = RequestHeaders(v.cfg.UserAgent, referer)

	resp, err := v.client.Do(req)
	if err != nil {
		return Probe{}, failure.New(failure.VerificationTransport, "get", manifestURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Probe{Status: resp.StatusCode}, failure.New(failure.VerificationStatus, "get", manifestURL, fmt.Errorf("HTTP %d", resp.StatusCode))
	}

	peek := make([]byte, v.cfg.PeekBytes)
	n, err := io.ReadFull(resp.Body, peek)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return Probe{Status: resp.StatusCode}, failure.New(failure.VerificationTransport, "read", manifestURL, err)
	}
	peek = peek[:n]

	if !bytes.Contains(peek, []byte(v.cfg.Signature)) {
		return Probe{Status: resp.StatusCode}, failure.New(failure.VerificationSignature, "read", manifestURL,
			fmt.Errorf("%q not in first %d bytes", v.cfg.Signature, v.cfg.PeekBytes))
	}

	probe := Probe{Status: resp.StatusCode}
	if v.cfg.Inspect {
		inspect(ctx, &probe, io.MultiReader(bytes.NewReader(peek), io.LimitReader(resp.Body, maxInspectBytes)))
	}

	return probe, nil
}

// inspect decodes the playlist and records its type. Decode failures leave
// the probe untouched.
func inspect(ctx context.Context, probe *Probe, r io.Reader) {
	p, listType, err := m3u8.DecodeFrom(r, false)
	if err != nil {
		slog.DebugContext(ctx, "playlist decode failed", "error", err)
		return
	}

	switch listType {
	case m3u8.MASTER:
		master := p.(*m3u8.MasterPlaylist)
		probe.Playlist = PlaylistMaster
		for _, variant := range master.Variants {
			if variant != nil {
				probe.Variants++
			}
		}
	case m3u8.MEDIA:
		media := p.(*m3u8.MediaPlaylist)
		probe.Playlist = PlaylistMedia
		for _, segment := range media.Segments {
			if segment != nil {
				probe.Segments++
			}
		}
	}
}
