package capture

import (
	"cmp"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"

	"github.com/stupside/streamsniff/internal/dump"
	"github.com/stupside/streamsniff/internal/failure"
	"github.com/stupside/streamsniff/internal/manifest"
)

// hlsURLPattern matches HTTP(S) URLs containing .m3u8 in free text.
var hlsURLPattern = regexp.MustCompile(`https?://[^\s"'<>\\]+\.m3u8[^\s"'<>\\]*`)

// Source tells where an observation came from.
type Source string

const (
	SourceRequest Source = "request"
	SourceMIME    Source = "response-mime"
	SourceConsole Source = "console"
	SourceDOM     Source = "dom"
)

// Observation is a manifest candidate seen during a capture, with the
// headers the browser sent for it.
type Observation struct {
	URL          string
	Referer      string
	Origin       string
	UserAgent    string
	DiscoveredAt time.Time
	Source       Source
}

// BodyFetcher retrieves a response body from the browser.
type BodyFetcher func(network.RequestID) ([]byte, error)

// CollectorConfig configures a Collector.
type CollectorConfig struct {
	// Match reports whether a request URL is a manifest candidate.
	Match func(string) bool
	// Record keeps full request/response records for dumping.
	Record bool
	// BodySizeCap caps stored response bodies.
	BodySizeCap int
	// OnObservation is called, outside the collector lock, for every new
	// observation. It must not block.
	OnObservation func(Observation)
}

type pendingResponse struct {
	seq    int
	record dump.Response
}

// Collector accumulates network events from a browser session. Every
// mutation goes through its mutex, so events may arrive from any goroutine.
type Collector struct {
	cfg CollectorConfig

	mu           sync.Mutex
	seen         *deduplicator
	observations []Observation
	requests     []dump.Request
	requestRefs  map[network.RequestID]dump.RequestRef
	pending      map[network.RequestID]*pendingResponse
	finished     []*pendingResponse
	seq          int
	lastEvent    time.Time
	fetch        BodyFetcher
	notify       chan struct{} // closed on first observation

	bodies sync.WaitGroup
}

// NewCollector creates a Collector. A nil Match falls back to the default
// manifest marker.
func NewCollector(cfg CollectorConfig) *Collector {
	if cfg.Match == nil {
		cfg.Match = manifest.NewFilter("", nil, "").HasMarker
	}
	if cfg.BodySizeCap <= 0 {
		cfg.BodySizeCap = dump.DefaultBodySizeCap
	}
	return &Collector{
		cfg:         cfg,
		seen:        newDeduplicator(0, 0),
		requestRefs: make(map[network.RequestID]dump.RequestRef),
		pending:     make(map[network.RequestID]*pendingResponse),
		lastEvent:   time.Now(),
		notify:      make(chan struct{}),
	}
}

// SetBodyFetcher installs the function used to retrieve response bodies.
func (c *Collector) SetBodyFetcher(fetch BodyFetcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetch = fetch
}

// Listen is an event handler for chromedp.ListenTarget.
func (c *Collector) Listen(ev any) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		c.touch()
		if c.cfg.Record {
			c.recordRequest(e)
		}
		if c.cfg.Match(e.Request.URL) {
			c.Observe(e.Request.URL, headersToMap(e.Request.Headers), SourceRequest)
		}

	case *network.EventResponseReceived:
		c.touch()
		if manifest.IsManifestMIME(e.Response.MimeType) {
			c.Observe(e.Response.URL, headersToMap(responseRequestHeaders(e.Response)), SourceMIME)
		}
		if c.cfg.Record {
			c.recordResponse(e)
		}

	case *network.EventLoadingFinished:
		c.touch()
		if c.cfg.Record {
			c.loadBody(e.RequestID)
		}

	case *network.EventLoadingFailed:
		c.touch()
		if c.cfg.Record {
			c.finish(e.RequestID, nil, fmt.Errorf("loading failed: %s", e.ErrorText))
		}

	case *runtime.EventConsoleAPICalled:
		for _, arg := range e.Args {
			val := strings.Trim(string(arg.Value), `"`)
			slog.Debug("page console", "type", e.Type, "value", val)
			for _, m := range hlsURLPattern.FindAllString(val, -1) {
				c.Observe(m, nil, SourceConsole)
			}
		}

	case *runtime.EventExceptionThrown:
		if d := e.ExceptionDetails; d != nil {
			slog.Debug("page error", "text", d.Text, "url", d.URL, "line", d.LineNumber)
		}
	}
}

// Observe records a manifest candidate unless its normalized URL was already
// seen. It reports whether the observation was new.
func (c *Collector) Observe(rawURL string, headers map[string]string, source Source) bool {
	obs := Observation{
		URL:          rawURL,
		Referer:      header(headers, "Referer"),
		Origin:       header(headers, "Origin"),
		UserAgent:    header(headers, "User-Agent"),
		DiscoveredAt: time.Now(),
		Source:       source,
	}

	c.mu.Lock()
	if !c.seen.Add(manifest.Normalize(rawURL)) {
		c.mu.Unlock()
		slog.Debug("collector: duplicate URL, skipping", "url", rawURL)
		return false
	}
	c.observations = append(c.observations, obs)
	select {
	case <-c.notify:
	default:
		close(c.notify)
	}
	c.mu.Unlock()

	slog.Debug("collector: captured manifest candidate", "url", rawURL, "source", source)

	if c.cfg.OnObservation != nil {
		c.cfg.OnObservation(obs)
	}
	return true
}

// Match reports whether rawURL looks like a manifest candidate.
func (c *Collector) Match(rawURL string) bool {
	return c.cfg.Match(rawURL)
}

// Observations returns the candidates in discovery order.
func (c *Collector) Observations() []Observation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.observations)
}

// HasHits reports whether any candidate has been observed.
func (c *Collector) HasHits() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.observations) > 0
}

// Found is closed once the first candidate has been observed.
func (c *Collector) Found() <-chan struct{} {
	return c.notify
}

// Requests returns the recorded requests in the order they were sent.
func (c *Collector) Requests() []dump.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.requests)
}

// Responses returns the recorded responses in the order they were received.
// Responses whose body never arrived are included with a body error.
func (c *Collector) Responses() []dump.Response {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := slices.Clone(c.finished)
	for _, p := range c.pending {
		r := *p
		r.record.BodyError = "body not received before capture ended"
		all = append(all, &r)
	}
	slices.SortFunc(all, func(a, b *pendingResponse) int {
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]dump.Response, len(all))
	for i, p := range all {
		out[i] = p.record
	}
	return out
}

// WaitReason tells why Wait returned.
type WaitReason string

const (
	WaitIdle      WaitReason = "idle"
	WaitDeadline  WaitReason = "deadline"
	WaitCancelled WaitReason = "cancelled"
)

// Wait blocks until no network event has arrived for idle, bounded by maxWait
// and ctx. The idle window starts no earlier than the call. A non-positive
// idle waits for the full maxWait.
func (c *Collector) Wait(ctx context.Context, idle, maxWait time.Duration) WaitReason {
	c.touch()

	deadline := time.NewTimer(maxWait)
	defer deadline.Stop()

	idleTimer := time.NewTimer(idle)
	defer idleTimer.Stop()

	var tick <-chan time.Time
	if idle > 0 {
		tick = idleTimer.C
	}

	for {
		select {
		case <-tick:
			c.mu.Lock()
			remaining := idle - time.Since(c.lastEvent)
			c.mu.Unlock()
			if remaining <= 0 {
				return WaitIdle
			}
			idleTimer.Reset(remaining)
		case <-deadline.C:
			return WaitDeadline
		case <-ctx.Done():
			return WaitCancelled
		}
	}
}

// WaitBodies blocks until in-flight body fetches finish or ctx is done.
func (c *Collector) WaitBodies(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		c.bodies.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.DebugContext(ctx, "collector: gave up waiting for response bodies")
	}
}

func (c *Collector) touch() {
	c.mu.Lock()
	c.lastEvent = time.Now()
	c.mu.Unlock()
}

func (c *Collector) recordRequest(e *network.EventRequestWillBeSent) {
	r := dump.Request{
		Timestamp:    unixSeconds(time.Now()),
		ID:           string(e.RequestID),
		Method:       e.Request.Method,
		URL:          e.Request.URL,
		ResourceType: string(e.Type),
		Headers:      headersToMap(e.Request.Headers),
		PostData:     dump.EncodePostData(postData(e.Request)),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, r)
	c.requestRefs[e.RequestID] = dump.RequestRef{Method: e.Request.Method, URL: e.Request.URL}
}

func (c *Collector) recordResponse(e *network.EventResponseReceived) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	ref, ok := c.requestRefs[e.RequestID]
	if !ok {
		ref = dump.RequestRef{URL: e.Response.URL}
	}
	c.pending[e.RequestID] = &pendingResponse{
		seq: c.seq,
		record: dump.Response{
			Timestamp:  unixSeconds(time.Now()),
			ID:         string(e.RequestID),
			URL:        e.Response.URL,
			Status:     e.Response.Status,
			StatusText: e.Response.StatusText,
			MimeType:   e.Response.MimeType,
			Headers:    headersToMap(e.Response.Headers),
			Request:    ref,
		},
	}
}

// loadBody fetches a finished response's body off the listener goroutine;
// the fetch talks to the browser and would deadlock the event loop otherwise.
func (c *Collector) loadBody(id network.RequestID) {
	c.mu.Lock()
	_, ok := c.pending[id]
	fetch := c.fetch
	c.mu.Unlock()

	if !ok {
		return
	}
	if fetch == nil {
		c.finish(id, nil, fmt.Errorf("no body fetcher"))
		return
	}

	c.bodies.Add(1)
	go func() {
		defer c.bodies.Done()
		body, err := fetch(id)
		c.finish(id, body, err)
	}()
}

func (c *Collector) finish(id network.RequestID, body []byte, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[id]
	if !ok {
		return
	}
	delete(c.pending, id)

	if err != nil {
		ferr := failure.New(failure.BodyUnavailable, "get body", p.record.URL, err)
		slog.Debug("collector: response body unavailable", "url", p.record.URL, "error", ferr)
		p.record.BodyError = err.Error()
	} else {
		p.record.SetBody(body, c.cfg.BodySizeCap)
	}
	c.finished = append(c.finished, p)
}

// postData joins the request body entries. Chrome sends each entry base64
// encoded.
func postData(r *network.Request) []byte {
	if r == nil || !r.HasPostData {
		return nil
	}
	var out []byte
	for _, entry := range r.PostDataEntries {
		if entry == nil {
			continue
		}
		b, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			out = append(out, entry.Bytes...)
			continue
		}
		out = append(out, b...)
	}
	return out
}

// responseRequestHeaders returns the request headers from a response, falling
// back to the response headers when RequestHeaders is not populated by Chrome.
func responseRequestHeaders(r *network.Response) network.Headers {
	if len(r.RequestHeaders) > 0 {
		return r.RequestHeaders
	}
	return r.Headers
}

// headersToMap converts network.Headers (map[string]any) to map[string]string.
func headersToMap(h network.Headers) map[string]string {
	if len(h) == 0 {
		return nil
	}
	m := make(map[string]string, len(h))
	for k, v := range h {
		switch s := v.(type) {
		case string:
			m[k] = s
		default:
			m[k] = fmt.Sprint(v)
		}
	}
	return m
}

// header looks a header up case-insensitively.
func header(h map[string]string, name string) string {
	if v, ok := h[name]; ok {
		return v
	}
	for k, v := range h {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}
