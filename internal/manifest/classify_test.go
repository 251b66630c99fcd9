package manifest

import (
	"net/url"
	"testing"
)

func TestFilter_Classify(t *testing.T) {
	f := NewFilter("", nil, "")

	tests := []struct {
		name string
		url  string
		want Class
	}{
		{"plain manifest", "https://cdn.example/x/master.m3u8", Pure},
		{"http scheme", "http://cdn.example/live/index.m3u8?token=abc", Pure},
		{"upper case scheme", "HTTPS://CDN.EXAMPLE/A.M3U8", Pure},
		{"ads path is not blocked", "https://cdn.example/ads/t.m3u8?doubleclick.net", Pure},
		{"no scheme", "cdn.example/x/master.m3u8", Rejected},
		{"blob scheme", "blob:https://cdn.example/abcd", Rejected},
		{"data scheme", "data:application/x-mpegurl;base64,I0VYVE0zVQ==", Rejected},
		{"no marker", "https://cdn.example/x/master.mpd", Rejected},
		{"player", "https://cdn.example/x/player.m3u8", Wrapped},
		{"player mixed case", "https://cdn.example/PlAyEr/stream.m3u8", Wrapped},
		{"embed", "https://host.example/embed/stream.m3u8", Wrapped},
		{"vendor token", "https://vidsrc.example/hls/a.m3u8", Wrapped},
		{"versioned api", "https://host.example/api/v2/source.m3u8", Wrapped},
		{"link redirector", "https://r.example/go?link=https://cdn.example/a.m3u8", Wrapped},
		{"empty", "", Rejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Classify(tt.url); got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestFilter_ClassifyIdempotent(t *testing.T) {
	f := NewFilter("", nil, "")
	urls := []string{
		"https://cdn.example/x/master.m3u8",
		"https://cdn.example/x/player.m3u8",
		"ftp://cdn.example/x/master.m3u8",
	}
	for _, u := range urls {
		first := f.Classify(u)
		if second := f.Classify(u); first != second {
			t.Errorf("Classify(%q) changed from %v to %v", u, first, second)
		}
	}
}

func TestFilter_CustomBlockList(t *testing.T) {
	f := NewFilter(".m3u8", []string{"  Player ", ""}, "")

	if got := f.Classify("https://cdn.example/x/player.m3u8"); got != Wrapped {
		t.Errorf("Classify(player) = %v, want wrapped", got)
	}
	if got := f.Classify("https://cdn.example/embed/x.m3u8"); got != Pure {
		t.Errorf("Classify(embed) = %v, want pure when embed is not listed", got)
	}
}

func TestFilter_Resolve(t *testing.T) {
	f := NewFilter("", nil, "")
	inner := "https://cdn.example/x/master.m3u8?token=a&b=c"

	tests := []struct {
		name   string
		url    string
		want   string
		wantOK bool
	}{
		{"pure passes through", " https://cdn.example/x/master.m3u8 ", "https://cdn.example/x/master.m3u8", true},
		{"redirector unwrapped", "https://r.example/redirect?link=" + url.QueryEscape(inner), inner, true},
		{"double encoded", "https://r.example/redirect?link=" + url.QueryEscape(url.QueryEscape(inner)), inner, true},
		{"link not first param", "https://r.example/player.m3u8?x=1&link=" + url.QueryEscape(inner), inner, true},
		{"pure wrapper with link param", "https://r.example/go.m3u8?token=1&link=" + url.QueryEscape(inner), inner, true},
		{"markerless wrapper with link param", "https://r.example/go?token=1&link=" + url.QueryEscape(inner), inner, true},
		{"pure wrapper with unusable link", "https://cdn.example/x/master.m3u8?t=1&link=" + url.QueryEscape("https://cdn.example/page.html"), "https://cdn.example/x/master.m3u8?t=1&link=https%3A%2F%2Fcdn.example%2Fpage.html", true},
		{"wrapped inner", "https://r.example/redirect?link=" + url.QueryEscape("https://cdn.example/player.m3u8"), "", false},
		{"wrapper without link", "https://cdn.example/player.m3u8", "", false},
		{"rejected", "https://cdn.example/index.html", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := f.Resolve(tt.url)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Resolve(%q) = (%q, %v), want (%q, %v)", tt.url, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFilter_ResolveServed(t *testing.T) {
	f := NewFilter("", nil, "")
	inner := "https://cdn.example/x/master.m3u8"

	tests := []struct {
		name   string
		url    string
		want   string
		wantOK bool
	}{
		{"markerless stream", "https://cdn.example/stream?id=42", "https://cdn.example/stream?id=42", true},
		{"markerless wrapper unwrapped", "https://r.example/go?link=" + url.QueryEscape(inner), inner, true},
		{"block-listed", "https://cdn.example/embed/stream?id=42", "", false},
		{"not http", "blob:https://cdn.example/abc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := f.ResolveServed(tt.url)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ResolveServed(%q) = (%q, %v), want (%q, %v)", tt.url, got, ok, tt.want, tt.wantOK)
			}
		})
	}

	if f.Classify("https://cdn.example/stream?id=42") != Rejected {
		t.Error("Classify() should still require the marker")
	}
}

func TestFilter_UnwrapCustomParam(t *testing.T) {
	f := NewFilter("", nil, "src")
	inner := "https://cdn.example/a.m3u8"

	got, ok := f.Unwrap("https://r.example/go?src=" + url.QueryEscape(inner))
	if !ok || got != inner {
		t.Errorf("Unwrap() = (%q, %v), want (%q, true)", got, ok, inner)
	}

	if _, ok := f.Unwrap("https://r.example/go?link=" + url.QueryEscape(inner)); ok {
		t.Error("Unwrap() should ignore the default parameter when a custom one is set")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://CDN.Example/A.m3u8", "https://cdn.example/A.m3u8"},
		{"  https://cdn.example/a.m3u8#t=10 ", "https://cdn.example/a.m3u8"},
		{"HTTPS://cdn.example/a.m3u8?Q=1", "https://cdn.example/a.m3u8?Q=1"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsManifestMIME(t *testing.T) {
	tests := []struct {
		mime string
		want bool
	}{
		{"application/vnd.apple.mpegurl", true},
		{"Application/X-MpegURL", true},
		{"audio/mpegurl; charset=utf-8", true},
		{"video/mp2t", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsManifestMIME(tt.mime); got != tt.want {
			t.Errorf("IsManifestMIME(%q) = %v, want %v", tt.mime, got, tt.want)
		}
	}
}

func TestAdFilter(t *testing.T) {
	a := NewAdFilter([]string{"DoubleClick.net", "taboola.com", "taboola.com", " "})

	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example/ads/t.m3u8?doubleclick.net", true},
		{"https://securepubads.g.doubleclick.net/tag/js/gpt.js", true},
		{"https://cdn.taboola.com/libtrc/loader.js", true},
		{"https://cdn.example/x/master.m3u8", false},
	}

	for _, tt := range tests {
		if got := a.IsAd(tt.url); got != tt.want {
			t.Errorf("IsAd(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}

	patterns := a.BlockPatterns()
	if len(patterns) != 2 || patterns[0] != "*doubleclick.net*" || patterns[1] != "*taboola.com*" {
		t.Errorf("BlockPatterns() = %v", patterns)
	}

	var inactive *AdFilter
	if inactive.IsAd("https://doubleclick.net/x") {
		t.Error("nil AdFilter should flag nothing")
	}
	if inactive.BlockPatterns() != nil {
		t.Error("nil AdFilter should have no block patterns")
	}
}

func TestRank(t *testing.T) {
	master := Rank("https://cdn.example/hls/master.m3u8")
	playlist := Rank("https://cdn.example/hls/playlist.m3u8")
	variant := Rank("https://cdn.example/hls/720p/index.m3u8")
	plain := Rank("https://cdn.example/hls/stream.m3u8")

	if !(master > playlist && playlist > plain && plain > variant) {
		t.Errorf("unexpected ordering: master=%d playlist=%d plain=%d variant=%d", master, playlist, plain, variant)
	}
}
