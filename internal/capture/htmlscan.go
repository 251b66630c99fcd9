package capture

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// domSelector picks the elements that may reference a manifest directly.
const domSelector = "video[src], source[src], [data-src], [data-hls], [data-url], a[href]"

var domAttrs = []string{"src", "data-src", "data-hls", "data-url", "href"}

// ScanHTML returns manifest URLs referenced by the document, in document
// order and without duplicates. Relative references are resolved against
// pageURL; inline scripts are searched for absolute manifest URLs.
func ScanHTML(html, pageURL string, match func(string) bool) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	base, _ := url.Parse(pageURL)

	var found []string
	seen := make(map[string]bool)
	add := func(raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" || !match(raw) {
			return
		}
		if base != nil {
			if ref, err := url.Parse(raw); err == nil {
				raw = base.ResolveReference(ref).String()
			}
		}
		if !seen[raw] {
			seen[raw] = true
			found = append(found, raw)
		}
	}

	doc.Find(domSelector).Each(func(_ int, s *goquery.Selection) {
		for _, attr := range domAttrs {
			if v, ok := s.Attr(attr); ok {
				add(v)
			}
		}
	})

	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		for _, m := range hlsURLPattern.FindAllString(s.Text(), -1) {
			add(m)
		}
	})

	return found, nil
}
