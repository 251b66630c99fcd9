// Package report prints findings for people and for scripts.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/stupside/streamsniff/internal/sniff"
)

var separator = strings.Repeat("-", 60)

// Console writes an ordinal list of findings with the headers needed to
// request each one.
func Console(w io.Writer, findings []sniff.Finding) error {
	if len(findings) == 0 {
		_, err := fmt.Fprintln(w, "No manifest found")
		return err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Extracted %d manifest(s) with headers:\n\n", len(findings))
	for i, f := range findings {
		fmt.Fprintf(&b, "#%d\n", i+1)
		fmt.Fprintf(&b, "URL       : %s\n", f.URL)
		fmt.Fprintf(&b, "Referer   : %s\n", f.Referer)
		fmt.Fprintf(&b, "Origin    : %s\n", f.Origin)
		fmt.Fprintf(&b, "User-Agent: %s\n", f.UserAgent)
		if f.Verified {
			fmt.Fprintf(&b, "Verified  : yes\n")
		}
		if f.Playlist != "" {
			fmt.Fprintf(&b, "Playlist  : %s", f.Playlist)
			if f.Variants > 0 {
				fmt.Fprintf(&b, " (%d variants)", f.Variants)
			}
			b.WriteByte('\n')
		}
		b.WriteString(separator)
		b.WriteByte('\n')
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// JSON writes findings as an indented JSON array.
func JSON(w io.Writer, findings []sniff.Finding) error {
	if findings == nil {
		findings = []sniff.Finding{}
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(findings)
}
