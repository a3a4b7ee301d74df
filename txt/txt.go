// Package txt renders the fixed-layout metadata text file that sits next to
// the generated videos, and reads it back at publish time for captions and
// the ledger. The file is the only interface between the two pipelines, so
// rendering must stay a pure function of the release record.
package txt

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/xeptore/flaw/v8"

	"github.com/xeptore/crateclip/discogs"
	"github.com/xeptore/crateclip/errutil"
)

const FileName = "release.txt"

func Render(r *discogs.Release) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Release: %s\n", r.Title)
	if len(r.Artists) > 0 {
		fmt.Fprintf(&b, "Artist(s): %s\n", discogs.JoinArtists(r.Artists))
	}
	if len(r.Labels) > 0 {
		fmt.Fprintf(&b, "Label(s): %s\n", strings.Join(r.Labels, ", "))
	}
	if r.Year != 0 {
		fmt.Fprintf(&b, "Year: %d\n", r.Year)
	}
	if r.Country != "" {
		fmt.Fprintf(&b, "Country: %s\n", r.Country)
	}

	b.WriteString("\nPrices (Discogs Marketplace):\n")
	if !r.Prices.Empty() {
		fmt.Fprintf(&b, "  Min: %s\n", formatPrice(r.Prices.Min, r.Prices.Currency))
		fmt.Fprintf(&b, "  Median: %s\n", formatPrice(r.Prices.Median, r.Prices.Currency))
		fmt.Fprintf(&b, "  Max: %s\n", formatPrice(r.Prices.Max, r.Prices.Currency))
	} else {
		b.WriteString("  Not available\n")
	}

	b.WriteString("\nTracklist:\n")
	for _, t := range r.Tracks {
		pos := ""
		if t.Position != "" {
			pos = t.Position + " - "
		}
		dur := ""
		if t.Duration != "" {
			dur = " (" + t.Duration + ")"
		}
		fmt.Fprintf(&b, "%s%s%s\n", pos, t.Title, dur)
	}
	return b.String()
}

func formatPrice(v *float64, currency string) string {
	if nil == v {
		return "N/A"
	}
	return strings.TrimSpace(fmt.Sprintf("%.2f %s", *v, currency))
}

func Write(path string, r *discogs.Release) error {
	if err := os.WriteFile(path, []byte(Render(r)), 0o0644); nil != err {
		flawP := flaw.P{"path": path, "err_debug_tree": errutil.Tree(err).FlawP()}
		return flaw.From(fmt.Errorf("failed to write release text file: %v", err)).Append(flawP)
	}
	return nil
}

var priceLinePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*Prices.*$`),
	regexp.MustCompile(`(?i)^\s*Price.*$`),
	regexp.MustCompile(`(?i)^\s*Min\s*:?\s*.*$`),
	regexp.MustCompile(`(?i)^\s*Median\s*:?\s*.*$`),
	regexp.MustCompile(`(?i)^\s*Max\s*:?\s*.*$`),
	regexp.MustCompile(`(?i)^\s*Not available\s*$`),
}

// StripPriceLines removes marketplace price lines from a rendered text file
// and returns them separately. Captions must not leak asking prices unless
// the operator sets one explicitly.
func StripPriceLines(raw string) (body string, prices string) {
	var kept, stripped []string
	for _, line := range strings.Split(raw, "\n") {
		matched := false
		for _, pat := range priceLinePatterns {
			if pat.MatchString(line) {
				matched = true
				break
			}
		}
		if matched {
			stripped = append(stripped, line)
		} else {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n")), strings.TrimSpace(strings.Join(stripped, "\n"))
}

type Header struct {
	Title   string
	Artists string
	Year    string
	Country string
}

var (
	titleLine   = regexp.MustCompile(`(?im)^\s*Release\s*:\s*(.+)$`)
	artistsLine = regexp.MustCompile(`(?im)^\s*Artist\(s\)\s*:\s*(.+)$`)
	yearLine    = regexp.MustCompile(`(?im)^\s*Year\s*:\s*(.+)$`)
	countryLine = regexp.MustCompile(`(?im)^\s*Country\s*:\s*(.+)$`)
)

// ParseHeader recovers release identity from an existing text file. Publish
// runs have no in-memory Release; the folder is all there is.
func ParseHeader(raw string) Header {
	var h Header
	if m := titleLine.FindStringSubmatch(raw); nil != m {
		h.Title = strings.TrimSpace(m[1])
	}
	if m := artistsLine.FindStringSubmatch(raw); nil != m {
		h.Artists = strings.TrimSpace(m[1])
	}
	if m := yearLine.FindStringSubmatch(raw); nil != m {
		h.Year = strings.TrimSpace(m[1])
	}
	if m := countryLine.FindStringSubmatch(raw); nil != m {
		h.Country = strings.TrimSpace(m[1])
	}
	return h
}
