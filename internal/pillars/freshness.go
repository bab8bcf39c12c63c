package pillars

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/seanblong/geoscore/internal/preprocess"
)

const month = `(?:Jan(?:uary)?|Feb(?:ruary)?|Mar(?:ch)?|Apr(?:il)?|May|June?|July?|Aug(?:ust)?|Sep(?:t(?:ember)?)?|Oct(?:ober)?|Nov(?:ember)?|Dec(?:ember)?)`

var (
	dateValue     = `(\d{4}-\d{2}-\d{2}|` + month + `\.?\s+\d{1,2},?\s+\d{4}|\d{1,2}\s+` + month + `\.?,?\s+\d{4})`
	publishedText = regexp.MustCompile(`(?i)\b(?:published|posted|written)(?:\s+on)?:?\s+` + dateValue)
	modifiedText  = regexp.MustCompile(`(?i)\b(?:updated|modified|revised|reviewed)(?:\s+on)?:?\s+` + dateValue)
	anyDateText   = regexp.MustCompile(`(?i)\b` + dateValue)
	lastUpdated   = regexp.MustCompile(`(?i)\b(last updated|last modified|last reviewed|updated on|recently updated)\b`)
)

var publishedMeta = []string{"article:published_time", "datepublished", "date", "pubdate", "publish_date", "dc.date", "dc.date.issued", "sailthru.date"}
var modifiedMeta = []string{"article:modified_time", "og:updated_time", "datemodified", "last-modified", "dc.date.modified", "revised"}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"Jan. 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"02 Jan 2006",
	time.RFC1123,
	time.RFC1123Z,
}

// parseDate accepts the date forms commonly found in meta tags, JSON-LD and
// visible bylines.
func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t, true
		}
	}
	// Month names written in full with a "Sept" abbreviation or extra comma.
	norm := strings.NewReplacer("Sept.", "Sep", "Sept", "Sep", ",", "").Replace(s)
	for _, layout := range []string{"January 2 2006", "Jan 2 2006", "2 January 2006", "2 Jan 2006"} {
		if t, err := time.Parse(layout, norm); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type foundDate struct {
	Source string
	Value  time.Time
}

func describeDates(ds []foundDate) []map[string]string {
	out := make([]map[string]string, 0, len(ds))
	for _, d := range ds {
		out = append(out, map[string]string{"source": d.Source, "date": d.Value.Format("2006-01-02")})
	}
	return out
}

func analyzeFreshness(doc *preprocess.Document, _ string, ctx Context) Result {
	b := newBuilder(Freshness)
	text := doc.PlainText

	var published, modified []foundDate
	addMeta := func(dst *[]foundDate, keys []string) {
		for _, k := range keys {
			if t, ok := parseDate(doc.Meta(k)); ok {
				*dst = append(*dst, foundDate{"meta:" + k, t})
			}
		}
	}
	addMeta(&published, publishedMeta)
	addMeta(&modified, modifiedMeta)

	schemaDates := false
	for _, block := range doc.SchemaBlocks {
		if v, ok := block["datePublished"].(string); ok {
			schemaDates = true
			if t, ok := parseDate(v); ok {
				published = append(published, foundDate{"schema:datePublished", t})
			}
		}
		if v, ok := block["dateModified"].(string); ok {
			schemaDates = true
			if t, ok := parseDate(v); ok {
				modified = append(modified, foundDate{"schema:dateModified", t})
			}
		}
	}

	var other []foundDate
	for _, tt := range doc.Times {
		t, ok := parseDate(tt.Datetime)
		if !ok {
			t, ok = parseDate(tt.Text)
		}
		if !ok {
			continue
		}
		switch tt.Itemprop {
		case "datepublished":
			published = append(published, foundDate{"time:datePublished", t})
		case "datemodified":
			modified = append(modified, foundDate{"time:dateModified", t})
		default:
			other = append(other, foundDate{"time", t})
		}
	}

	if m := publishedText.FindStringSubmatch(text); m != nil {
		if t, ok := parseDate(m[1]); ok {
			published = append(published, foundDate{"text", t})
		}
	}
	if m := modifiedText.FindStringSubmatch(text); m != nil {
		if t, ok := parseDate(m[1]); ok {
			modified = append(modified, foundDate{"text", t})
		}
	}
	if len(published) == 0 && len(modified) == 0 {
		for _, m := range anyDateText.FindAllStringSubmatch(text, 5) {
			if t, ok := parseDate(m[1]); ok {
				other = append(other, foundDate{"text", t})
			}
		}
	}

	b.set("dates", 2*bool1(len(published) > 0)+2*bool1(len(modified) > 0), 4)

	ageDetail := map[string]any{}
	agePts := 0.0
	if ctx.FetchedAt.IsZero() {
		ageDetail["reference_time_missing"] = true
	} else {
		var newest time.Time
		horizon := ctx.FetchedAt.Add(48 * time.Hour)
		for _, group := range [][]foundDate{published, modified, other} {
			for _, d := range group {
				if d.Value.After(horizon) {
					continue
				}
				if d.Value.After(newest) {
					newest = d.Value
				}
			}
		}
		if !newest.IsZero() {
			days := int(ctx.FetchedAt.Sub(newest).Hours() / 24)
			if days < 0 {
				days = 0
			}
			switch {
			case days <= 90:
				agePts = 3
			case days <= 365:
				agePts = 2
			case days <= 730:
				agePts = 1
			}
			ageDetail["newest"] = newest.Format("2006-01-02")
			ageDetail["days"] = days
		}
	}
	b.set("age", agePts, 3)

	updated := lastUpdated.MatchString(text)
	b.set("last_updated", bool1(updated), 1)

	currentYear := false
	if !ctx.FetchedAt.IsZero() {
		year := strconv.Itoa(ctx.FetchedAt.Year())
		for _, y := range yearRe.FindAllString(text, -1) {
			if y == year {
				currentYear = true
				break
			}
		}
	}
	b.set("current_year", bool1(currentYear), 1)
	b.set("schema_dates", bool1(schemaDates), 1)

	b.detail("dates", map[string]any{
		"published": describeDates(published),
		"modified":  describeDates(modified),
	})
	b.detail("age", ageDetail)
	b.detail("last_updated", map[string]any{"found": updated})
	b.detail("current_year", map[string]any{"found": currentYear})
	b.detail("schema_dates", map[string]any{"found": schemaDates})
	return b.result()
}
