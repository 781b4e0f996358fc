package metric

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extractor pulls the play count out of a fetched page body.
type Extractor interface {
	Extract(body string) (int64, bool)
}

var playCountPattern = regexp.MustCompile(`(?i)"?playCount"?\s*[:=]\s*(\d+)`)

// RegexExtractor takes the first playCount assignment anywhere in the body.
type RegexExtractor struct{}

func (RegexExtractor) Extract(body string) (int64, bool) {
	m := playCountPattern.FindStringSubmatch(body)
	if m == nil {
		return 0, false
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Hydration payloads in the order TikTok has shipped them.
var scriptSelectors = []string{
	"script#__UNIVERSAL_DATA_FOR_REHYDRATION__",
	"script#SIGI_STATE",
	"script#__NEXT_DATA__",
	"script",
}

// ScriptExtractor parses the page as HTML and looks for playCount inside
// <script> elements, preferring the known hydration payloads. It falls back
// to scanning the raw body.
type ScriptExtractor struct {
	Inner Extractor
}

func (e ScriptExtractor) Extract(body string) (int64, bool) {
	inner := e.Inner
	if inner == nil {
		inner = RegexExtractor{}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return inner.Extract(body)
	}

	for _, sel := range scriptSelectors {
		var (
			value int64
			found bool
		)
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			value, found = inner.Extract(s.Text())
			return !found
		})
		if found {
			return value, true
		}
	}

	return inner.Extract(body)
}

// NewExtractor maps a configured strategy name to an Extractor.
func NewExtractor(name string) (Extractor, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "regex":
		return RegexExtractor{}, true
	case "script":
		return ScriptExtractor{Inner: RegexExtractor{}}, true
	default:
		return nil, false
	}
}
