// Package parser converts raw provider payloads into canonical channels and
// categories. Every function here is pure: no I/O, no clocks, no globals
// beyond compiled patterns.
package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/voyagen/vaulttv/internal/models"
)

var (
	reDuration = regexp.MustCompile(`(?i)^#EXTINF:\s*([^\s,]*)`)
	reTvgID    = regexp.MustCompile(`tvg-id="([^"]*)"`)
	reTvgName  = regexp.MustCompile(`tvg-name="([^"]*)"`)
	reTvgLogo  = regexp.MustCompile(`tvg-logo="([^"]*)"`)
	reGroup    = regexp.MustCompile(`group-title="([^"]*)"`)
)

// reDurationValue is the accepted duration syntax.
var reDurationValue = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// M3UEntry is one EXTINF directive plus the URL line that closed it.
type M3UEntry struct {
	Line       int
	Duration   int
	TVGID      string
	TVGName    string
	TVGLogo    string
	GroupTitle string
	Title      string
	URL        string
}

// ParseM3UEntries scans an Extended M3U document. It never fails: fields that
// cannot be read are defaulted and reported as ParseErrors.
func ParseM3UEntries(text string) ([]M3UEntry, []ParseError) {
	var (
		entries []M3UEntry
		issues  []ParseError
		pending *M3UEntry
	)
	text = strings.TrimPrefix(text, "\ufeff")
	lineNo := 0
	for rest := text; rest != ""; {
		var line string
		line, rest, _ = strings.Cut(rest, "\n")
		lineNo++
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if hasPrefixFold(line, "#EXTINF:") {
			if pending != nil {
				issues = append(issues, ParseError{Line: pending.Line, Field: "url", Msg: "EXTINF without stream URL"})
			}
			e, errs := parseExtinf(line, lineNo)
			issues = append(issues, errs...)
			pending = &e
			continue
		}
		if strings.HasPrefix(line, "#") || pending == nil {
			continue
		}
		pending.URL = line
		entries = append(entries, *pending)
		pending = nil
	}
	if pending != nil {
		issues = append(issues, ParseError{Line: pending.Line, Field: "url", Msg: "EXTINF without stream URL"})
	}
	return entries, issues
}

func parseExtinf(line string, lineNo int) (M3UEntry, []ParseError) {
	var issues []ParseError
	e := M3UEntry{
		Line:       lineNo,
		Duration:   -1,
		TVGID:      matchFirst(reTvgID, line),
		TVGName:    matchFirst(reTvgName, line),
		TVGLogo:    matchFirst(reTvgLogo, line),
		GroupTitle: matchFirst(reGroup, line),
	}
	if m := reDuration.FindStringSubmatch(line); len(m) == 2 {
		if d, ok := parseDuration(m[1]); ok {
			e.Duration = d
		} else {
			issues = append(issues, ParseError{Line: lineNo, Field: "duration", Msg: "malformed duration " + strconv.Quote(m[1])})
		}
	}
	if e.GroupTitle == "" {
		e.GroupTitle = models.DefaultGroupTitle
	}
	if i := strings.LastIndex(line, ","); i >= 0 {
		e.Title = strings.TrimSpace(line[i+1:])
	} else {
		issues = append(issues, ParseError{Line: lineNo, Field: "title", Msg: "no title after comma"})
	}
	return e, issues
}

// ParseM3U converts an M3U playlist into channels owned by providerID.
// Entries whose derived id was already seen keep the first occurrence.
func ParseM3U(text, providerID string, now time.Time) []models.Channel {
	channels, _ := ParseM3UReport(text, providerID, now)
	return channels
}

// ParseM3UReport is ParseM3U plus the list of degraded fields.
func ParseM3UReport(text, providerID string, now time.Time) ([]models.Channel, []ParseError) {
	entries, issues := ParseM3UEntries(text)
	channels := make([]models.Channel, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		id := M3UChannelID(providerID, e.URL)
		if _, dup := seen[id]; dup {
			issues = append(issues, ParseError{Line: e.Line, Field: "url", Msg: "duplicate stream URL"})
			continue
		}
		seen[id] = struct{}{}

		name := e.TVGName
		if name == "" {
			name = e.Title
		}
		if name == "" {
			name = "Unknown"
		}
		channels = append(channels, models.Channel{
			ID:         id,
			ProviderID: providerID,
			Name:       name,
			LogoURL:    optional(e.TVGLogo),
			GroupTitle: e.GroupTitle,
			StreamURL:  e.URL,
			StreamType: DetectStreamType(e.URL, e.GroupTitle),
			EPGID:      optional(e.TVGID),
			AddedAt:    now,
		})
	}
	return channels, issues
}

// DetectStreamType guesses the content type from the URL and group title.
func DetectStreamType(streamURL, groupTitle string) models.StreamType {
	lower := strings.ToLower(streamURL + groupTitle)
	switch {
	case strings.Contains(lower, "movie"), strings.Contains(lower, "film"), strings.Contains(lower, "vod"):
		return models.StreamMovie
	case strings.Contains(lower, "series"), strings.Contains(lower, "episode"):
		return models.StreamSeries
	default:
		return models.StreamLive
	}
}

// parseDuration reads whole seconds from "-1", "120" or "10.5". Anything
// else, including NaN, Inf, exponents and values beyond int range, is
// rejected.
func parseDuration(s string) (int, bool) {
	if !reDurationValue.MatchString(s) {
		return 0, false
	}
	whole, _, _ := strings.Cut(s, ".")
	d, err := strconv.Atoi(whole)
	if err != nil {
		return 0, false
	}
	return d, true
}

func matchFirst(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
