// Package titleparse extracts structured metadata from torrent release
// names. It is a best-effort heuristic parser, not a grammar: every
// attribute is an ordered table of regex rules where the first match wins,
// so priority is auditable per category and overlapping tokens resolve the
// same way every time. Parse never fails, whatever the input.
package titleparse

import (
	"regexp"
	"strconv"
	"strings"

	"tunnelarr/models"
)

// rule maps a canonical attribute value to the pattern that detects it.
// Order inside each table encodes priority: "WEB-DL" must be tested before
// "WEB" or a WEB-DL release would parse as plain WEB.
type rule struct {
	value string
	re    *regexp.Regexp
}

var tvPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bS(\d{1,2})[ ._-]?E(\d{1,3})\b`),
	regexp.MustCompile(`(?i)\b(\d{1,2})\s?x\s?(\d{2,3})\b`),
	regexp.MustCompile(`(?i)\bSeason[ ._-]*(\d{1,2})[ ._-]*Episode[ ._-]*(\d{1,3})\b`),
}

var qualityRules = []rule{
	{"2160p", regexp.MustCompile(`(?i)\b(2160p|4k|uhd)\b`)},
	{"1080p", regexp.MustCompile(`(?i)\b(1080p|1080i)\b`)},
	{"720p", regexp.MustCompile(`(?i)\b720p\b`)},
	{"480p", regexp.MustCompile(`(?i)\b(480p|480i)\b`)},
}

var sourceRules = []rule{
	{"WEB-DL", regexp.MustCompile(`(?i)\bweb[-_. ]?dl\b`)},
	{"WEBRip", regexp.MustCompile(`(?i)\bweb[-_. ]?rip\b`)},
	{"BluRay", regexp.MustCompile(`(?i)\b(blu[-_. ]?ray|bdrip|brrip|bdremux)\b`)},
	{"HDTV", regexp.MustCompile(`(?i)\bhdtv\b`)},
	{"DVDRip", regexp.MustCompile(`(?i)\b(dvdrip|dvdscr|dvd)\b`)},
	{"CAM", regexp.MustCompile(`(?i)\b(camrip|hdcam|cam|telesync|hdts)\b`)},
	{"WEB", regexp.MustCompile(`(?i)\bweb\b`)},
}

var codecRules = []rule{
	{"x265", regexp.MustCompile(`(?i)\b(x265|h[. ]?265|hevc)\b`)},
	{"x264", regexp.MustCompile(`(?i)\b(x264|h[. ]?264|avc)\b`)},
	{"AV1", regexp.MustCompile(`(?i)\bav1\b`)},
	{"XviD", regexp.MustCompile(`(?i)\bxvid\b`)},
	{"DivX", regexp.MustCompile(`(?i)\bdivx\b`)},
}

var audioRules = []rule{
	{"Atmos", regexp.MustCompile(`(?i)\batmos\b`)},
	{"TrueHD", regexp.MustCompile(`(?i)\btrue[-_. ]?hd\b`)},
	{"DTS-HD", regexp.MustCompile(`(?i)\bdts[-_. ]?hd\b`)},
	{"DTS", regexp.MustCompile(`(?i)\bdts\b`)},
	{"DDP", regexp.MustCompile(`(?i)\b(ddp|dd\+|eac3|e[-_. ]?ac[-_. ]?3)`)},
	{"AC3", regexp.MustCompile(`(?i)\b(ac3|dd5[. ]?1|dolby[ .]?digital)\b`)},
	{"AAC", regexp.MustCompile(`(?i)\baac\b`)},
	{"FLAC", regexp.MustCompile(`(?i)\bflac\b`)},
	{"MP3", regexp.MustCompile(`(?i)\bmp3\b`)},
}

var languageRules = []rule{
	{"French", regexp.MustCompile(`(?i)\b(french|truefrench|vostfr)\b`)},
	{"German", regexp.MustCompile(`(?i)\b(german|deutsch)\b`)},
	{"Italian", regexp.MustCompile(`(?i)\b(italian|ita)\b`)},
	{"Spanish", regexp.MustCompile(`(?i)\b(spanish|castellano|latino)\b`)},
	{"Korean", regexp.MustCompile(`(?i)\bkorean\b`)},
	{"Japanese", regexp.MustCompile(`(?i)\bjapanese\b`)},
	{"Hindi", regexp.MustCompile(`(?i)\bhindi\b`)},
	{"Russian", regexp.MustCompile(`(?i)\brussian\b`)},
	{"Multi", regexp.MustCompile(`(?i)\bmulti\b`)},
}

var (
	properRe = regexp.MustCompile(`(?i)\bproper\b`)
	repackRe = regexp.MustCompile(`(?i)\brepack\b`)
	yearRe   = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	groupRes = []*regexp.Regexp{
		regexp.MustCompile(`-([A-Za-z0-9]+)(?:\.\w{3})?$`),
		regexp.MustCompile(`\[([A-Za-z0-9]+)\]$`),
	}
	separatorRe = regexp.MustCompile(`[._-]`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// Parse maps a raw release name to structured metadata. It is deterministic
// and total: malformed input degrades to a result carrying only the cleaned
// title, never an error.
func Parse(raw string) models.ParsedTitle {
	info := models.ParsedTitle{Type: models.MediaTypeUnknown, Language: "English"}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return info
	}

	// Television detection: first pattern family that matches wins.
	tvStart := -1
	for _, re := range tvPatterns {
		m := re.FindStringSubmatchIndex(raw)
		if m == nil {
			continue
		}
		season, _ := strconv.Atoi(raw[m[2]:m[3]])
		episode, _ := strconv.Atoi(raw[m[4]:m[5]])
		info.Type = models.MediaTypeTV
		info.Season = season
		info.Episode = episode
		tvStart = m[0]
		break
	}
	if info.Type == models.MediaTypeUnknown {
		info.Type = models.MediaTypeMovie
	}

	info.Title = extractTitle(raw, tvStart)

	if m := yearRe.FindAllString(raw, -1); len(m) > 0 {
		// Release names put the year after the title, so the last token is
		// the release year even when the title itself starts with one.
		info.Year, _ = strconv.Atoi(m[len(m)-1])
	}

	info.Quality = firstMatch(qualityRules, raw)
	info.Source = firstMatch(sourceRules, raw)
	info.Codec = firstMatch(codecRules, raw)
	info.Audio = firstMatch(audioRules, raw)

	for _, re := range groupRes {
		if m := re.FindStringSubmatch(raw); m != nil {
			info.ReleaseGroup = strings.ToUpper(m[1])
			break
		}
	}

	info.Proper = properRe.MatchString(raw)
	info.Repack = repackRe.MatchString(raw)

	if lang := firstMatch(languageRules, raw); lang != "" {
		info.Language = lang
	}

	return info
}

// firstMatch evaluates a rule table in order and returns the value of the
// first rule matching anywhere in the text. One value per category.
func firstMatch(rules []rule, text string) string {
	for _, r := range rules {
		if r.re.MatchString(text) {
			return r.value
		}
	}
	return ""
}

// extractTitle takes everything before the first boundary marker (a quality
// token, a source token, or the season/episode marker), strips season and
// year tokens, and folds separators to spaces.
func extractTitle(raw string, tvStart int) string {
	boundary := len(raw)
	if tvStart >= 0 && tvStart < boundary {
		boundary = tvStart
	}
	for _, r := range qualityRules {
		if loc := r.re.FindStringIndex(raw); loc != nil && loc[0] < boundary {
			boundary = loc[0]
		}
	}
	for _, r := range sourceRules {
		if loc := r.re.FindStringIndex(raw); loc != nil && loc[0] < boundary {
			boundary = loc[0]
		}
	}

	candidate := raw[:boundary]
	for _, re := range tvPatterns {
		candidate = re.ReplaceAllString(candidate, " ")
	}
	candidate = yearRe.ReplaceAllString(candidate, " ")
	candidate = separatorRe.ReplaceAllString(candidate, " ")
	candidate = strings.NewReplacer("(", " ", ")", " ", "[", " ", "]", " ").Replace(candidate)
	candidate = spaceRe.ReplaceAllString(candidate, " ")
	return strings.TrimSpace(candidate)
}
