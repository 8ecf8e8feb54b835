// Package extract holds the pure text-extraction rules applied to the raw
// HTML the third-party sites serve. Every function is stateless: input text
// in, structured candidates out. An empty result is not an error — the
// cascade treats it as "try the next fallback".
//
// The exact selectors and patterns here mirror the markup the sites serve
// today and are expected to rot; they are deliberately concentrated in this
// one package.
package extract

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// directURLPatterns are tried in priority order: download-gateway CGI links
// first, then plain archive links, then client-side redirect calls.
var directURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)href="((?:https?:)?//[^"\s]*?/cgi-bin/dl?\.cgi/[^"\s]+)"`),
	regexp.MustCompile(`(?is)href='((?:https?:)?//[^'\s]*?/cgi-bin/dl?\.cgi/[^'\s]+)'`),
	regexp.MustCompile(`(?is)href="((?:https?:)?//[^"\s]+\.zip(?:\?[^"\s]*)?)"`),
	regexp.MustCompile(`(?is)href='((?:https?:)?//[^'\s]+\.zip(?:\?[^'\s]*)?)'`),
	regexp.MustCompile(`(?is)(?:location\.href|window\.open)\s*\(\s*['"]((?:https?:)?//[^'"\s]+)['"]\s*\)`),
}

var (
	zipHTMLSuffixRE   = regexp.MustCompile(`(?i)\.zip\.html(?:\?|$)`)
	itemAppRE         = regexp.MustCompile(`(?is)data:\s*\{\s*item:\s*(\d+),\s*app:\s*(\d+)\s*\}`)
	cjkSeqRE          = regexp.MustCompile(`[\x{4e00}-\x{9fff}]+`)
	appLinkRE         = regexp.MustCompile(`(?i)/app/(\d+)`)
	itemIDRE          = regexp.MustCompile(`(?i)[?&]id=(\d+)`)
	tagRE             = regexp.MustCompile(`(?s)<.*?>`)
	whitespaceRE      = regexp.MustCompile(`\s+`)
	fullWidthParensRE = regexp.MustCompile(`（[^）]*）`)
	unsafeFilenameRE  = regexp.MustCompile(`[\\/:*?"<>|]+`)

	// catalogResultRE pairs a result's title anchor with the mod-host button
	// that follows it inside the same post block. The pairing spans unknown
	// nesting, which is why this one stays a regex instead of a selector.
	// Hosts are left open so the patterns survive the sites moving domains.
	catalogResultRE = regexp.MustCompile(`(?is)<h2 class="post-title entry-title">\s*` +
		`<a href="(https?://[^"]*?/archives/(\d+))"[^>]*>(.*?)</a>.*?` +
		`<a class="skymods-excerpt-btn[^"]*" href="(https?://[^"]+)"`)
)

// CatalogResult is one hit from the catalogue site's search page.
type CatalogResult struct {
	ArchiveID string
	Title     string
	ModsLink  string
	SearchURL string
}

// WorkshopItem is one candidate from the workshop browse page.
type WorkshopItem struct {
	ItemID string
	Title  string
	Href   string
}

// GameTile is one supported-game tile from the catalogue home page.
type GameTile struct {
	AppID int
	Slug  string
	Title string
}

// DirectURL scans body for a direct-download link, trying each rule in
// priority order. The result is scheme-normalized; links that lead to the
// mod host's confirmation landing page instead of the payload are rejected.
// Returns "" when nothing usable is present.
func DirectURL(body string) string {
	for _, re := range directURLPatterns {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			if u := NormalizeDirectURL(m[1]); u != "" {
				return u
			}
		}
	}
	return ""
}

// NormalizeDirectURL makes protocol-relative URLs explicit and rejects
// confirmation-page URLs masquerading as archives.
func NormalizeDirectURL(u string) string {
	if u == "" {
		return ""
	}
	if strings.HasPrefix(u, "//") {
		u = "https:" + u
	}
	if zipHTMLSuffixRE.MatchString(u) {
		return ""
	}
	return u
}

// HiddenInputs collects name/value pairs from hidden form fields, for replay
// as a POST body.
func HiddenInputs(body string) map[string]string {
	result := map[string]string{}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return result
	}
	doc.Find(`input[type="hidden"]`).Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		value := s.AttrOr("value", "")
		result[name] = value
	})
	return result
}

// FormAction returns the action of the first POST form in body, resolved
// against base for relative and protocol-relative actions. fallback is
// returned when no POST form declares an action.
func FormAction(body, fallback, base string) string {
	action := ""
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err == nil {
		doc.Find("form").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if !strings.EqualFold(s.AttrOr("method", ""), "post") {
				return true
			}
			if a, ok := s.Attr("action"); ok && a != "" {
				action = a
				return false
			}
			return true
		})
	}
	if action == "" {
		action = fallback
	}
	if strings.HasPrefix(action, "//") {
		return "https:" + action
	}
	if strings.HasPrefix(action, "/") {
		return strings.TrimRight(base, "/") + action
	}
	return action
}

// CatalogResults extracts search hits from a catalogue search page.
// searchURL is carried through so later steps can use it as a referer.
func CatalogResults(body, searchURL string) []CatalogResult {
	var results []CatalogResult
	for _, m := range catalogResultRE.FindAllStringSubmatch(body, -1) {
		results = append(results, CatalogResult{
			ArchiveID: m[2],
			Title:     CleanText(m[3]),
			ModsLink:  m[4],
			SearchURL: searchURL,
		})
	}
	return results
}

// WorkshopItems extracts item candidates from a workshop browse page.
// Anchors with empty titles or "learn more" pseudo-links are dropped.
func WorkshopItems(body string) []WorkshopItem {
	var items []WorkshopItem
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return items
	}
	doc.Find(`a[href*="sharedfiles/filedetails/?id="]`).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		m := itemIDRE.FindStringSubmatch(href)
		if m == nil {
			return
		}
		title := strings.TrimSpace(s.Text())
		lower := strings.ToLower(title)
		if title == "" || lower == "learn more" || title == "了解更多" {
			return
		}
		items = append(items, WorkshopItem{ItemID: m[1], Title: title, Href: href})
	})
	return items
}

// ItemApp pulls the {item, app} identifier pair embedded in the mirror
// site's inline script.
func ItemApp(body string) (item string, app int, ok bool) {
	m := itemAppRE.FindStringSubmatch(body)
	if m == nil {
		return "", 0, false
	}
	app, err := strconv.Atoi(m[2])
	if err != nil {
		return "", 0, false
	}
	return m[1], app, true
}

// SupportedGames extracts game tiles from the catalogue home page.
func SupportedGames(body string) []GameTile {
	var tiles []GameTile
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return tiles
	}
	doc.Find("div.game-tile-wrapper").Each(func(_ int, s *goquery.Selection) {
		hover, ok := s.Find("a.game-hover").Attr("href")
		if !ok {
			return
		}
		m := appLinkRE.FindStringSubmatch(s.Find("a.game-buy-btn").AttrOr("href", ""))
		if m == nil {
			return
		}
		appID, err := strconv.Atoi(m[1])
		if err != nil {
			return
		}
		idx := strings.LastIndex(hover, "/game/")
		if idx < 0 {
			return
		}
		slug := strings.TrimSpace(hover[idx+len("/game/"):])
		tiles = append(tiles, GameTile{
			AppID: appID,
			Slug:  slug,
			Title: strings.TrimSpace(s.Find("h2.game-title").Text()),
		})
	})
	return tiles
}

// SplitNames separates a display name into its Latin and CJK parts, pulling
// a CJK name out of the aliases when the name itself has none.
func SplitNames(name string, aliases []string) (latin, cjk string) {
	cjk = strings.TrimSpace(strings.Join(cjkSeqRE.FindAllString(name, -1), " "))
	latin = strings.TrimSpace(whitespaceRE.ReplaceAllString(cjkSeqRE.ReplaceAllString(name, " "), " "))

	if cjk == "" {
		for _, a := range aliases {
			if parts := cjkSeqRE.FindAllString(a, -1); len(parts) > 0 {
				cjk = strings.TrimSpace(strings.Join(parts, " "))
				break
			}
		}
	}
	if latin == "" {
		latin = name
	}
	return latin, cjk
}

// CleanText strips markup and decodes HTML entities.
func CleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(tagRE.ReplaceAllString(s, "")))
}

// NormalizeExactText canonicalizes a title for exact-match comparison:
// entity-decoded, trimmed, lowercased, inner whitespace collapsed.
func NormalizeExactText(s string) string {
	value := strings.ToLower(strings.TrimSpace(html.UnescapeString(s)))
	return whitespaceRE.ReplaceAllString(value, " ")
}

// CleanKeyword trims a raw keyword and strips full-width parenthetical
// annotations. An empty result means the keyword is unusable.
func CleanKeyword(s string) string {
	return strings.TrimSpace(fullWidthParensRE.ReplaceAllString(strings.TrimSpace(s), ""))
}

// SafeFilename replaces filesystem-hostile runes.
func SafeFilename(s string) string {
	return unsafeFilenameRE.ReplaceAllString(s, "_")
}
