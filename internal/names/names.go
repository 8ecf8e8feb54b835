// Package names resolves best-effort localized (Chinese) display names for
// games. It is cosmetic: only the listing paths consume it, never the
// download cascade. Results — including misses — are cached so each name is
// looked up at most once.
package names

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pemistahl/lingua-go"

	"github.com/workshopdl/workshopdl/models"
	"github.com/workshopdl/workshopdl/pkg/db"
	"github.com/workshopdl/workshopdl/pkg/extract"
	"github.com/workshopdl/workshopdl/pkg/transport"
)

const (
	defaultSearchBase    = "https://www.bing.com/search"
	defaultTranslateBase = "https://translate.googleapis.com/translate_a/single"
)

var (
	cjkRE        = regexp.MustCompile(`[\x{4e00}-\x{9fff}]`)
	latinRunRE   = regexp.MustCompile(`[A-Za-z]{2,}`)
	spaceRE      = regexp.MustCompile(`\s+`)
	nearParensRE = `.{0,20}[（(]([^()（）]{1,20})[）)]`
)

// Terms that mark a candidate as scraped noise rather than a game name.
var junkTerms = []string{
	"美国东部时间", "东部时间", "太平洋时间", "协调世界时",
	"维基百科", "百科", "官方网站", "官网", "Steam", "steam",
	"以下简称", "来源", "中文", "为什么", "如何", "怎么", "事件",
	"教程", "攻略", "下载", "视频", "新闻", "问题", "可以", "支持", "包括",
}

// Service resolves and caches localized game names.
type Service struct {
	store    *db.DB
	logger   *slog.Logger
	timeout  time.Duration
	retries  int
	detector lingua.LanguageDetector

	searchBase    string
	translateBase string
}

// NewService returns a name Service. The language detector is built once;
// it arbitrates whether a scraped candidate is actually Chinese.
func NewService(store *db.DB, logger *slog.Logger, timeout time.Duration, retries int) *Service {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(lingua.Chinese, lingua.English).
		Build()
	return &Service{
		store:         store,
		logger:        logger,
		timeout:       timeout,
		retries:       retries,
		detector:      detector,
		searchBase:    defaultSearchBase,
		translateBase: defaultTranslateBase,
	}
}

// SetEndpoints overrides the web endpoints. Tests point these at fakes.
func (s *Service) SetEndpoints(searchBase, translateBase string) {
	s.searchBase = searchBase
	s.translateBase = translateBase
}

// Resolve returns the localized name for an English game name, consulting
// the cache first, then a web search, then a translation endpoint. An empty
// string means no good name exists; that outcome is cached too.
func (s *Service) Resolve(ctx context.Context, session *transport.Session, english string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(english))
	if key == "" {
		return "", nil
	}
	if cached, found, err := s.store.GetDisplayName(key); err != nil {
		return "", err
	} else if found && s.goodName(cached) {
		return cached, nil
	}

	name := s.searchWeb(ctx, session, english)
	if !s.goodName(name) {
		name = s.translate(ctx, session, english)
	}
	if !s.goodName(name) {
		name = ""
	}
	if err := s.store.SetDisplayName(key, name); err != nil {
		return "", err
	}
	return name, nil
}

// Prefill resolves localized names for a whole games list over a bounded
// worker pool. Games whose scraped title already carries a CJK name are
// cached directly without any network traffic.
func (s *Service) Prefill(ctx context.Context, games []models.GameRecord, workers int) error {
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan models.GameRecord, len(games))
	var wg sync.WaitGroup
	var mu sync.Mutex
	done, have := 0, 0

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			session := transport.NewSession(s.timeout, s.retries)
			for g := range jobs {
				english, cjk := extract.SplitNames(g.Name, g.Aliases)
				key := strings.ToLower(strings.TrimSpace(english))
				resolved := ""
				if key != "" {
					if cjk != "" {
						if err := s.store.SetDisplayName(key, cjk); err == nil {
							resolved = cjk
						}
					} else if name, err := s.Resolve(ctx, session, english); err == nil {
						resolved = name
					}
				}
				mu.Lock()
				done++
				if resolved != "" {
					have++
				}
				if done%20 == 0 || done == len(games) {
					s.logger.Info("prefill progress", "done", done, "total", len(games), "have_localized", have)
				}
				mu.Unlock()
				if ctx.Err() != nil {
					return
				}
			}
		}()
	}

	for _, g := range games {
		jobs <- g
	}
	close(jobs)
	wg.Wait()
	return ctx.Err()
}

// searchWeb scrapes web search result blocks for a parenthesized CJK name
// adjacent to the English title.
func (s *Service) searchWeb(ctx context.Context, session *transport.Session, english string) string {
	if english == "" {
		return ""
	}
	queries := []string{
		english + " 中文",
		`"` + english + `" 中文`,
		`"` + english + `" 中文名 游戏`,
	}
	after := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(english) + nearParensRE)
	before := regexp.MustCompile(`(?i)[（(]([^()（）]{1,20})[）)].{0,20}` + regexp.QuoteMeta(english))

	for _, q := range queries {
		searchURL := fmt.Sprintf("%s?q=%s&setlang=zh-hans", s.searchBase, url.QueryEscape(q))
		body, err := session.Get(ctx, searchURL, "")
		if err != nil {
			s.logger.Debug("name search failed", "query", q, "error", err)
			continue
		}
		for i, block := range resultBlocks(body) {
			if i >= 8 {
				break
			}
			if !strings.Contains(strings.ToLower(block), strings.ToLower(english)) {
				continue
			}
			for _, re := range []*regexp.Regexp{after, before} {
				if m := re.FindStringSubmatch(block); m != nil {
					if candidate := strings.TrimSpace(m[1]); s.goodName(candidate) {
						return candidate
					}
				}
			}
		}
	}
	return ""
}

// translate falls back to a public translation endpoint.
func (s *Service) translate(ctx context.Context, session *transport.Session, english string) string {
	if english == "" {
		return ""
	}
	reqURL := fmt.Sprintf("%s?client=gtx&sl=auto&tl=zh-CN&dt=t&q=%s", s.translateBase, url.QueryEscape(english))
	raw, err := session.Get(ctx, reqURL, "")
	if err != nil {
		return ""
	}

	// Response shape: [[[translated, original, ...], ...], ...]
	var payload []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &payload); err != nil || len(payload) == 0 {
		return ""
	}
	var segments [][]json.RawMessage
	if err := json.Unmarshal(payload[0], &segments); err != nil {
		return ""
	}
	var sb strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		var text string
		if err := json.Unmarshal(seg[0], &text); err == nil {
			sb.WriteString(text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if s.goodName(text) {
		return text
	}
	return ""
}

// goodName filters scraped candidates: plausible length, CJK content, no
// Latin runs, no junk terms, and the language detector agrees it reads as
// Chinese.
func (s *Service) goodName(candidate string) bool {
	c := strings.TrimSpace(candidate)
	runes := []rune(c)
	if len(runes) < 2 || len(runes) > 20 {
		return false
	}
	for _, term := range junkTerms {
		if strings.Contains(c, term) {
			return false
		}
	}
	if latinRunRE.MatchString(c) {
		return false
	}
	if !cjkRE.MatchString(c) {
		return false
	}
	if lang, ok := s.detector.DetectLanguageOf(c); ok && lang != lingua.Chinese {
		return false
	}
	return true
}

// resultBlocks pulls the flattened text of each organic search result.
func resultBlocks(body string) []string {
	var blocks []string
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return blocks
	}
	doc.Find("li.b_algo").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(spaceRE.ReplaceAllString(sel.Text(), " "))
		if text != "" {
			blocks = append(blocks, text)
		}
	})
	return blocks
}
