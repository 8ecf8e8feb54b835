// Package catalog maintains the supported-games directory: scraping the
// catalogue site's home page, caching records locally, and matching
// free-text queries against names, slugs, and generated aliases.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/workshopdl/workshopdl/models"
	"github.com/workshopdl/workshopdl/pkg/db"
	"github.com/workshopdl/workshopdl/pkg/extract"
	"github.com/workshopdl/workshopdl/pkg/transport"
)

// ErrNoMatch reports that a query matched no supported game.
var ErrNoMatch = errors.New("no matching game")

var (
	cjkRunRE     = regexp.MustCompile(`[\x{4e00}-\x{9fff}]{2,}`)
	cjkRE        = regexp.MustCompile(`[\x{4e00}-\x{9fff}]+`)
	latinRunRE   = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9 '&:;,+\-.]{2,}`)
	percentSeqRE = regexp.MustCompile(`%[0-9a-fA-F]{2}`)
	nameJunkRE   = regexp.MustCompile(`[^0-9a-z\x{4e00}-\x{9fff}]+`)
	tokenSplitRE = regexp.MustCompile(`[^a-z0-9]+`)
)

// Service is the game directory: a scraper in front of the SQLite cache.
type Service struct {
	store   *db.DB
	session *transport.Session
	sites   models.Sites
	logger  *slog.Logger
}

// NewService returns a catalog Service.
func NewService(store *db.DB, session *transport.Session, sites models.Sites, logger *slog.Logger) *Service {
	return &Service{store: store, session: session, sites: sites, logger: logger}
}

// Refresh scrapes the catalogue home page and replaces the cached list.
func (s *Service) Refresh(ctx context.Context) ([]models.GameRecord, error) {
	s.logger.Info("fetching supported games", "source", s.sites.CatalogBase)
	body, err := s.session.Get(ctx, strings.TrimRight(s.sites.CatalogBase, "/")+"/", "")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch games page: %w", err)
	}

	byApp := map[int]models.GameRecord{}
	for _, tile := range extract.SupportedGames(body) {
		name := extract.CleanText(tile.Title)
		byApp[tile.AppID] = models.GameRecord{
			AppID:   tile.AppID,
			Slug:    tile.Slug,
			Name:    name,
			Aliases: aliasVariants(name, tile.Slug),
		}
	}

	games := make([]models.GameRecord, 0, len(byApp))
	for _, g := range byApp {
		games = append(games, g)
	}
	sort.Slice(games, func(i, j int) bool { return games[i].AppID < games[j].AppID })

	if err := s.store.ReplaceGames(games); err != nil {
		return nil, err
	}
	s.logger.Info("games cache saved", "count", len(games))
	return games, nil
}

// Load returns the cached games list, refreshing it first when the cache is
// empty or forceRefresh is set.
func (s *Service) Load(ctx context.Context, forceRefresh bool) ([]models.GameRecord, error) {
	if !forceRefresh {
		games, err := s.store.ListGames()
		if err != nil {
			return nil, err
		}
		if len(games) > 0 {
			return games, nil
		}
	}
	return s.Refresh(ctx)
}

// Resolve maps a query (name, slug, alias, or numeric appid) to one game.
// Matching is deliberately looser than the item cascade: exact name/slug
// first, then normalized aliases, then substring containment.
func Resolve(games []models.GameRecord, query string, appID int) (*models.GameRecord, error) {
	if appID > 0 {
		for i := range games {
			if games[i].AppID == appID {
				return &games[i], nil
			}
		}
		return &models.GameRecord{AppID: appID, Name: "(Unknown)"}, nil
	}

	candidate := strings.TrimSpace(query)
	if candidate == "" {
		return nil, fmt.Errorf("%w: empty query", ErrNoMatch)
	}
	if n, err := strconv.Atoi(candidate); err == nil {
		return Resolve(games, "", n)
	}

	lower := strings.ToLower(candidate)
	key := normalizeName(candidate)

	for i := range games {
		if strings.ToLower(games[i].Slug) == lower || strings.ToLower(games[i].Name) == lower {
			return &games[i], nil
		}
	}
	for i := range games {
		for _, a := range games[i].Aliases {
			if normalizeName(a) == key {
				return &games[i], nil
			}
		}
	}
	for i := range games {
		g := &games[i]
		if strings.Contains(strings.ToLower(g.Slug), lower) || strings.Contains(strings.ToLower(g.Name), lower) {
			return g, nil
		}
		for _, a := range g.Aliases {
			if strings.Contains(normalizeName(a), key) {
				return g, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoMatch, candidate)
}

// Filter returns the games matching a free-text search.
func Filter(games []models.GameRecord, search string) []models.GameRecord {
	var out []models.GameRecord
	for _, g := range games {
		if Matches(g, search) {
			out = append(out, g)
		}
	}
	return out
}

// Matches reports whether one game matches a search string. CJK queries
// match against the localized side; Latin queries match name, decoded slug,
// and aliases, with a token-prefix fallback.
func Matches(g models.GameRecord, search string) bool {
	if search == "" {
		return true
	}

	if cjkRE.MatchString(search) {
		_, cjkName := extract.SplitNames(g.Name, g.Aliases)
		target := strings.TrimSpace(cjkName + " " + strings.Join(g.Aliases, " "))
		return strings.Contains(target, search)
	}

	q := strings.ToLower(strings.TrimSpace(search))
	latinName, _ := extract.SplitNames(g.Name, g.Aliases)
	slug, _ := url.QueryUnescape(g.Slug)
	blob := strings.ToLower(latinName + " " + slug + " " + strings.Join(g.Aliases, " "))
	if strings.Contains(blob, q) {
		return true
	}
	for _, token := range tokenSplitRE.Split(blob, -1) {
		if token != "" && strings.HasPrefix(token, q) {
			return true
		}
	}
	return false
}

// aliasVariants generates the searchable alias set for a game: the raw name,
// its CJK runs, its Latin runs, and slug spellings.
func aliasVariants(name, slug string) []string {
	seen := map[string]struct{}{}
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v != "" {
			seen[v] = struct{}{}
		}
	}
	if name != "" {
		add(name)
		for _, m := range cjkRunRE.FindAllString(name, -1) {
			add(m)
		}
		for _, m := range latinRunRE.FindAllString(name, -1) {
			add(m)
		}
	}
	if slug != "" {
		add(slug)
		if decoded, err := url.QueryUnescape(slug); err == nil {
			add(decoded)
			add(strings.ReplaceAll(decoded, "-", " "))
		}
	}
	variants := make([]string, 0, len(seen))
	for v := range seen {
		variants = append(variants, v)
	}
	sort.Strings(variants)
	return variants
}

// normalizeName reduces a name to its comparable core: lowercased, percent
// escapes dropped, everything but letters, digits, and CJK removed.
func normalizeName(s string) string {
	value := strings.ToLower(strings.TrimSpace(s))
	value = percentSeqRE.ReplaceAllString(value, " ")
	return nameJunkRE.ReplaceAllString(value, "")
}
