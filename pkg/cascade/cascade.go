// Package cascade turns a keyword into a single direct-download URL by
// chaining lookups across the catalogue site, the workshop browse page, the
// mod host, and a mirror resolver, in a fixed fallback order that
// short-circuits on the first usable result.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/workshopdl/workshopdl/models"
	"github.com/workshopdl/workshopdl/pkg/extract"
	"github.com/workshopdl/workshopdl/pkg/transport"
)

// ErrNoExactMatch is the cascade's terminal failure: no fallback path
// produced a direct URL. Deliberately strict — the resolver refuses to guess
// at "probably right" items, so callers should search with full official
// titles.
var ErrNoExactMatch = errors.New("no exact match or direct URL")

// hostCooldown is the courtesy pause before replaying a mod-host form, so
// concurrent tasks do not hammer its rate limiter.
const hostCooldown = 3 * time.Second

// Resolver runs the fallback sequence over one transport session.
type Resolver struct {
	session  *transport.Session
	sites    models.Sites
	logger   *slog.Logger
	cooldown time.Duration
}

// NewResolver returns a Resolver bound to a session.
func NewResolver(session *transport.Session, sites models.Sites, logger *slog.Logger) *Resolver {
	return &Resolver{
		session:  session,
		sites:    sites,
		logger:   logger,
		cooldown: hostCooldown,
	}
}

// Resolve maps a cleaned keyword to a ResolvedTarget. scope, when non-nil,
// restricts the search to one game and unlocks the workshop-browse path;
// without it only the catalogue exact-match path runs. Transport failures
// surface as errors once the session's retries are spent; exhausting every
// fallback yields ErrNoExactMatch.
func (r *Resolver) Resolve(ctx context.Context, scope *models.GameRecord, keyword string) (*models.ResolvedTarget, error) {
	target := &models.ResolvedTarget{}

	if scope != nil && scope.AppID > 0 {
		item, err := r.firstWorkshopItem(ctx, scope.AppID, keyword)
		if err != nil {
			return nil, err
		}
		if item != nil {
			target.Title = item.Title
			itemURL := fmt.Sprintf("%s/sharedfiles/filedetails/?id=%s", strings.TrimRight(r.sites.WorkshopBase, "/"), item.ItemID)
			target.WorkshopURL = itemURL

			hit, err := r.catalogHitByItemID(ctx, scope.AppID, item.ItemID)
			if err != nil {
				return nil, err
			}
			if hit != nil {
				r.logger.Debug("catalogue hit by item id", "archive_id", hit.ArchiveID, "title", hit.Title)
				if hit.Title != "" {
					target.Title = hit.Title
				}
				direct, err := r.resolveModHost(ctx, hit.ModsLink, hit.SearchURL)
				if err != nil {
					return nil, err
				}
				target.DirectURL = direct
			}
			if target.DirectURL == "" {
				direct, err := r.resolveMirror(ctx, itemURL, item.ItemID, scope.AppID)
				if err != nil {
					return nil, err
				}
				target.DirectURL = direct
			}
		}
	}

	if target.DirectURL == "" {
		appID := 0
		if scope != nil {
			appID = scope.AppID
		}
		hit, err := r.exactCatalogHit(ctx, keyword, appID)
		if err != nil {
			return nil, err
		}
		if hit != nil {
			r.logger.Debug("exact catalogue match", "archive_id", hit.ArchiveID, "title", hit.Title)
			if hit.Title != "" {
				target.Title = hit.Title
			}
			direct, err := r.resolveModHost(ctx, hit.ModsLink, hit.SearchURL)
			if err != nil {
				return nil, err
			}
			target.DirectURL = direct
		}
	}

	if target.DirectURL == "" {
		return nil, ErrNoExactMatch
	}
	if target.Title == "" {
		target.Title = keyword
	}
	return target, nil
}

// catalogResults queries the catalogue's free-text search, scoped to appID
// when it is non-zero.
func (r *Resolver) catalogResults(ctx context.Context, searchText string, appID int) ([]extract.CatalogResult, error) {
	searchURL := fmt.Sprintf("%s/?s=%s", strings.TrimRight(r.sites.CatalogBase, "/"), url.QueryEscape(searchText))
	if appID > 0 {
		searchURL += "&app=" + strconv.Itoa(appID)
	}
	body, err := r.session.Get(ctx, searchURL, "")
	if err != nil {
		return nil, fmt.Errorf("catalog search failed: %w", err)
	}
	return extract.CatalogResults(body, searchURL), nil
}

// exactCatalogHit returns the hit whose normalized title equals the
// normalized search text, or nil. Substring and fuzzy matches are rejected
// on purpose.
func (r *Resolver) exactCatalogHit(ctx context.Context, searchText string, appID int) (*extract.CatalogResult, error) {
	results, err := r.catalogResults(ctx, searchText, appID)
	if err != nil {
		return nil, err
	}
	key := extract.NormalizeExactText(searchText)
	for i := range results {
		if extract.NormalizeExactText(results[i].Title) == key {
			return &results[i], nil
		}
	}
	return nil, nil
}

// catalogHitByItemID searches the catalogue for a workshop item id and takes
// the first hit.
func (r *Resolver) catalogHitByItemID(ctx context.Context, appID int, itemID string) (*extract.CatalogResult, error) {
	results, err := r.catalogResults(ctx, itemID, appID)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// firstWorkshopItem queries the workshop browse page scoped to appID and
// picks the candidate whose link echoes the search term, falling back to the
// first candidate. nil means the scoped path has nothing and control falls
// through to the exact-match path.
func (r *Resolver) firstWorkshopItem(ctx context.Context, appID int, searchText string) (*extract.WorkshopItem, error) {
	params := url.Values{
		"appid":                           {strconv.Itoa(appID)},
		"searchtext":                      {searchText},
		"childpublishedfileid":            {"0"},
		"browsesort":                      {"trend"},
		"section":                         {"readytouseitems"},
		"created_date_range_filter_start": {"0"},
		"created_date_range_filter_end":   {"0"},
		"updated_date_range_filter_start": {"0"},
		"updated_date_range_filter_end":   {"0"},
	}
	browseURL := fmt.Sprintf("%s/workshop/browse/?%s", strings.TrimRight(r.sites.WorkshopBase, "/"), params.Encode())
	body, err := r.session.Get(ctx, browseURL, "")
	if err != nil {
		return nil, fmt.Errorf("workshop browse failed: %w", err)
	}
	items := extract.WorkshopItems(body)
	if len(items) == 0 {
		return nil, nil
	}
	for i := range items {
		if strings.Contains(strings.ToLower(items[i].Href), "searchtext=") {
			return &items[i], nil
		}
	}
	return &items[0], nil
}

// resolveModHost fetches a mod-host page and extracts the direct URL,
// replaying the page's hidden form as a POST when the first fetch only
// yields the gated landing page.
func (r *Resolver) resolveModHost(ctx context.Context, modsLink, referer string) (string, error) {
	first, err := r.session.Get(ctx, modsLink, referer)
	if err != nil {
		return "", fmt.Errorf("mod host fetch failed: %w", err)
	}
	if direct := extract.DirectURL(first); direct != "" {
		return direct, nil
	}

	base := modsLink
	if u, err := url.Parse(modsLink); err == nil && u.Host != "" {
		base = u.Scheme + "://" + u.Host
	}
	action := extract.FormAction(first, modsLink, base)

	form := url.Values{}
	for name, value := range extract.HiddenInputs(first) {
		form.Set(name, value)
	}
	if !form.Has("method_free") {
		form.Set("method_free", "")
	}

	select {
	case <-time.After(r.cooldown):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	second, err := r.session.PostForm(ctx, action, form, referer)
	if err != nil {
		return "", fmt.Errorf("mod host form submit failed: %w", err)
	}
	return extract.DirectURL(second), nil
}

// resolveMirror asks the mirror site to resolve a workshop item page,
// falling back to its secondary API with the {item, app} pair scraped from
// the landing page's inline script.
func (r *Resolver) resolveMirror(ctx context.Context, itemURL, itemID string, appID int) (string, error) {
	first, err := r.session.PostForm(ctx, r.sites.MirrorHome, url.Values{"url": {itemURL}}, itemURL)
	if err != nil {
		return "", fmt.Errorf("mirror landing failed: %w", err)
	}
	if direct := extract.DirectURL(first); direct != "" {
		return direct, nil
	}

	item, app, ok := extract.ItemApp(first)
	if !ok {
		item, app = itemID, appID
	}
	referer := fmt.Sprintf("%s/download/view/%s", strings.TrimRight(r.sites.MirrorHome, "/"), item)
	second, err := r.session.PostForm(ctx, r.sites.MirrorAPI,
		url.Values{"item": {item}, "app": {strconv.Itoa(app)}}, referer)
	if err != nil {
		return "", fmt.Errorf("mirror api failed: %w", err)
	}
	return extract.DirectURL(second), nil
}

// SetCooldown overrides the mod-host form cool-down. Tests use this to avoid
// real sleeps.
func (r *Resolver) SetCooldown(d time.Duration) {
	r.cooldown = d
}
