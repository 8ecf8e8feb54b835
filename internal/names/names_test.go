package names

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/workshopdl/workshopdl/models"
	"github.com/workshopdl/workshopdl/pkg/db"
	"github.com/workshopdl/workshopdl/pkg/transport"
)

func testService(t *testing.T) (*Service, *db.DB) {
	t.Helper()
	store, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, logger, 10*time.Second, 0), store
}

func searchPage(blocks ...string) string {
	page := "<html><body><ol>"
	for _, b := range blocks {
		page += `<li class="b_algo"><h2>result</h2><p>` + b + `</p></li>`
	}
	return page + "</ol></body></html>"
}

func TestResolveFromSearch(t *testing.T) {
	var searchHits atomic.Int32
	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		searchHits.Add(1)
		fmt.Fprint(w, searchPage(
			"Unrelated chatter about other games",
			"Stellaris（群星）是一款太空策略游戏",
		))
	}))
	defer search.Close()
	translate := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("translate endpoint must not be called when search succeeds")
	}))
	defer translate.Close()

	svc, store := testService(t)
	svc.SetEndpoints(search.URL, translate.URL)
	session := transport.NewSession(10*time.Second, 0)

	name, err := svc.Resolve(context.Background(), session, "Stellaris")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if name != "群星" {
		t.Errorf("Resolve() = %q, want 群星", name)
	}

	// Second call must come from the cache.
	before := searchHits.Load()
	again, err := svc.Resolve(context.Background(), session, "Stellaris")
	if err != nil {
		t.Fatalf("cached Resolve() error: %v", err)
	}
	if again != "群星" {
		t.Errorf("cached Resolve() = %q", again)
	}
	if searchHits.Load() != before {
		t.Error("cached resolve hit the network")
	}

	cached, found, err := store.GetDisplayName("stellaris")
	if err != nil || !found || cached != "群星" {
		t.Errorf("cache state = %q, %v, %v", cached, found, err)
	}
}

func TestResolveFallsBackToTranslate(t *testing.T) {
	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPage("nothing useful here"))
	}))
	defer search.Close()
	translate := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "RimWorld" {
			t.Errorf("translate q = %q", r.URL.Query().Get("q"))
		}
		fmt.Fprint(w, `[[["边缘世界","RimWorld",null,null,10]],null,"en"]`)
	}))
	defer translate.Close()

	svc, _ := testService(t)
	svc.SetEndpoints(search.URL, translate.URL)

	name, err := svc.Resolve(context.Background(), transport.NewSession(10*time.Second, 0), "RimWorld")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if name != "边缘世界" {
		t.Errorf("Resolve() = %q, want 边缘世界", name)
	}
}

func TestResolveCachesMisses(t *testing.T) {
	var hits atomic.Int32
	dry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, searchPage())
	}))
	defer dry.Close()

	svc, store := testService(t)
	svc.SetEndpoints(dry.URL, dry.URL)
	session := transport.NewSession(10*time.Second, 0)

	name, err := svc.Resolve(context.Background(), session, "Obscure Game")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	if name != "" {
		t.Errorf("Resolve() = %q, want empty", name)
	}

	cached, found, err := store.GetDisplayName("obscure game")
	if err != nil || !found || cached != "" {
		t.Errorf("miss not cached: %q, %v, %v", cached, found, err)
	}

	// A cached miss is re-attempted (the cache only short-circuits good
	// names), so the lookup count grows but the behavior stays stable.
	if _, err := svc.Resolve(context.Background(), session, "Obscure Game"); err != nil {
		t.Fatalf("second Resolve() error: %v", err)
	}
	if hits.Load() == 0 {
		t.Error("expected at least one network lookup")
	}
}

func TestResolveRejectsJunkCandidates(t *testing.T) {
	search := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchPage(
			"Factorio（官方网站）提供下载",       // junk term
			"Factorio（Factorio Wiki）介绍", // latin run
			"Factorio（这是一段远远超过二十个字符上限的描述文字所以绝对不会被接受）", // too long
		))
	}))
	defer search.Close()
	translate := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[[["一二三","Factorio",null,null,10]],null,"en"]`)
	}))
	defer translate.Close()

	svc, _ := testService(t)
	svc.SetEndpoints(search.URL, translate.URL)

	name, err := svc.Resolve(context.Background(), transport.NewSession(10*time.Second, 0), "Factorio")
	if err != nil {
		t.Fatalf("Resolve() error: %v", err)
	}
	// All scraped candidates fail the filters; the translate fallback wins.
	if name != "一二三" {
		t.Errorf("Resolve() = %q, want the translation fallback", name)
	}
}

func TestResolveEmptyName(t *testing.T) {
	svc, _ := testService(t)
	name, err := svc.Resolve(context.Background(), transport.NewSession(time.Second, 0), "   ")
	if err != nil || name != "" {
		t.Errorf("Resolve(blank) = %q, %v", name, err)
	}
}

func TestPrefillShortCircuitsCJKTitles(t *testing.T) {
	svc, store := testService(t)
	games := []models.GameRecord{
		{AppID: 1, Name: "Cities: Skylines 城市天际线", Aliases: []string{"城市天际线"}},
		{AppID: 2, Name: "Stellaris 群星"},
	}

	// No endpoints are reachable; prefill must succeed purely from the CJK
	// halves of the scraped titles.
	svc.SetEndpoints("http://127.0.0.1:1", "http://127.0.0.1:1")
	if err := svc.Prefill(context.Background(), games, 2); err != nil {
		t.Fatalf("Prefill() error: %v", err)
	}

	for key, want := range map[string]string{
		"cities: skylines": "城市天际线",
		"stellaris":        "群星",
	} {
		got, found, err := store.GetDisplayName(key)
		if err != nil || !found || got != want {
			t.Errorf("display name for %q = %q, %v, %v; want %q", key, got, found, err, want)
		}
	}
}
