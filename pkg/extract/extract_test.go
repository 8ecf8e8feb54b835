package extract

import (
	"reflect"
	"testing"
)

func TestDirectURL(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "gateway link wins over plain archive",
			body: `<a href="https://s1.modsbase.com/cgi-bin/dl.cgi/abc123/mod.zip">dl</a>
			       <a href="https://other.example.com/files/mod.zip">alt</a>`,
			want: "https://s1.modsbase.com/cgi-bin/dl.cgi/abc123/mod.zip",
		},
		{
			name: "single-letter gateway variant",
			body: `<a href='//s2.example.com/cgi-bin/d.cgi/xyz/map.zip'>dl</a>`,
			want: "https://s2.example.com/cgi-bin/d.cgi/xyz/map.zip",
		},
		{
			name: "plain archive link",
			body: `<a href="https://files.example.com/archive/map.zip?key=1">get</a>`,
			want: "https://files.example.com/archive/map.zip?key=1",
		},
		{
			name: "protocol-relative archive normalized",
			body: `<a href="//files.example.com/map.zip">get</a>`,
			want: "https://files.example.com/map.zip",
		},
		{
			name: "confirmation page rejected even alongside nothing else",
			body: `<a href="https://modsbase.com/files/mod.zip.html">landing</a>`,
			want: "",
		},
		{
			name: "confirmation page rejected, real archive in same document wins",
			body: `<a href="https://modsbase.com/files/mod.zip.html">landing</a>
			       <a href="https://files.example.com/mod.zip">real</a>`,
			want: "https://files.example.com/mod.zip",
		},
		{
			name: "client-side redirect literal",
			body: `<script>window.open('//dl.example.com/payload?id=9')</script>`,
			want: "https://dl.example.com/payload?id=9",
		},
		{
			name: "location.href redirect",
			body: `<script>location.href("https://dl.example.com/out.zip")</script>`,
			want: "https://dl.example.com/out.zip",
		},
		{
			name: "nothing usable",
			body: `<a href="https://example.com/page.html">page</a>`,
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DirectURL(tt.body); got != tt.want {
				t.Errorf("DirectURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDirectURLIdempotent(t *testing.T) {
	body := `<a href="https://files.example.com/map.zip">get</a>`
	first := DirectURL(body)
	second := DirectURL(body)
	if first != second || first != "https://files.example.com/map.zip" {
		t.Errorf("DirectURL not stable: %q then %q", first, second)
	}
}

func TestHiddenInputs(t *testing.T) {
	body := `
	<form method="post" action="/download">
		<input type="hidden" name="op" value="download2">
		<input type="hidden" name="id" value="abc123">
		<input type="hidden" name="empty">
		<input type="text" name="visible" value="nope">
		<input type="hidden" value="anonymous">
	</form>`

	got := HiddenInputs(body)
	want := map[string]string{"op": "download2", "id": "abc123", "empty": ""}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("HiddenInputs() = %v, want %v", got, want)
	}
}

func TestFormAction(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		fallback string
		base     string
		want     string
	}{
		{
			name:     "absolute action",
			body:     `<form method="post" action="https://host.example.com/go"></form>`,
			fallback: "https://fallback.example.com/x",
			base:     "https://host.example.com",
			want:     "https://host.example.com/go",
		},
		{
			name:     "relative action resolved against base",
			body:     `<form method="POST" action="/submit"></form>`,
			fallback: "https://fallback.example.com/x",
			base:     "https://host.example.com",
			want:     "https://host.example.com/submit",
		},
		{
			name:     "protocol-relative action",
			body:     `<form method="post" action="//cdn.example.com/submit"></form>`,
			fallback: "https://fallback.example.com/x",
			base:     "https://host.example.com",
			want:     "https://cdn.example.com/submit",
		},
		{
			name:     "no post form falls back",
			body:     `<form method="get" action="/search"></form>`,
			fallback: "https://fallback.example.com/x",
			base:     "https://host.example.com",
			want:     "https://fallback.example.com/x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormAction(tt.body, tt.fallback, tt.base); got != tt.want {
				t.Errorf("FormAction() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCatalogResults(t *testing.T) {
	body := `
	<article>
		<h2 class="post-title entry-title">
		<a href="https://catalogue.example.com/archives/101" rel="bookmark">Example &amp; Map</a></h2>
		<div class="excerpt">
			<a class="skymods-excerpt-btn btn" href="https://modsbase.example.com/file101">Download</a>
		</div>
	</article>
	<article>
		<h2 class="post-title entry-title">
		<a href="https://catalogue.example.com/archives/102">Second <em>Mod</em></a></h2>
		<a class="skymods-excerpt-btn" href="https://modsbase.example.com/file102">Download</a>
	</article>`

	got := CatalogResults(body, "https://catalogue.example.com/?s=x")
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ArchiveID != "101" || got[0].Title != "Example & Map" ||
		got[0].ModsLink != "https://modsbase.example.com/file101" {
		t.Errorf("unexpected first result: %+v", got[0])
	}
	if got[1].ArchiveID != "102" || got[1].Title != "Second Mod" {
		t.Errorf("unexpected second result: %+v", got[1])
	}
	if got[0].SearchURL != "https://catalogue.example.com/?s=x" {
		t.Errorf("search URL not carried through: %q", got[0].SearchURL)
	}
}

func TestWorkshopItems(t *testing.T) {
	body := `
	<a href="https://steamcommunity.com/sharedfiles/filedetails/?id=111&searchtext=foo">Foo Item</a>
	<a href="https://steamcommunity.com/sharedfiles/filedetails/?id=222">Learn More</a>
	<a href="https://steamcommunity.com/sharedfiles/filedetails/?id=333">了解更多</a>
	<a href="https://steamcommunity.com/sharedfiles/filedetails/?id=444"><div>Bar Item</div></a>
	<a href="https://steamcommunity.com/sharedfiles/filedetails/?id=555">   </a>`

	got := WorkshopItems(body)
	if len(got) != 2 {
		t.Fatalf("expected 2 items, got %d: %+v", len(got), got)
	}
	if got[0].ItemID != "111" || got[0].Title != "Foo Item" {
		t.Errorf("unexpected first item: %+v", got[0])
	}
	if got[1].ItemID != "444" || got[1].Title != "Bar Item" {
		t.Errorf("unexpected second item: %+v", got[1])
	}
}

func TestItemApp(t *testing.T) {
	body := `<script>$.ajax({url: "/online", data: { item: 12345, app: 255710 }});</script>`
	item, app, ok := ItemApp(body)
	if !ok || item != "12345" || app != 255710 {
		t.Errorf("ItemApp() = %q, %d, %v", item, app, ok)
	}

	if _, _, ok := ItemApp("<script>var x = 1;</script>"); ok {
		t.Error("expected no match for unrelated script")
	}
}

func TestSupportedGames(t *testing.T) {
	body := `
	<div class="game-tile-wrapper">
		<a class="game-hover" href="https://catalogue.example.com/game/cities%3A-skylines"></a>
		<h2 class="game-title">Cities: Skylines 城市天际线</h2>
		<a class="game-buy-btn" href="https://store.steampowered.com/app/255710/CitiesSkylines/">Buy</a>
	</div>
	<div class="game-tile-wrapper">
		<a class="game-hover" href="https://catalogue.example.com/game/stellaris"></a>
		<h2 class="game-title">Stellaris</h2>
		<a class="game-buy-btn" href="https://store.steampowered.com/app/281990">Buy</a>
	</div>
	<div class="game-tile-wrapper">
		<h2 class="game-title">Broken tile, no links</h2>
	</div>`

	got := SupportedGames(body)
	if len(got) != 2 {
		t.Fatalf("expected 2 tiles, got %d", len(got))
	}
	if got[0].AppID != 255710 || got[0].Slug != "cities%3A-skylines" || got[0].Title != "Cities: Skylines 城市天际线" {
		t.Errorf("unexpected first tile: %+v", got[0])
	}
	if got[1].AppID != 281990 || got[1].Slug != "stellaris" {
		t.Errorf("unexpected second tile: %+v", got[1])
	}
}

func TestNormalizeExactText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Foo Mod", "foo mod"},
		{"  FOO   MOD  ", "foo mod"},
		{"Foo &amp; Mod", "foo & mod"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeExactText(tt.in); got != tt.want {
			t.Errorf("NormalizeExactText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCleanKeyword(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{" Example Map ", "Example Map"},
		{"某地图（汉化版）", "某地图"},
		{"（备注）", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CleanKeyword(tt.in); got != tt.want {
			t.Errorf("CleanKeyword(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSafeFilename(t *testing.T) {
	if got := SafeFilename(`a/b\c:d*e?f"g<h>i|j`); got != "a_b_c_d_e_f_g_h_i_j" {
		t.Errorf("SafeFilename() = %q", got)
	}
}

func TestSplitNames(t *testing.T) {
	tests := []struct {
		name      string
		aliases   []string
		wantLatin string
		wantCJK   string
	}{
		{name: "Cities: Skylines 城市天际线", wantLatin: "Cities: Skylines", wantCJK: "城市天际线"},
		{name: "RimWorld", wantLatin: "RimWorld", wantCJK: ""},
		{name: "Stellaris", aliases: []string{"Stellaris", "群星"}, wantLatin: "Stellaris", wantCJK: "群星"},
		{name: "群星", wantLatin: "群星", wantCJK: "群星"},
	}
	for _, tt := range tests {
		latin, cjk := SplitNames(tt.name, tt.aliases)
		if latin != tt.wantLatin || cjk != tt.wantCJK {
			t.Errorf("SplitNames(%q) = %q, %q; want %q, %q", tt.name, latin, cjk, tt.wantLatin, tt.wantCJK)
		}
	}
}
