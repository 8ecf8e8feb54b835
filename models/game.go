package models

// GameRecord is one supported game as scraped from the catalogue site's home
// page and cached locally.
type GameRecord struct {
	AppID   int      `json:"app_id"`
	Slug    string   `json:"slug"`
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}
