package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/workshopdl/workshopdl/models"
)

// ReplaceGames swaps the cached games list for a freshly scraped one in a
// single transaction.
func (db *DB) ReplaceGames(games []models.GameRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM games"); err != nil {
		return fmt.Errorf("failed to clear games: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO games (app_id, slug, name, aliases) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, g := range games {
		aliases, err := json.Marshal(g.Aliases)
		if err != nil {
			return fmt.Errorf("failed to marshal aliases for %d: %w", g.AppID, err)
		}
		if _, err := stmt.Exec(g.AppID, g.Slug, g.Name, string(aliases)); err != nil {
			return fmt.Errorf("failed to insert game %d: %w", g.AppID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit games: %w", err)
	}
	return nil
}

// ListGames returns all cached games ordered by app id.
func (db *DB) ListGames() ([]models.GameRecord, error) {
	rows, err := db.Query("SELECT app_id, slug, name, aliases FROM games ORDER BY app_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query games: %w", err)
	}
	defer rows.Close()

	var games []models.GameRecord
	for rows.Next() {
		var g models.GameRecord
		var aliases string
		if err := rows.Scan(&g.AppID, &g.Slug, &g.Name, &aliases); err != nil {
			return nil, fmt.Errorf("failed to scan game: %w", err)
		}
		if err := json.Unmarshal([]byte(aliases), &g.Aliases); err != nil {
			return nil, fmt.Errorf("failed to parse aliases for %d: %w", g.AppID, err)
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// CountGames returns the number of cached games.
func (db *DB) CountGames() (int, error) {
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM games").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count games: %w", err)
	}
	return n, nil
}

// GetDisplayName looks up a cached localized name. The second return value
// distinguishes "never attempted" from "attempted, found nothing".
func (db *DB) GetDisplayName(key string) (string, bool, error) {
	var localized string
	err := db.QueryRow("SELECT localized FROM display_names WHERE name_key = ?", key).Scan(&localized)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query display name: %w", err)
	}
	return localized, true, nil
}

// SetDisplayName records a localized name (possibly empty, meaning the
// lookup came up dry).
func (db *DB) SetDisplayName(key, localized string) error {
	_, err := db.Exec(`INSERT INTO display_names (name_key, localized, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name_key) DO UPDATE SET localized = excluded.localized, updated_at = CURRENT_TIMESTAMP`,
		key, localized)
	if err != nil {
		return fmt.Errorf("failed to upsert display name: %w", err)
	}
	return nil
}
