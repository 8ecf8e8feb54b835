package db

const schema = `
-- Performance and reliability settings
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;

-- Supported games scraped from the catalogue home page
CREATE TABLE IF NOT EXISTS games (
    app_id INTEGER PRIMARY KEY,
    slug TEXT NOT NULL,
    name TEXT NOT NULL,
    aliases TEXT NOT NULL DEFAULT '[]',  -- JSON array of alias strings
    refreshed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_games_slug ON games(slug);
CREATE INDEX IF NOT EXISTS idx_games_name ON games(name);

-- Localized display names, keyed by the lowercased English game name.
-- Empty value records a resolution attempt that found nothing, so failed
-- lookups are not retried on every listing.
CREATE TABLE IF NOT EXISTS display_names (
    name_key TEXT PRIMARY KEY,
    localized TEXT NOT NULL DEFAULT '',
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`
