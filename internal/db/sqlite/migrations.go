// Package sqlite provides SQLite database operations for reliefline.
package sqlite

// schema holds the full table set. Statements are idempotent so Migrate can
// run at every start and after the database file watcher detects deletion.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS callers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		phone_hash TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL DEFAULT 'caller'
			CHECK (role IN ('caller', 'volunteer', 'ngo', 'government', 'admin')),
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at_epoch INTEGER NOT NULL,
		last_seen_epoch INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS resources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		provider_name TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		description TEXT,
		resource_type TEXT NOT NULL
			CHECK (resource_type IN ('shelter', 'food', 'transport')),
		location TEXT NOT NULL,
		latitude REAL,
		longitude REAL,
		total_capacity INTEGER NOT NULL DEFAULT 0,
		available_capacity INTEGER NOT NULL DEFAULT 0
			CHECK (available_capacity >= 0),
		contact_phone TEXT,
		price_per_unit REAL NOT NULL DEFAULT 0,
		currency TEXT NOT NULL DEFAULT 'NGN',
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at_epoch INTEGER NOT NULL,
		updated_at_epoch INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_resources_type_active
		ON resources (resource_type, is_active, available_capacity)`,

	`CREATE TABLE IF NOT EXISTS emergency_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		reference_number TEXT NOT NULL UNIQUE,
		caller_id INTEGER NOT NULL REFERENCES callers (id),
		resource_id INTEGER REFERENCES resources (id),
		resource_type TEXT NOT NULL
			CHECK (resource_type IN ('shelter', 'food', 'transport')),
		location TEXT NOT NULL,
		latitude REAL,
		longitude REAL,
		quantity INTEGER NOT NULL DEFAULT 1,
		status TEXT NOT NULL DEFAULT 'pending'
			CHECK (status IN ('pending', 'matched', 'confirmed', 'completed', 'cancelled')),
		priority INTEGER NOT NULL DEFAULT 1,
		total_cost REAL NOT NULL DEFAULT 0,
		created_at_epoch INTEGER NOT NULL,
		matched_at_epoch INTEGER,
		confirmed_at_epoch INTEGER,
		completed_at_epoch INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_status_created
		ON emergency_requests (status, created_at_epoch)`,
	`CREATE INDEX IF NOT EXISTS idx_requests_caller_created
		ON emergency_requests (caller_id, created_at_epoch DESC)`,

	`CREATE TABLE IF NOT EXISTS ussd_sessions (
		session_id TEXT PRIMARY KEY,
		caller_id INTEGER NOT NULL REFERENCES callers (id),
		current_step TEXT NOT NULL DEFAULT 'start',
		selections TEXT,
		created_at_epoch INTEGER NOT NULL,
		last_activity_epoch INTEGER NOT NULL,
		expires_at_epoch INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_expires
		ON ussd_sessions (expires_at_epoch)`,

	`CREATE TABLE IF NOT EXISTS activity_log (
		id TEXT PRIMARY KEY,
		caller_id INTEGER NOT NULL,
		action TEXT NOT NULL,
		location TEXT,
		created_at_epoch INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_activity_caller_action
		ON activity_log (caller_id, action, created_at_epoch)`,
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
