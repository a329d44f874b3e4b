package database

import (
	"testing"
)

func TestDialectProperties(t *testing.T) {
	tests := []struct {
		dialect      Dialect
		driver       string
		lastInsertID bool
		subdir       string
	}{
		{NewSQLiteDialect(), "sqlite3", true, "sqlite"},
		{NewPostgresDialect(), "postgres", false, "postgres"},
		{NewMySQLDialect(), "mysql", true, "mysql"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			if got := tt.dialect.DriverName(); got != tt.driver {
				t.Errorf("DriverName() = %q, want %q", got, tt.driver)
			}
			if got := tt.dialect.SupportsLastInsertId(); got != tt.lastInsertID {
				t.Errorf("SupportsLastInsertId() = %v, want %v", got, tt.lastInsertID)
			}
			if got := tt.dialect.MigrationsSubdir(); got != tt.subdir {
				t.Errorf("MigrationsSubdir() = %q, want %q", got, tt.subdir)
			}
		})
	}
}

func TestRewriteQuery(t *testing.T) {
	const labeled = "SELECT id FROM survey_responses WHERE study_id = ? AND user_id = ? LIMIT ? OFFSET ?"
	tests := []struct {
		dialect Dialect
		want    string
	}{
		{NewSQLiteDialect(), labeled},
		{NewMySQLDialect(), labeled},
		{NewPostgresDialect(), "SELECT id FROM survey_responses WHERE study_id = $1 AND user_id = $2 LIMIT $3 OFFSET $4"},
	}

	for _, tt := range tests {
		t.Run(tt.dialect.DriverName(), func(t *testing.T) {
			if got := tt.dialect.RewriteQuery(labeled); got != tt.want {
				t.Errorf("RewriteQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestInsertIgnoreQuery(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		expected string
	}{
		{
			name:     "SQLite",
			dialect:  NewSQLiteDialect(),
			expected: "INSERT OR IGNORE INTO user_studies (user_id, study_id) VALUES (?, ?)",
		},
		{
			name:     "PostgreSQL",
			dialect:  NewPostgresDialect(),
			expected: "INSERT INTO user_studies (user_id, study_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
		},
		{
			name:     "MySQL",
			dialect:  NewMySQLDialect(),
			expected: "INSERT IGNORE INTO user_studies (user_id, study_id) VALUES (?, ?)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.dialect.InsertIgnoreQuery("user_studies", "user_id", "study_id")
			if result != tt.expected {
				t.Errorf("InsertIgnoreQuery() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name     string
		dialect  Dialect
		config   DialectConfig
		expected string
	}{
		{
			name:     "SQLite adds pragmas",
			dialect:  NewSQLiteDialect(),
			config:   DialectConfig{Path: "study.db"},
			expected: "study.db?_foreign_keys=on&_busy_timeout=5000",
		},
		{
			name:     "SQLite keeps explicit params",
			dialect:  NewSQLiteDialect(),
			config:   DialectConfig{Path: "file:study.db?mode=ro"},
			expected: "file:study.db?mode=ro",
		},
		{
			name:     "MySQL adds parseTime",
			dialect:  NewMySQLDialect(),
			config:   DialectConfig{URL: "user:pw@tcp(db:3306)/study"},
			expected: "user:pw@tcp(db:3306)/study?parseTime=true&clientFoundRows=true",
		},
		{
			name:     "MySQL appends to existing params",
			dialect:  NewMySQLDialect(),
			config:   DialectConfig{URL: "user:pw@tcp(db:3306)/study?charset=utf8mb4"},
			expected: "user:pw@tcp(db:3306)/study?charset=utf8mb4&parseTime=true&clientFoundRows=true",
		},
		{
			name:     "PostgreSQL passthrough",
			dialect:  NewPostgresDialect(),
			config:   DialectConfig{URL: "postgres://db/study"},
			expected: "postgres://db/study",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.dialect.DSN(tt.config); got != tt.expected {
				t.Errorf("DSN() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestSplitStatements(t *testing.T) {
	content := "-- header\nCREATE TABLE a (\n  id INTEGER\n);\n\nCREATE INDEX i ON a (id);\n"
	stmts := splitStatements(content)
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[1] != "CREATE INDEX i ON a (id);" {
		t.Errorf("unexpected second statement %q", stmts[1])
	}
}

func TestSyncSequenceQuery(t *testing.T) {
	if q := NewSQLiteDialect().SyncSequenceQuery("users"); q != "" {
		t.Errorf("SQLite SyncSequenceQuery() = %q, want empty", q)
	}
	if q := NewMySQLDialect().SyncSequenceQuery("users"); q != "" {
		t.Errorf("MySQL SyncSequenceQuery() = %q, want empty", q)
	}
	want := "SELECT setval(pg_get_serial_sequence('users', 'id'), COALESCE((SELECT MAX(id) FROM users), 0) + 1, false)"
	if q := NewPostgresDialect().SyncSequenceQuery("users"); q != want {
		t.Errorf("PostgreSQL SyncSequenceQuery() = %q, want %q", q, want)
	}
}
