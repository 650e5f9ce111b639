package database

import (
	"context"
	"embed"
	"testing"
	"testing/fstest"
)

//go:embed testdata/*.sql
var testMigrationsFS embed.FS

var testSource = Source{FS: testMigrationsFS, Dir: "testdata"}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	if err != nil {
		t.Fatalf("sqlite_master query: %v", err)
	}
	return n == 1
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testSource); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if !tableExists(t, db, "samples") {
		t.Fatal("table samples not created")
	}

	applied, pending, err := db.MigrationStatus(ctx, testSource)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || applied[0].Version != "20260101_000000" || applied[0].AppliedAt.IsZero() {
		t.Errorf("applied = %+v", applied)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}

	if err := db.Migrate(ctx, testSource); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, testSource); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.MigrateDown(ctx, testSource); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	if tableExists(t, db, "samples") {
		t.Error("table samples still present after rollback")
	}

	applied, pending, err := db.MigrationStatus(ctx, testSource)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 0 || len(pending) != 1 {
		t.Errorf("after rollback applied=%d pending=%d, want 0 and 1", len(applied), len(pending))
	}

	if err := db.MigrateDown(ctx, testSource); err != nil {
		t.Errorf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrate_FailureKeepsEarlierSteps(t *testing.T) {
	src := Source{FS: fstest.MapFS{
		"m/20260101_000000_first.up.sql":  {Data: []byte("CREATE TABLE first (id INTEGER);")},
		"m/20260102_000000_broken.up.sql": {Data: []byte("CREATE TABLE oops (")},
	}, Dir: "m"}

	db := openTestDB(t)
	ctx := context.Background()

	if err := db.Migrate(ctx, src); err == nil {
		t.Fatal("Migrate() with broken SQL succeeded")
	}
	if !tableExists(t, db, "first") {
		t.Error("earlier migration was rolled back")
	}
	applied, pending, err := db.MigrationStatus(ctx, src)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 1 || len(pending) != 1 || pending[0].Name != "broken" {
		t.Errorf("applied=%+v pending=%+v", applied, pending)
	}
}

func TestMigrate_EmptySource(t *testing.T) {
	db := openTestDB(t)
	for _, src := range []Source{{}, {FS: fstest.MapFS{}, Dir: "missing"}} {
		if err := db.Migrate(context.Background(), src); err != nil {
			t.Errorf("Migrate(%+v) error = %v", src, err)
		}
	}
}

func TestLoadMigrations_OrphanDown(t *testing.T) {
	src := Source{FS: fstest.MapFS{
		"20260101_000000_x.down.sql": {Data: []byte("DROP TABLE x;")},
	}}
	if _, err := LoadMigrations(src); err == nil {
		t.Error("LoadMigrations() accepted a down file without its up file")
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		file        string
		wantVersion string
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"20260118_120000_create_users.up.sql", "20260118_120000", "create_users", true, true},
		{"20260118_120000_add_email_to_users.down.sql", "20260118_120000", "add_email_to_users", false, true},
		{"20260118_120000.up.sql", "20260118_120000", "20260118_120000", true, true},
		{"readme.txt", "", "", false, false},
		{"20260118_120000_create_users.sql", "", "", false, false},
		{"invalid.up.sql", "", "", false, false},
		{"2026_12_x.up.sql", "", "", false, false},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, up, ok := parseMigrationFilename(tt.file)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if version != tt.wantVersion || name != tt.wantName || up != tt.wantUp {
				t.Errorf("got (%q, %q, %v), want (%q, %q, %v)",
					version, name, up, tt.wantVersion, tt.wantName, tt.wantUp)
			}
		})
	}
}
