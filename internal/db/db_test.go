package db

import "testing"

func TestOpen_MissingDSN(t *testing.T) {
	if _, err := Open("   "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestOpenAndMigrate_SQLite(t *testing.T) {
	conn, err := Open("file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !IsSQLite(conn) {
		t.Fatalf("expected sqlite dialect, got %q", DialectName(conn))
	}
	if errMigrate := Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if !conn.Migrator().HasTable("usages") && !conn.Migrator().HasTable("usage") {
		t.Fatal("expected usage table after migrate")
	}
}
