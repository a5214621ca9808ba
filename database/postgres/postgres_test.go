package postgres

import "testing"

func TestDSN(t *testing.T) {
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("DB_USER", "proctor")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("DB_NAME", "proctoring")
	t.Setenv("DB_SSLMODE", "")

	want := "host=localhost port=5432 user=proctor password=secret dbname=proctoring sslmode=disable"
	if got := DSN(); got != want {
		t.Errorf("Expected DSN %q, got %q", want, got)
	}

	t.Setenv("DB_SSLMODE", "require")
	want = "host=localhost port=5432 user=proctor password=secret dbname=proctoring sslmode=require"
	if got := DSN(); got != want {
		t.Errorf("Expected DSN %q, got %q", want, got)
	}
}
