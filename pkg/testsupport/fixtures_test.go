package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFixture(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.txt")
	testContent := []byte("test fixture content")

	if err := os.WriteFile(testFile, testContent, 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	result := LoadFixture(t, testFile)
	if string(result) != string(testContent) {
		t.Errorf("expected %q, got %q", testContent, result)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "test.json")
	if err := os.WriteFile(testFile, []byte(`{"name":"test","value":42}`), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	var result struct {
		Name  string `json:"name"`
		Value int    `json:"value"`
	}
	LoadFixtureJSON(t, testFile, &result)

	if result.Name != "test" || result.Value != 42 {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestCompareWithGoldenJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "golden", "out.json")
	value := map[string]any{"id": "1", "title": "hello"}

	// first run creates the file
	CompareWithGoldenJSON(t, path, value)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected golden file to be created: %v", err)
	}

	// second run compares against it
	CompareWithGoldenJSON(t, path, value)
}

func TestPaths(t *testing.T) {
	if got, want := FixturePath("a.json"), filepath.Join("testdata", "a.json"); got != want {
		t.Errorf("FixturePath() = %q, want %q", got, want)
	}
	if got, want := GoldenPath("a.json"), filepath.Join("testdata", "golden", "a.json"); got != want {
		t.Errorf("GoldenPath() = %q, want %q", got, want)
	}
}

func TestClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewClock(start)

	if !c.Now().Equal(start) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start)
	}
	c.Advance(2 * time.Second)
	if got := c.Now().Sub(start); got != 2*time.Second {
		t.Errorf("advanced by %v, want 2s", got)
	}
}

func TestNewSQLiteDB(t *testing.T) {
	db := NewSQLiteDB(t, `CREATE TABLE items (id TEXT PRIMARY KEY, name TEXT)`)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `INSERT INTO items (id, name) VALUES ('1', 'a')`); err != nil {
		t.Fatalf("insert failed: %v", err)
	}

	var count int
	if err := db.NewSelect().Table("items").ColumnExpr("count(*)").Scan(ctx, &count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}
