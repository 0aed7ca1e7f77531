package persist

import (
	"os"
	"path/filepath"
	"testing"
)

func tempTestDir(t *testing.T) string {
	dir := filepath.Join(os.TempDir(), "shardcore-persist-test", t.Name())
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	return dir
}

// TestSaveLoadJSONRoundTrip checks that a struct saved with SaveJSON comes
// back identical through LoadJSON.
func TestSaveLoadJSONRoundTrip(t *testing.T) {
	dir := tempTestDir(t)
	meta := Metadata{Header: "Test Struct", Version: "1.0.0"}

	type testStruct struct {
		One   string
		Two   uint64
		Three []byte
	}

	obj1 := testStruct{"dog", 25, []byte("more dog")}
	filename := filepath.Join(dir, "obj1.json")
	if err := SaveJSON(meta, obj1, filename); err != nil {
		t.Fatal(err)
	}

	var obj2 testStruct
	if err := LoadJSON(meta, &obj2, filename); err != nil {
		t.Fatal(err)
	}
	if obj2.One != obj1.One || obj2.Two != obj1.Two || string(obj2.Three) != string(obj1.Three) {
		t.Fatal("persist mismatch")
	}
}

// TestLoadJSONRejectsTempSuffix checks that loading a name ending in the
// temporary suffix is refused outright.
func TestLoadJSONRejectsTempSuffix(t *testing.T) {
	dir := tempTestDir(t)
	var obj struct{}
	err := LoadJSON(Metadata{}, &obj, filepath.Join(dir, "obj"+tempSuffix))
	if err != ErrBadFilenameSuffix {
		t.Fatalf("expected ErrBadFilenameSuffix, got %v", err)
	}
}

// TestLoadJSONBadMetadata checks that a mismatched header or version is
// rejected.
func TestLoadJSONBadMetadata(t *testing.T) {
	dir := tempTestDir(t)
	filename := filepath.Join(dir, "obj.json")
	if err := SaveJSON(Metadata{Header: "A", Version: "1"}, 42, filename); err != nil {
		t.Fatal(err)
	}

	var v int
	if err := LoadJSON(Metadata{Header: "B", Version: "1"}, &v, filename); err != ErrBadHeader {
		t.Fatalf("expected ErrBadHeader, got %v", err)
	}
	if err := LoadJSON(Metadata{Header: "A", Version: "2"}, &v, filename); err != ErrBadVersion {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}

// TestLogger checks that Logger brackets its output with STARTUP and
// SHUTDOWN lines.
func TestLogger(t *testing.T) {
	dir := tempTestDir(t)
	filename := filepath.Join(dir, "test.log")

	l, err := NewLogger(filename)
	if err != nil {
		t.Fatal(err)
	}
	l.Println("TEST: this should get written to the logfile")
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, want := range []string{"STARTUP", "TEST", "SHUTDOWN"} {
		if !contains(s, want) {
			t.Fatalf("log file missing expected substring %q:\n%s", want, s)
		}
	}
}

func contains(haystack, needle string) bool {
	return len(needle) == 0 || indexOf(haystack, needle) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// TestSafeFileCommit checks that data written to a SafeFile only appears
// at the final path after Commit.
func TestSafeFileCommit(t *testing.T) {
	dir := tempTestDir(t)
	finalPath := filepath.Join(dir, "test")

	sf, err := NewSafeFile(finalPath)
	if err != nil {
		t.Fatal(err)
	}
	if sf.Name() == finalPath {
		t.Fatal("safe file's temporary name must differ from the final name")
	}
	if _, err := sf.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(finalPath); err == nil {
		t.Fatal("final path should not exist before Commit")
	}
	if err := sf.Commit(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(finalPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "hello" {
		t.Fatalf("unexpected file contents: %q", b)
	}
}

// TestOpenDatabaseMetadataMismatch checks that reopening a database with a
// different header or version fails.
func TestOpenDatabaseMetadataMismatch(t *testing.T) {
	dir := tempTestDir(t)
	filename := filepath.Join(dir, "test.db")

	db, err := OpenDatabase(Metadata{Header: "shard-db", Version: "1.0.0"}, filename)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := OpenDatabase(Metadata{Header: "wrong-db", Version: "1.0.0"}, filename); err != ErrBadHeader {
		t.Fatalf("expected ErrBadHeader, got %v", err)
	}
	if _, err := OpenDatabase(Metadata{Header: "shard-db", Version: "2.0.0"}, filename); err != ErrBadVersion {
		t.Fatalf("expected ErrBadVersion, got %v", err)
	}
}
