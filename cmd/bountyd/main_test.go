package main

import (
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	"bountyexchange/config"
)

func TestResolveGenesisPathPrecedence(t *testing.T) {
	lookup := func(key string) (string, bool) {
		if key != genesisPathEnv {
			t.Fatalf("unexpected lookup key: %s", key)
		}
		return "env-path", true
	}

	t.Run("cli flag takes precedence", func(t *testing.T) {
		if path := resolveGenesisPath("cli-path", "cfg-path", lookup); path != "cli-path" {
			t.Fatalf("unexpected path: got %q want %q", path, "cli-path")
		}
	})

	t.Run("environment overrides config", func(t *testing.T) {
		if path := resolveGenesisPath("", "cfg-path", lookup); path != "env-path" {
			t.Fatalf("unexpected path: got %q want %q", path, "env-path")
		}
	})

	t.Run("config used when no other sources", func(t *testing.T) {
		empty := func(string) (string, bool) { return "", false }
		if path := resolveGenesisPath("", " cfg-path ", empty); path != "cfg-path" {
			t.Fatalf("unexpected path: got %q want %q", path, "cfg-path")
		}
	})

	t.Run("blank environment ignored", func(t *testing.T) {
		blank := func(string) (string, bool) { return "  \t ", true }
		if path := resolveGenesisPath("", "", blank); path != "" {
			t.Fatalf("expected no genesis path, got %q", path)
		}
	})
}

func TestOpenDatabaseBackends(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{config.BackendMemory, config.BackendBolt, config.BackendLevelDB, " LevelDB "} {
		db, err := openDatabase(backend, filepath.Join(dir, "data"))
		if err != nil {
			t.Fatalf("open %q: %v", backend, err)
		}
		if err := db.Put([]byte("k"), []byte("v")); err != nil {
			t.Fatalf("put on %q: %v", backend, err)
		}
		db.Close()
	}
	if _, err := openDatabase("rocksdb", dir); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}
}

// Every .go file in the module must be Go source, or ./... builds break. Only
// the package clause is parsed, which is enough to reject files such as a
// Dockerfile saved with the wrong extension.
func TestModuleGoFilesAreGoSource(t *testing.T) {
	root := filepath.Join("..", "..")
	fset := token.NewFileSet()
	checked := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && (strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") || name == "testdata") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".go") {
			return nil
		}
		checked++
		if _, err := parser.ParseFile(fset, path, nil, parser.PackageClauseOnly); err != nil {
			t.Errorf("%s is not Go source: %v", path, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk module: %v", err)
	}
	if checked == 0 {
		t.Fatalf("no Go files found under %s", root)
	}
	if _, err := parser.ParseFile(fset, "Dockerfile.go", "# syntax=docker/dockerfile:1.6\nFROM scratch\n", parser.PackageClauseOnly); err == nil {
		t.Fatalf("a Dockerfile must not parse as Go")
	}
}
