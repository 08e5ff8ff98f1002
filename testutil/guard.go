// Package testutil holds architecture guards shared by package tests: import
// predicates plus assertions over direct and transitive imports.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// AssertNoDirectImports parses the non-test .go files in dir and fails when an
// import path satisfies forbidden. Build tags are ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	failIfViolations(t, "forbidden direct imports", reason, viols)
}

// AssertNoTransitiveDependency loads pattern with its full import graph and
// fails when any reachable package satisfies forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	viols, err := transitiveViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("load %s: %v", pattern, err)
	}
	failIfViolations(t, "forbidden transitive dependency", reason, viols)
}

// InternalImportForbidden matches any path inside an internal directory.
func InternalImportForbidden(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasSuffix(path, "/internal")
}

// UnderPrefix matches prefix itself and every package below it.
func UnderPrefix(prefix string) func(string) bool {
	return func(path string) bool {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
}

func directImportViolations(dir string, forbidden func(string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				viols = append(viols, path+" (in "+name+")")
			}
		}
	}
	return viols, nil
}

var loadPackages = func(pattern string) ([]*packages.Package, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	return packages.Load(cfg, pattern)
}

func transitiveViolations(pattern string, forbidden func(string) bool) ([]string, error) {
	roots, err := loadPackages(pattern)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	var viols []string
	var walk func(pkg *packages.Package, via string)
	walk = func(pkg *packages.Package, via string) {
		if seen[pkg.PkgPath] {
			return
		}
		seen[pkg.PkgPath] = true
		if via != "" && forbidden(pkg.PkgPath) {
			viols = append(viols, pkg.PkgPath+" (via "+via+")")
		}
		for _, dep := range pkg.Imports {
			walk(dep, pkg.PkgPath)
		}
	}
	for _, root := range roots {
		walk(root, "")
	}
	sort.Strings(viols)
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, kind, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("%s (%s):\n%s", kind, reason, strings.Join(viols, "\n"))
	}
}
