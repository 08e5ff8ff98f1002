package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

type recordingT struct {
	failed string
}

func (r *recordingT) Fatalf(format string, args ...any) { r.failed = fmt.Sprintf(format, args...) }

func TestInternalImportForbidden(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"poemhub/internal/core", true},
		{"poemhub/internal", true},
		{"poemhub/pkg/domain", false},
		{"github.com/gorilla/mux", false},
	}
	for _, c := range cases {
		if got := InternalImportForbidden(c.in); got != c.want {
			t.Fatalf("InternalImportForbidden(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestUnderPrefix(t *testing.T) {
	match := UnderPrefix("poemhub/internal/infra")
	for path, want := range map[string]bool{
		"poemhub/internal/infra":          true,
		"poemhub/internal/infra/blob/s3":  true,
		"poemhub/internal/infrastructure": false,
		"poemhub/internal/core":           false,
	} {
		if got := match(path); got != want {
			t.Fatalf("UnderPrefix match %q = %v want %v", path, got, want)
		}
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, src string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("a.go", "package tmp\n\nimport (\n\t\"fmt\"\n\t\"poemhub/internal/core\"\n)\n\nvar _ = fmt.Sprint\nvar _ core.Service\n")
	write("a_test.go", "package tmp\n\nimport \"poemhub/internal/web\"\n")

	viols, err := directImportViolations(dir, InternalImportForbidden)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(viols) != 1 || viols[0] != "poemhub/internal/core (in a.go)" {
		t.Fatalf("violations %v", viols)
	}

	rec := &recordingT{}
	failIfViolations(rec, "forbidden direct imports", "demo", viols)
	if !strings.Contains(rec.failed, "demo") || !strings.Contains(rec.failed, "a.go") {
		t.Fatalf("failure message %q", rec.failed)
	}
}

func TestTransitiveViolationsWalksGraph(t *testing.T) {
	leaf := &packages.Package{PkgPath: "poemhub/internal/infra/blob/fs"}
	mid := &packages.Package{PkgPath: "poemhub/internal/blob", Imports: map[string]*packages.Package{leaf.PkgPath: leaf}}
	root := &packages.Package{PkgPath: "poemhub/internal/export", Imports: map[string]*packages.Package{
		mid.PkgPath: mid,
		"fmt":       {PkgPath: "fmt"},
	}}

	prev := loadPackages
	loadPackages = func(string) ([]*packages.Package, error) { return []*packages.Package{root}, nil }
	t.Cleanup(func() { loadPackages = prev })

	viols, err := transitiveViolations("poemhub/internal/export", UnderPrefix("poemhub/internal/infra"))
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	want := "poemhub/internal/infra/blob/fs (via poemhub/internal/blob)"
	if len(viols) != 1 || viols[0] != want {
		t.Fatalf("violations %v want [%s]", viols, want)
	}
}

func TestAssertNoTransitiveDependencyOnRealGraph(t *testing.T) {
	AssertNoTransitiveDependency(t, "poemhub/testutil", UnderPrefix("poemhub/internal"), "testutil stays standalone")
}
