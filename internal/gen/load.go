// Package gen emits typed proxy source for interception targets. It applies
// the same member rules as the runtime analyzer, but over go/types, so
// generic targets and compile-time interface checks are available.
package gen

import (
	"errors"
	"fmt"

	"golang.org/x/tools/go/packages"
)

// BuildTag is set while loading a package and excluded by every generated
// file, so a stale generated file never breaks regeneration.
const BuildTag = "interposegen"

// Load type-checks the single package matched by pattern, resolved
// relative to dir.
func Load(dir, pattern string) (*packages.Package, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedImports |
			packages.NeedTypes | packages.NeedTypesInfo | packages.NeedSyntax,
		Dir:        dir,
		BuildFlags: []string{"-tags=" + BuildTag},
	}
	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("gen: loading %s: %w", pattern, err)
	}
	if len(pkgs) != 1 {
		return nil, fmt.Errorf("gen: pattern %s matched %d packages, want 1", pattern, len(pkgs))
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		errs := make([]error, len(pkg.Errors))
		for i, e := range pkg.Errors {
			errs[i] = e
		}
		return nil, fmt.Errorf("gen: package %s: %w", pkg.PkgPath, errors.Join(errs...))
	}
	if pkg.Types == nil {
		return nil, fmt.Errorf("gen: type information not available for %s", pattern)
	}
	return pkg, nil
}
