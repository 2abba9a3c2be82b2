package gen

import (
	"fmt"
	"go/types"
	"os"
	"path/filepath"
)

// TargetSpec names one proxy to generate.
type TargetSpec struct {
	Type       string
	Proxy      string // defaults to Type + "Proxy"
	Interfaces []string
}

// Request is one generator run: a package and the proxies to emit into it.
type Request struct {
	Dir     string // working directory for package resolution
	Package string // package pattern, e.g. "./internal/shop"
	Output  string // file name inside the package directory
	Targets []TargetSpec
}

// Build analyzes every target of one package into a file model.
func Build(pkg *types.Package, specs []TargetSpec) (*Model, error) {
	m := &Model{Package: pkg}
	seen := make(map[string]string)
	for _, spec := range specs {
		t, err := Analyze(pkg, spec.Type, spec.Interfaces)
		if err != nil {
			return nil, err
		}
		if spec.Proxy != "" {
			t.Proxy = spec.Proxy
		}
		if prev, dup := seen[t.Proxy]; dup {
			return nil, fmt.Errorf("gen: proxy name %s used for both %s and %s", t.Proxy, prev, t.Name)
		}
		if obj := pkg.Scope().Lookup(t.Proxy); obj != nil {
			return nil, fmt.Errorf("gen: %s is already declared in %s", t.Proxy, pkg.Path())
		}
		seen[t.Proxy] = t.Name
		m.Targets = append(m.Targets, t)
	}
	return m, nil
}

// Generate loads the package, renders every requested proxy and writes the
// output file next to the package's sources. It returns the written path.
func Generate(req Request) (string, error) {
	if len(req.Targets) == 0 {
		return "", fmt.Errorf("gen: no targets for %s", req.Package)
	}
	pkg, err := Load(req.Dir, req.Package)
	if err != nil {
		return "", err
	}
	if len(pkg.GoFiles) == 0 {
		return "", fmt.Errorf("gen: package %s has no Go files", pkg.PkgPath)
	}
	model, err := Build(pkg.Types, req.Targets)
	if err != nil {
		return "", err
	}

	output := req.Output
	if output == "" {
		output = "interpose_gen.go"
	}
	path := filepath.Join(filepath.Dir(pkg.GoFiles[0]), output)
	src, err := Render(model, Options{Filename: path})
	if err != nil {
		return "", err
	}
	if err := writeFile(path, src); err != nil {
		return "", err
	}
	return path, nil
}

// writeFile replaces path atomically so a watcher never sees a partial file.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".interpose-*.tmp")
	if err != nil {
		return fmt.Errorf("gen: create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("gen: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("gen: write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("gen: chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("gen: rename %s: %w", path, err)
	}
	return nil
}
