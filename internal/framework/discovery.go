// Package framework wires the framework's components together: config,
// logging, the route registry, the dispatcher, and the optional rate
// limiter / cache / connection manager, per SPEC_FULL.md's component
// design. It also implements spec.md §6's handler auto-discovery.
package framework

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"plugin"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/wudi/runway/internal/logging"
	"github.com/wudi/runway/internal/routetable"
)

// registerSymbol is the exported symbol every discovered handler plugin
// must provide: a func(*routetable.Registry) that registers its
// endpoints as a side effect.
const registerSymbol = "Register"

// isTargetFile reports whether name matches spec.md's "*target.<ext>"
// handler-file naming convention. Go's only supported mechanism for
// loading arbitrary code discovered at runtime is the stdlib plugin
// package, which loads precompiled .so files, so the "<ext>" the spec
// describes is always "so" here.
func isTargetFile(name string) bool {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.HasSuffix(base, "target") && strings.HasSuffix(name, ".so")
}

// DiscoverHandlers recursively walks dir in filesystem order, loading every
// regular file matching spec.md's handler-file convention exactly once
// and invoking its Register symbol against registry. A handler plugin
// that fails to open or that lacks a correctly-typed Register symbol is
// logged and skipped rather than aborting discovery of the rest, mirroring
// spec.md §9's resolution that a malformed single handler must not take
// down unrelated ones.
func DiscoverHandlers(dir string, registry *routetable.Registry) error {
	if dir == "" {
		return nil
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isTargetFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("framework: scanning %s: %w", dir, err)
	}

	sort.Strings(files)

	for _, path := range files {
		if err := loadHandler(path, registry); err != nil {
			logging.Error("handler discovery skipped a file",
				zap.String("path", path), zap.Error(err))
			continue
		}
		logging.Debug("handler loaded", zap.String("path", path))
	}

	return nil
}

func loadHandler(path string, registry *routetable.Registry) error {
	p, err := plugin.Open(path)
	if err != nil {
		return fmt.Errorf("opening plugin: %w", err)
	}

	sym, err := p.Lookup(registerSymbol)
	if err != nil {
		return fmt.Errorf("missing %s symbol: %w", registerSymbol, err)
	}

	register, ok := sym.(func(*routetable.Registry))
	if !ok {
		return fmt.Errorf("%s has unexpected type %T", registerSymbol, sym)
	}

	register(registry)
	return nil
}
