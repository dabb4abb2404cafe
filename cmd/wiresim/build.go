// build.go - multi-file loading. Each Wire HDL source file is read and
// parsed in its own goroutine (errgroup fans the per-file work out and
// collects the first error); the parsed modules of every file are then
// compiled together in one Compile call. The counters the front end
// allocates live on the Compiler/flattener value rather than at package
// scope.

// Copyright (c) 2026 Wireforge Project contributors
// License: GPLv3 or later

package main

import (
	"context"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/wireforge/wirecore/wire"
)

// fileModules holds the parsed modules from one source file, tagged with
// the path they came from for error reporting.
type fileModules struct {
	path string
	mods []wire.Module
}

// loadAndParseFiles reads and parses every path concurrently, returning
// results in input order (or the first error encountered).
func loadAndParseFiles(ctx context.Context, paths []string) ([]fileModules, error) {
	results := make([]fileModules, len(paths))
	g, _ := errgroup.WithContext(ctx)

	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			mods, err := wire.ParseSource(string(data))
			if err != nil {
				return err
			}
			results[i] = fileModules{path: p, mods: mods} // distinct index per goroutine, no lock needed
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// compileAll merges every file's modules into one Compile call so cross-
// file module references resolve, matching single-file semantics.
func compileAll(files []fileModules) (map[string]*wire.Netlist, error) {
	var all []wire.Module
	for _, f := range files {
		all = append(all, f.mods...)
	}
	return wire.Compile(all)
}
