// Package versions reports npm packages bundled from more than one install location.
package versions

import (
	"encoding/json"
	"errors"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/mod/semver"

	"github.com/cranesandcaff/inspectpack/internal/bundle"
)

const nodeModules = "node_modules/"

// Install is one on-disk copy of a package that contributed modules to the bundle
type Install struct {
	Version string   `json:"version" yaml:"version" msgpack:"version"`
	Path    string   `json:"path" yaml:"path" msgpack:"path"`
	Modules []string `json:"modules" yaml:"modules" msgpack:"modules"`
}

// Package is a package name installed more than once
type Package struct {
	Name     string    `json:"name" yaml:"name" msgpack:"name"`
	Installs []Install `json:"installs" yaml:"installs" msgpack:"installs"`
}

type packageJSON struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Skew groups modules by the package directory they were resolved from and returns the packages
// present at more than one path. Package directories are read from fsys, which is rooted at the
// project root; an unreadable package.json falls back to the version encoded in the store path.
func Skew(fsys fs.FS, mods []*bundle.Module) ([]Package, error) {
	installs := make(map[string]map[string]*Install)
	var names []string

	for _, m := range mods {
		if m.PackageName == "" {
			continue
		}
		dir, ok := PackageDir(m.FileName, m.PackageName)
		if !ok {
			continue
		}

		byPath, seen := installs[m.PackageName]
		if !seen {
			byPath = make(map[string]*Install)
			installs[m.PackageName] = byPath
			names = append(names, m.PackageName)
		}

		inst, ok := byPath[dir]
		if !ok {
			version, err := readVersion(fsys, dir)
			if err != nil {
				return nil, err
			}
			if version == "" {
				version = m.PackageVersion
			}
			inst = &Install{Version: version, Path: dir}
			byPath[dir] = inst
		}
		inst.Modules = append(inst.Modules, m.ID)
	}

	sort.Strings(names)

	var out []Package
	for _, name := range names {
		byPath := installs[name]
		if len(byPath) < 2 {
			continue
		}
		pkg := Package{Name: name}
		for _, inst := range byPath {
			pkg.Installs = append(pkg.Installs, *inst)
		}
		sort.Slice(pkg.Installs, func(i, j int) bool {
			a, b := pkg.Installs[i], pkg.Installs[j]
			if c := compareVersions(a.Version, b.Version); c != 0 {
				return c < 0
			}
			return a.Path < b.Path
		})
		out = append(out, pkg)
	}

	log.Debug().Int("packages", len(out)).Msg("Checked package version skew")
	return out, nil
}

// PackageDir returns the package directory of fileName relative to the project root: the path
// from the first node_modules/ segment through the package name below the last one.
func PackageDir(fileName, packageName string) (string, bool) {
	name := bundle.StripResolutionSuffix(fileName)
	first := strings.Index(name, nodeModules)
	last := strings.LastIndex(name, nodeModules)
	if first < 0 {
		return "", false
	}
	end := last + len(nodeModules) + len(packageName)
	if end > len(name) || name[last+len(nodeModules):end] != packageName {
		return "", false
	}
	return name[first:end], true
}

func readVersion(fsys fs.FS, dir string) (string, error) {
	if fsys == nil {
		return "", nil
	}
	data, err := fs.ReadFile(fsys, path.Join(dir, "package.json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("path", dir).Msg("No package.json for bundled package")
			return "", nil
		}
		return "", err
	}

	var pj packageJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		log.Warn().Err(err).Str("path", dir).Msg("Ignoring unreadable package.json")
		return "", nil
	}
	return pj.Version, nil
}

// compareVersions orders valid semver before anything else, then by string
func compareVersions(a, b string) int {
	va, vb := "v"+a, "v"+b
	okA, okB := semver.IsValid(va), semver.IsValid(vb)
	switch {
	case okA && okB:
		return semver.Compare(va, vb)
	case okA:
		return -1
	case okB:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
