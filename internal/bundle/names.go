package bundle

import (
	"regexp"
	"strings"
)

const nodeModulesDir = "node_modules/"

var (
	// webpack appends " + 3 modules" to concatenated module names
	concatSuffixRe = regexp.MustCompile(`\s\+\s\d+\smodules?$`)
	// pnpm / yarn-berry store directories encode name and version: .pnpm/@scope+name@1.2.3_peer/
	storeDirRe = regexp.MustCompile(`(?:^|/)\.(?:pnpm|store)/((?:@[^/+@]+\+)?[^/@]+)@([^/_(]+)`)
)

// FileNameOf strips the loader chain from a resolved identifier
func FileNameOf(identifier string) string {
	name := strings.ReplaceAll(identifier, "\\", "/")
	if i := strings.LastIndexByte(name, '!'); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSpace(name)
}

// StripResolutionSuffix removes resource queries, fragments and concatenation suffixes
func StripResolutionSuffix(name string) string {
	name = concatSuffixRe.ReplaceAllString(name, "")
	if i := strings.IndexByte(name, '?'); i >= 0 {
		name = name[:i]
	}
	if i := strings.IndexByte(name, '#'); i >= 0 {
		name = name[:i]
	}
	return name
}

// BaseNameOf derives the display path that two copies of the same logical file share
func BaseNameOf(fileName string) string {
	name := StripResolutionSuffix(fileName)
	if rest, ok := afterPackageDir(name); ok {
		return rest
	}
	return strings.TrimPrefix(name, "./")
}

// PackageNameOf returns the package a file belongs to, or "" for application files
func PackageNameOf(fileName string) string {
	rest, ok := afterPackageDir(StripResolutionSuffix(fileName))
	if !ok {
		return ""
	}
	parts := strings.SplitN(rest, "/", 3)
	if strings.HasPrefix(parts[0], "@") {
		if len(parts) < 2 {
			return ""
		}
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

// PackageVersionOf reads a version encoded in a package store directory.
// Plain node_modules layouts carry no version and yield "".
func PackageVersionOf(identifier, packageName string) string {
	if packageName == "" {
		return ""
	}
	path := strings.ReplaceAll(identifier, "\\", "/")
	matches := storeDirRe.FindAllStringSubmatch(path, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		name := strings.Replace(matches[i][1], "+", "/", 1)
		if name == packageName {
			return matches[i][2]
		}
	}
	return ""
}

// afterPackageDir returns the path below the innermost package directory
func afterPackageDir(name string) (string, bool) {
	if i := strings.LastIndex(name, nodeModulesDir); i >= 0 {
		return name[i+len(nodeModulesDir):], true
	}
	// webpack 1 shortened node_modules to "~"
	if i := strings.LastIndex(name, "~/"); i >= 0 && (i == 0 || name[i-1] == '/') {
		return name[i+2:], true
	}
	return "", false
}

// describe fills the derived name fields of m from its identifier
func describe(m *Module) {
	m.FileName = FileNameOf(m.Identifier)
	m.BaseName = BaseNameOf(m.FileName)
	m.PackageName = PackageNameOf(m.FileName)
	m.PackageVersion = PackageVersionOf(m.FileName, m.PackageName)
}
