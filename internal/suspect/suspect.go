// Package suspect scans modules for content and file names that warrant a closer look.
package suspect

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cranesandcaff/inspectpack/internal/bundle"
)

const snippetWidth = 80

// Match is one pattern hit inside one module
type Match struct {
	ModuleID   string `json:"moduleId" yaml:"moduleId" msgpack:"module_id"`
	Identifier string `json:"identifier" yaml:"identifier" msgpack:"identifier"`
	BaseName   string `json:"baseName" yaml:"baseName" msgpack:"base_name"`
	Pattern    string `json:"pattern" yaml:"pattern" msgpack:"pattern"`
	Line       int    `json:"line,omitempty" yaml:"line,omitempty" msgpack:"line,omitempty"`
	Snippet    string `json:"snippet,omitempty" yaml:"snippet,omitempty" msgpack:"snippet,omitempty"`
}

// PatternError reports a pattern that does not compile
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Compile compiles every pattern, failing on the first invalid one
func Compile(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, &PatternError{Pattern: p, Err: err}
		}
		out = append(out, re)
	}
	return out, nil
}

// Sources reports, per module and pattern, the first line of source that matches.
// Modules without source are skipped.
func Sources(mods []*bundle.Module, patterns []*regexp.Regexp) []Match {
	var matches []Match
	for _, m := range mods {
		if !m.HasSource() || m.Source == "" {
			continue
		}
		for _, re := range patterns {
			loc := re.FindStringIndex(m.Source)
			if loc == nil {
				continue
			}
			line, snippet := lineAt(m.Source, loc[0])
			matches = append(matches, Match{
				ModuleID:   m.ID,
				Identifier: m.Identifier,
				BaseName:   m.BaseName,
				Pattern:    re.String(),
				Line:       line,
				Snippet:    snippet,
			})
		}
	}
	return matches
}

// Files reports modules whose identifier matches a pattern
func Files(mods []*bundle.Module, patterns []*regexp.Regexp) []Match {
	var matches []Match
	for _, m := range mods {
		for _, re := range patterns {
			if !re.MatchString(m.Identifier) {
				continue
			}
			matches = append(matches, Match{
				ModuleID:   m.ID,
				Identifier: m.Identifier,
				BaseName:   m.BaseName,
				Pattern:    re.String(),
			})
		}
	}
	return matches
}

// lineAt returns the 1-based line number holding offset and that line, trimmed and shortened
func lineAt(src string, offset int) (int, string) {
	start := strings.LastIndexByte(src[:offset], '\n') + 1
	end := strings.IndexByte(src[offset:], '\n')
	if end < 0 {
		end = len(src)
	} else {
		end += offset
	}

	snippet := strings.TrimSpace(src[start:end])
	if len(snippet) > snippetWidth {
		cut := snippetWidth
		for cut > 0 && !utf8.RuneStart(snippet[cut]) {
			cut--
		}
		snippet = snippet[:cut] + "..."
	}
	return strings.Count(src[:start], "\n") + 1, snippet
}
