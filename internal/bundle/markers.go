package bundle

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Boundary markers written by webpack development builds.
//
//	/* 12 */                        array form (webpack 1-3)
//	/***/ "./src/index.js":          object form (webpack 4+)
//	/*!******************!*\         optional pathinfo banner
//	  !*** ./src/a.js ***!
//	  \******************/
var (
	numericMarkerRe = regexp.MustCompile(`^/\*\s+(\d+)\s+\*/\s*$`)
	keyedMarkerRe   = regexp.MustCompile(`^/\*{3}/\s+("(?:[^"\\]|\\.)*"|'[^'\\]*'|\d+)\s*:\s*$`)
	bannerOpenRe    = regexp.MustCompile(`^\s*/\*!\*+!\*\\\s*$`)
	bannerPathRe    = regexp.MustCompile(`^\s*!\*{3}\s+(.+?)\s+\*{3}!\s*$`)
	bannerCloseRe   = regexp.MustCompile(`^\s*\\\*+/\s*$`)
	runtimeLineRe   = regexp.MustCompile(`^/\*{6}/`)
	wrapperLineRe   = regexp.MustCompile(`^/\*{3}/`)
	annotationRe    = regexp.MustCompile(`^\s*/\*!.*\*/\s*$`)
)

type line struct {
	text   string
	offset int64
}

func splitLines(code string) []line {
	lines := make([]line, 0, strings.Count(code, "\n")+1)
	var off int64
	for len(code) > 0 {
		i := strings.IndexByte(code, '\n')
		if i < 0 {
			lines = append(lines, line{text: strings.TrimRight(code, "\r"), offset: off})
			break
		}
		lines = append(lines, line{text: strings.TrimRight(code[:i], "\r"), offset: off})
		off += int64(i + 1)
		code = code[i+1:]
	}
	return lines
}

type scanned struct {
	id         string
	identifier string
	offset     int64
	body       []string
}

// ScanText splits raw bundle text at module boundary markers.
// Text without any marker holds zero modules.
func ScanText(code string) ([]*Module, error) {
	lines := splitLines(code)

	var (
		mods    []*Module
		current *scanned
	)
	seen := make(map[string]int64)

	finish := func() error {
		if current == nil {
			return nil
		}
		if prev, dup := seen[current.id]; dup {
			return &ParseError{
				Offset:   current.offset,
				Fragment: fragmentAt(code, current.offset),
				Reason:   fmt.Sprintf("duplicate module id %q (first marker at offset %d)", current.id, prev),
			}
		}
		seen[current.id] = current.offset

		mod := &Module{
			ID:         current.id,
			Identifier: current.identifier,
			Type:       TypeCode,
			Source:     strings.TrimSpace(strings.Join(current.body, "\n")),
		}
		describe(mod)
		mods = append(mods, mod)
		current = nil
		return nil
	}

	for i := 0; i < len(lines); i++ {
		ln := lines[i]

		id, identifier, ok := matchMarker(ln.text)
		if !ok {
			if current != nil && keepBodyLine(ln.text) {
				current.body = append(current.body, ln.text)
			}
			continue
		}

		if err := finish(); err != nil {
			return nil, err
		}
		current = &scanned{id: id, identifier: identifier, offset: ln.offset}

		if i+1 < len(lines) && bannerOpenRe.MatchString(lines[i+1].text) {
			open := lines[i+1]
			if i+3 >= len(lines) || !bannerCloseRe.MatchString(lines[i+3].text) {
				return nil, &ParseError{Offset: open.offset, Fragment: fragmentAt(code, open.offset), Reason: "unterminated module pathinfo banner"}
			}
			m := bannerPathRe.FindStringSubmatch(lines[i+2].text)
			if m == nil {
				return nil, &ParseError{Offset: lines[i+2].offset, Fragment: fragmentAt(code, lines[i+2].offset), Reason: "malformed module pathinfo banner"}
			}
			current.identifier = m[1]
			i += 3
		}
	}
	if err := finish(); err != nil {
		return nil, err
	}

	log.Debug().Int("modules", len(mods)).Msg("Scanned bundle text for module markers")
	return mods, nil
}

// matchMarker recognizes a module boundary line and returns the id and, for object-form keys, a
// path-like identifier
func matchMarker(text string) (string, string, bool) {
	if m := numericMarkerRe.FindStringSubmatch(text); m != nil {
		return m[1], m[1], true
	}
	m := keyedMarkerRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	key := m[1]
	switch key[0] {
	case '"':
		unq, err := strconv.Unquote(key)
		if err != nil {
			return "", "", false
		}
		key = unq
	case '\'':
		key = key[1 : len(key)-1]
	}
	return key, key, true
}

// keepBodyLine drops webpack wrapper, annotation and runtime lines from module source
func keepBodyLine(text string) bool {
	if runtimeLineRe.MatchString(text) || wrapperLineRe.MatchString(text) {
		return false
	}
	return !annotationRe.MatchString(text)
}
