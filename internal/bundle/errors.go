package bundle

import (
	"fmt"
	"strings"
)

// ParseError reports malformed bundle text or a malformed manifest.
// Offset is a byte offset into the input, or -1 for errors located by manifest Path.
type ParseError struct {
	Offset   int64
	Path     string
	Fragment string
	Reason   string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	b.WriteString("parse error")
	if e.Path != "" {
		fmt.Fprintf(&b, " at %s", e.Path)
	} else if e.Offset >= 0 {
		fmt.Fprintf(&b, " at offset %d", e.Offset)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	if e.Fragment != "" {
		fmt.Fprintf(&b, " (near %q)", e.Fragment)
	}
	return b.String()
}

const fragmentWidth = 40

// fragmentAt returns a short excerpt of s starting at offset
func fragmentAt(s string, offset int64) string {
	if offset < 0 || offset > int64(len(s)) {
		return ""
	}
	start := int(offset)
	if start > 0 && start == len(s) {
		start--
	}
	end := start + fragmentWidth
	if end > len(s) {
		end = len(s)
	}
	frag := s[start:end]
	if i := strings.IndexByte(frag, '\n'); i >= 0 {
		frag = frag[:i]
	}
	return frag
}
