package bundle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// DefaultMaxDepth bounds manifest nesting
const DefaultMaxDepth = 64

// Form identifies which input representation a bundle was flattened from
type Form string

const (
	FormManifest Form = "manifest"
	FormText     Form = "text"
)

// Input is the raw material of one analysis
type Input struct {
	Code     string
	Manifest *Manifest
}

// FlattenOptions tunes flattening
type FlattenOptions struct {
	MaxDepth int
}

// Flattened is the ordered module list produced from one input
type Flattened struct {
	Form    Form
	Modules []*Module
	Assets  []Asset
}

// Flatten produces the ordered module list for an input.
// An explicit manifest wins; otherwise code starting with '{' is decoded as manifest JSON and
// anything else is scanned for webpack module boundary markers.
func Flatten(in Input, opts FlattenOptions) (*Flattened, error) {
	manifest := in.Manifest
	if manifest == nil && looksLikeJSON(in.Code) {
		m, err := ParseManifest([]byte(in.Code))
		if err != nil {
			return nil, err
		}
		manifest = m
	}

	if manifest != nil {
		mods, err := FlattenManifest(manifest, opts)
		if err != nil {
			return nil, err
		}
		return &Flattened{Form: FormManifest, Modules: mods, Assets: manifest.Assets}, nil
	}

	mods, err := ScanText(in.Code)
	if err != nil {
		return nil, err
	}
	return &Flattened{Form: FormText, Modules: mods}, nil
}

func looksLikeJSON(code string) bool {
	trimmed := strings.TrimLeft(code, " \t\r\n\ufeff")
	return strings.HasPrefix(trimmed, "{")
}

type frame struct {
	node  *ModuleNode
	path  string
	depth int
}

// FlattenManifest walks the module tree depth-first, pre-order, emitting leaves and synthetic
// nodes. Containers only group their children and are never emitted.
func FlattenManifest(m *Manifest, opts FlattenOptions) ([]*Module, error) {
	maxDepth := opts.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	stack := make([]frame, 0, len(m.Modules))
	for i := len(m.Modules) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: &m.Modules[i], path: fmt.Sprintf("modules[%d]", i), depth: 1})
	}

	mods := make([]*Module, 0, len(m.Modules))
	seen := make(map[string]string)

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.depth > maxDepth {
			return nil, &ParseError{Offset: -1, Path: f.path, Reason: fmt.Sprintf("module tree deeper than %d levels", maxDepth)}
		}

		kind, err := f.node.Kind()
		if err != nil {
			return nil, &ParseError{Offset: -1, Path: f.path, Reason: err.Error()}
		}

		if kind == NodeContainer {
			children := f.node.Modules
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, frame{
					node:  &children[i],
					path:  fmt.Sprintf("%s.modules[%d]", f.path, i),
					depth: f.depth + 1,
				})
			}
			continue
		}

		if f.node.Size < 0 {
			return nil, &ParseError{Offset: -1, Path: f.path, Reason: fmt.Sprintf("negative size %d", f.node.Size)}
		}

		id := string(f.node.ID)
		if id == "" {
			id = strconv.Itoa(len(mods))
		}
		if prev, dup := seen[id]; dup {
			return nil, &ParseError{Offset: -1, Path: f.path, Fragment: id, Reason: fmt.Sprintf("duplicate module id (first used at %s)", prev)}
		}
		seen[id] = f.path

		identifier := f.node.Identifier
		if identifier == "" {
			identifier = f.node.Name
		}

		mod := &Module{ID: id, Identifier: identifier}
		if kind == NodeLeaf {
			mod.Type = TypeCode
			mod.Source = *f.node.Source
		} else {
			mod.Type = TypeSynthetic
			mod.Size = f.node.Size
		}
		describe(mod)
		mods = append(mods, mod)
	}

	log.Debug().Int("modules", len(mods)).Msg("Flattened manifest module tree")
	return mods, nil
}
