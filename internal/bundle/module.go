// Package bundle turns bundler output into a flat, ordered list of modules.
package bundle

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ModuleType classifies a flattened module
type ModuleType string

const (
	// TypeCode is a module with literal source text
	TypeCode ModuleType = "code"
	// TypeSynthetic is a manifest-only entry with no retrievable source
	TypeSynthetic ModuleType = "synthetic"
	// TypeDuplicate is a code module that shares normalized content with another module
	TypeDuplicate ModuleType = "duplicate"
)

// Module is one unit of bundled code.
//
// Source is transient: it feeds size estimation and duplicate hashing and is never serialized.
// Synthetic modules carry their manifest size in Size from flattening on.
type Module struct {
	ID             string     `json:"id" yaml:"id" msgpack:"id"`
	Identifier     string     `json:"identifier" yaml:"identifier" msgpack:"identifier"`
	FileName       string     `json:"fileName" yaml:"fileName" msgpack:"file_name"`
	BaseName       string     `json:"baseName" yaml:"baseName" msgpack:"base_name"`
	PackageName    string     `json:"packageName,omitempty" yaml:"packageName,omitempty" msgpack:"package_name,omitempty"`
	PackageVersion string     `json:"packageVersion,omitempty" yaml:"packageVersion,omitempty" msgpack:"package_version,omitempty"`
	Size           int64      `json:"size" yaml:"size" msgpack:"size"`
	MinifiedSize   *int64     `json:"minifiedSize,omitempty" yaml:"minifiedSize,omitempty" msgpack:"minified_size,omitempty"`
	GzipSize       *int64     `json:"gzipSize,omitempty" yaml:"gzipSize,omitempty" msgpack:"gzip_size,omitempty"`
	Type           ModuleType `json:"type" yaml:"type" msgpack:"type"`
	Source         string     `json:"-" yaml:"-" msgpack:"-"`
}

// HasSource reports whether the module carries literal source text
func (m *Module) HasSource() bool {
	return m.Type != TypeSynthetic
}

// Manifest is the structured description of a bundle's composition (webpack stats shaped)
type Manifest struct {
	Assets  []Asset      `json:"assets,omitempty" yaml:"assets,omitempty"`
	Modules []ModuleNode `json:"modules" yaml:"modules"`
}

// Asset is one emitted output file
type Asset struct {
	Name   string   `json:"name" yaml:"name"`
	Size   int64    `json:"size" yaml:"size"`
	Chunks []FlexID `json:"chunks,omitempty" yaml:"chunks,omitempty"`
}

// ModuleNode is one node of the manifest module tree.
// Exactly one of Source/Modules is set on leaves and containers; neither marks a synthetic node.
type ModuleNode struct {
	ID         FlexID       `json:"id,omitempty" yaml:"id,omitempty"`
	Identifier string       `json:"identifier" yaml:"identifier"`
	Name       string       `json:"name,omitempty" yaml:"name,omitempty"`
	Size       int64        `json:"size" yaml:"size"`
	Chunks     []FlexID     `json:"chunks,omitempty" yaml:"chunks,omitempty"`
	Source     *string      `json:"source,omitempty" yaml:"source,omitempty"`
	Modules    []ModuleNode `json:"modules,omitempty" yaml:"modules,omitempty"`
}

// NodeKind is the tagged variant of a manifest node
type NodeKind int

const (
	NodeLeaf NodeKind = iota
	NodeContainer
	NodeSynthetic
)

func (k NodeKind) String() string {
	switch k {
	case NodeLeaf:
		return "leaf"
	case NodeContainer:
		return "container"
	default:
		return "synthetic"
	}
}

// Kind classifies the node. A node carrying both source and children is invalid.
func (n *ModuleNode) Kind() (NodeKind, error) {
	switch {
	case n.Source != nil && n.Modules != nil:
		return 0, fmt.Errorf("node %q has both source and modules", n.Identifier)
	case n.Source != nil:
		return NodeLeaf, nil
	case n.Modules != nil:
		return NodeContainer, nil
	default:
		return NodeSynthetic, nil
	}
}

// FlexID handles manifest ids that can be a string or a number
type FlexID string

func (v *FlexID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or a number, got %s", string(data))
	}
	if i, err := n.Int64(); err == nil {
		*v = FlexID(strconv.FormatInt(i, 10))
		return nil
	}
	*v = FlexID(strings.TrimSpace(n.String()))
	return nil
}

// ParseManifest decodes manifest JSON. Syntax errors become a ParseError carrying the offset.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, manifestDecodeError(data, err)
	}
	return &m, nil
}

func manifestDecodeError(data []byte, err error) error {
	var offset int64 = -1
	switch e := err.(type) {
	case *json.SyntaxError:
		offset = e.Offset
	case *json.UnmarshalTypeError:
		offset = e.Offset
	}
	return &ParseError{
		Offset:   offset,
		Fragment: fragmentAt(string(data), offset),
		Reason:   fmt.Sprintf("invalid manifest: %v", err),
	}
}
