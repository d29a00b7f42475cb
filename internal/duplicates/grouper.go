// Package duplicates finds modules bundled more than once with identical content.
package duplicates

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/cranesandcaff/inspectpack/internal/bundle"
)

// Group is a set of modules sharing a base name and normalized source
type Group struct {
	BaseName    string   `json:"baseName" yaml:"baseName" msgpack:"base_name"`
	Hash        string   `json:"hash" yaml:"hash" msgpack:"hash"`
	Members     []string `json:"members" yaml:"members" msgpack:"members"`
	Count       int      `json:"count" yaml:"count" msgpack:"count"`
	Size        int64    `json:"size" yaml:"size" msgpack:"size"`
	WastedBytes int64    `json:"wastedBytes" yaml:"wastedBytes" msgpack:"wasted_bytes"`
}

// Report is the outcome of grouping one module list
type Report struct {
	Groups                 []Group
	NumDuplicateModules    int
	NumFilesWithDuplicates int
	WastedBytes            int64
}

// Normalize collapses every whitespace run to a single space and trims the ends
func Normalize(source string) string {
	return strings.Join(strings.Fields(source), " ")
}

// Hash returns the hex sha256 of normalized source
func Hash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

type groupKey struct {
	baseName string
	hash     string
}

type pending struct {
	group   Group
	members []*bundle.Module
}

// Find groups modules whose base name and normalized source are equal and marks every member of
// a multi-member group as a duplicate. Sizes must already be estimated.
//
// Synthetic modules and modules whose source is empty after normalization never group.
func Find(mods []*bundle.Module) Report {
	index := make(map[groupKey]int)
	var candidates []*pending

	for _, m := range mods {
		if !m.HasSource() {
			continue
		}
		normalized := Normalize(m.Source)
		if normalized == "" {
			continue
		}

		key := groupKey{baseName: m.BaseName, hash: Hash(normalized)}
		if i, ok := index[key]; ok {
			candidates[i].members = append(candidates[i].members, m)
			continue
		}
		index[key] = len(candidates)
		candidates = append(candidates, &pending{
			group:   Group{BaseName: m.BaseName, Hash: key.hash, Size: m.Size},
			members: []*bundle.Module{m},
		})
	}

	var report Report
	baseNames := make(map[string]struct{})
	for _, c := range candidates {
		if len(c.members) < 2 {
			continue
		}

		g := c.group
		g.Count = len(c.members)
		g.Members = make([]string, len(c.members))
		for i, m := range c.members {
			g.Members[i] = m.ID
			m.Type = bundle.TypeDuplicate
		}
		g.WastedBytes = int64(g.Count-1) * g.Size

		report.Groups = append(report.Groups, g)
		report.NumDuplicateModules += g.Count
		report.WastedBytes += g.WastedBytes
		baseNames[g.BaseName] = struct{}{}
	}
	report.NumFilesWithDuplicates = len(baseNames)

	log.Debug().
		Int("groups", len(report.Groups)).
		Int("files", report.NumFilesWithDuplicates).
		Int64("wasted_bytes", report.WastedBytes).
		Msg("Grouped duplicate modules")

	return report
}
