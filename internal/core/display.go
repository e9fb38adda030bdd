package core

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kilupskalvis/aliasmig/internal/jsonv"
)

// NoChanges is what DisplayDiff reports for equal documents.
const NoChanges = "No changes detected"

// ChangeKind classifies one difference between two documents
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "ADDED"
	ChangeRemoved  ChangeKind = "REMOVED"
	ChangeModified ChangeKind = "MODIFIED"
)

// Change is one leaf-level difference. Old is null for additions and New
// is null for removals.
type Change struct {
	Kind ChangeKind
	Path string
	Old  jsonv.Value
	New  jsonv.Value
}

func (c Change) String() string {
	path := c.Path
	if path == "" {
		path = "(root)"
	}
	switch c.Kind {
	case ChangeAdded:
		return fmt.Sprintf("%s %s: %s", c.Kind, path, c.New)
	case ChangeRemoved:
		return fmt.Sprintf("%s %s: %s", c.Kind, path, c.Old)
	default:
		return fmt.Sprintf("%s %s: %s -> %s", c.Kind, path, c.Old, c.New)
	}
}

// DiffValues lists the structural differences between old and updated, in
// sorted key order. A node typed "object" with properties and the same node
// without a type compare equal.
func DiffValues(old, updated jsonv.Value) []Change {
	var changes []Change
	walkDiff("", normalizeObjectTypes(old), normalizeObjectTypes(updated), &changes)
	return changes
}

// DisplayDiff renders the differences between old and updated for humans.
func DisplayDiff(old, updated jsonv.Value) string {
	return FormatChanges(DiffValues(old, updated))
}

// FormatChanges renders one change per line.
func FormatChanges(changes []Change) string {
	if len(changes) == 0 {
		return NoChanges
	}
	lines := make([]string, 0, len(changes))
	for _, c := range changes {
		lines = append(lines, c.String())
	}
	return strings.Join(lines, "\n")
}

func walkDiff(path string, old, updated jsonv.Value, changes *[]Change) {
	switch {
	case old.IsObject() && updated.IsObject():
		for _, k := range unionKeys(old, updated) {
			ov, inOld := old.Get(k)
			nv, inNew := updated.Get(k)
			child := joinPath(path, k)
			switch {
			case !inOld:
				*changes = append(*changes, Change{Kind: ChangeAdded, Path: child, New: nv})
			case !inNew:
				*changes = append(*changes, Change{Kind: ChangeRemoved, Path: child, Old: ov})
			default:
				walkDiff(child, ov, nv, changes)
			}
		}

	case old.IsArray() && updated.IsArray():
		oe, ne := old.Elems(), updated.Elems()
		if len(oe) != len(ne) {
			*changes = append(*changes, Change{
				Kind: ChangeModified,
				Path: path + ".length",
				Old:  jsonv.Number(float64(len(oe))),
				New:  jsonv.Number(float64(len(ne))),
			})
		}
		for i := 0; i < len(oe) || i < len(ne); i++ {
			child := fmt.Sprintf("%s[%d]", path, i)
			switch {
			case i >= len(oe):
				*changes = append(*changes, Change{Kind: ChangeAdded, Path: child, New: ne[i]})
			case i >= len(ne):
				*changes = append(*changes, Change{Kind: ChangeRemoved, Path: child, Old: oe[i]})
			default:
				walkDiff(child, oe[i], ne[i], changes)
			}
		}

	case !old.Equal(updated):
		*changes = append(*changes, Change{Kind: ChangeModified, Path: path, Old: old, New: updated})
	}
}

func unionKeys(a, b jsonv.Value) []string {
	seen := make(map[string]bool)
	for _, k := range a.Keys() {
		seen[k] = true
	}
	for _, k := range b.Keys() {
		seen[k] = true
	}
	return sortedKeys(seen)
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
