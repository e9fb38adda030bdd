package core

import (
	"fmt"
	"strings"

	"github.com/kilupskalvis/aliasmig/internal/jsonv"
	"github.com/kilupskalvis/aliasmig/internal/models"
)

// Rules is the closed rule set that decides whether a definition change can
// be applied to an existing index. Anything the rules do not name is safe.
type Rules struct {
	// ImmutableSettings are settings paths that cannot change on an existing
	// index. An "index." prefix is ignored and a trailing ".*" covers the
	// whole subtree.
	ImmutableSettings []string
	// ImmutableFieldProperties are mapping parameters that cannot change on
	// an existing field, including being added or removed.
	ImmutableFieldProperties []string
}

// DefaultRules returns the built-in rule set.
func DefaultRules() Rules {
	return Rules{
		ImmutableSettings: []string{
			"number_of_shards",
			"index.codec",
			"routing_partition_size",
			"index.sort.*",
		},
		ImmutableFieldProperties: []string{
			"index", "store", "doc_values", "fielddata", "norms", "enabled",
			"format", "copy_to", "term_vector", "index_options", "null_value",
			"ignore_z_value", "precision", "ignore_above",
		},
	}
}

// analysisCategories hold named definitions that may be added but not changed
var analysisCategories = []string{"analyzer", "tokenizer", "filter", "char_filter"}

// IsBreaking reports whether moving remote to local requires a reindex.
func (r Rules) IsBreaking(local, remote models.SchemaDefinition) bool {
	return len(r.BreakingChanges(local, remote)) > 0
}

// Classify returns the classification of moving remote to local.
func (r Rules) Classify(local, remote models.SchemaDefinition) models.Classification {
	if r.IsBreaking(local, remote) {
		return models.Breaking
	}
	return models.NonBreaking
}

// BreakingChanges explains every breaking difference between local and
// remote. An empty result means the change can be applied in place.
func (r Rules) BreakingChanges(local, remote models.SchemaDefinition) []string {
	var reasons []string
	reasons = append(reasons, r.settingsBreaks(NormalizeSettings(local.Settings), NormalizeSettings(remote.Settings))...)
	reasons = append(reasons, r.mappingBreaks(NormalizeMappings(local.Mappings), NormalizeMappings(remote.Mappings))...)
	return reasons
}

func (r Rules) settingsBreaks(local, remote jsonv.Value) []string {
	var reasons []string

	for _, setting := range r.ImmutableSettings {
		path := strings.TrimSuffix(strings.TrimPrefix(setting, "index."), ".*")
		keys := strings.Split(path, ".")
		lv, lok := local.Path(keys...)
		rv, rok := remote.Path(keys...)
		if lok && rok && !lv.Equal(rv) {
			reasons = append(reasons, fmt.Sprintf("setting %s changed: %s -> %s", path, rv, lv))
		}
	}

	for _, category := range analysisCategories {
		lc, _ := local.Path("analysis", category)
		rc, _ := remote.Path("analysis", category)
		for _, name := range rc.Keys() {
			rdef, _ := rc.Get(name)
			if ldef, ok := lc.Get(name); ok && !ldef.Equal(rdef) {
				reasons = append(reasons, fmt.Sprintf("%s %q changed", strings.ReplaceAll(category, "_", " "), name))
			}
		}
	}

	return reasons
}

func (r Rules) mappingBreaks(local, remote jsonv.Value) []string {
	var reasons []string

	ld, lok := local.Get("dynamic")
	rd, rok := remote.Get("dynamic")
	if lok && rok && !ld.Equal(rd) {
		reasons = append(reasons, fmt.Sprintf("dynamic changed: %s -> %s", rd, ld))
	}

	lp, _ := local.Get("properties")
	rp, _ := remote.Get("properties")
	return append(reasons, r.propertiesBreaks("", lp, rp)...)
}

func (r Rules) propertiesBreaks(parent string, local, remote jsonv.Value) []string {
	var reasons []string
	for _, name := range remote.Keys() {
		field := joinPath(parent, name)
		rdef, _ := remote.Get(name)
		ldef, ok := local.Get(name)
		if !ok {
			reasons = append(reasons, fmt.Sprintf("field %s removed", field))
			continue
		}
		reasons = append(reasons, r.fieldBreaks(field, ldef, rdef)...)
	}
	return reasons
}

func (r Rules) fieldBreaks(field string, local, remote jsonv.Value) []string {
	if lt, rt := fieldType(local), fieldType(remote); lt != rt {
		return []string{fmt.Sprintf("field %s type changed: %s -> %s", field, rt, lt)}
	}

	var reasons []string
	// an analyzer on one side only is left to the cluster to accept or reject
	if lv, ok := local.Get("analyzer"); ok {
		if rv, ok := remote.Get("analyzer"); ok && !lv.Equal(rv) {
			reasons = append(reasons, fmt.Sprintf("field %s analyzer changed: %s -> %s", field, rv, lv))
		}
	}
	for _, prop := range r.ImmutableFieldProperties {
		lv, lok := local.Get(prop)
		rv, rok := remote.Get(prop)
		switch {
		case lok && !rok:
			reasons = append(reasons, fmt.Sprintf("field %s %s added", field, prop))
		case !lok && rok:
			reasons = append(reasons, fmt.Sprintf("field %s %s removed", field, prop))
		case lok && !lv.Equal(rv):
			reasons = append(reasons, fmt.Sprintf("field %s %s changed: %s -> %s", field, prop, rv, lv))
		}
	}

	// multi-fields
	if rf, ok := remote.Get("fields"); ok {
		lf, _ := local.Get("fields")
		for _, sub := range rf.Keys() {
			rsub, _ := rf.Get(sub)
			lsub, ok := lf.Get(sub)
			switch {
			case !ok:
				reasons = append(reasons, fmt.Sprintf("multi-field %s.%s removed", field, sub))
			case !lsub.Equal(rsub):
				reasons = append(reasons, fmt.Sprintf("multi-field %s.%s changed", field, sub))
			}
		}
	}

	if rp, ok := remote.Get("properties"); ok {
		lp, _ := local.Get("properties")
		reasons = append(reasons, r.propertiesBreaks(field, lp, rp)...)
	}
	return reasons
}
