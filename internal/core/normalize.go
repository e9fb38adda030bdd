package core

import (
	"strings"

	"github.com/kilupskalvis/aliasmig/internal/jsonv"
)

// serverManagedSettings are reported by the cluster but rejected when
// creating an index.
var serverManagedSettings = []string{
	"uuid",
	"creation_date",
	"creation_date_string",
	"provided_name",
	"version",
	"history_uuid",
	"verified_before_close",
	"resize",
}

// NormalizeSettings brings a settings object into canonical form: the
// "index" wrapper and "index." key prefixes are dropped, dotted keys are
// expanded into nested objects, and string-encoded scalars are coerced.
// The result is for comparison only and is never sent to the cluster.
func NormalizeSettings(v jsonv.Value) jsonv.Value {
	return jsonv.Coerce(settingsShape(v))
}

// NormalizeMappings coerces scalars and drops explicit "object" types from
// nodes that carry properties, which the cluster treats as equivalent.
func NormalizeMappings(v jsonv.Value) jsonv.Value {
	return jsonv.Coerce(mappingsShape(v))
}

// settingsShape is NormalizeSettings without scalar coercion.
func settingsShape(v jsonv.Value) jsonv.Value {
	if !v.IsObject() {
		return jsonv.EmptyObject()
	}
	out := jsonv.EmptyObject()
	for _, k := range v.Keys() {
		member, _ := v.Get(k)
		if k == "index" && member.IsObject() {
			out = jsonv.Merge(out, expandDotted(member))
			continue
		}
		out = jsonv.Merge(out, nestUnder(strings.TrimPrefix(k, "index."), expandDotted(member)))
	}
	return out
}

// mappingsShape is NormalizeMappings without scalar coercion.
func mappingsShape(v jsonv.Value) jsonv.Value {
	if !v.IsObject() {
		return jsonv.EmptyObject()
	}
	return normalizeObjectTypes(v)
}

// ProjectSettings keeps only the parts of live that declared also names.
func ProjectSettings(live, declared jsonv.Value) jsonv.Value {
	if !live.IsObject() || !declared.IsObject() {
		return live
	}
	out := jsonv.EmptyObject()
	for _, k := range declared.Keys() {
		lm, ok := live.Get(k)
		if !ok {
			continue
		}
		dm, _ := declared.Get(k)
		out = out.With(k, ProjectSettings(lm, dm))
	}
	return out
}

// CreatableSettings strips server-managed keys from live settings so they
// can be used to create a sibling index. Values are kept as the cluster
// reported them.
func CreatableSettings(live jsonv.Value) jsonv.Value {
	out := settingsShape(live)
	for _, k := range serverManagedSettings {
		out = out.Without(k)
	}
	return out
}

func normalizeObjectTypes(v jsonv.Value) jsonv.Value {
	switch v.Kind() {
	case jsonv.KindArray:
		elems := make([]jsonv.Value, 0, v.Len())
		for _, e := range v.Elems() {
			elems = append(elems, normalizeObjectTypes(e))
		}
		return jsonv.Array(elems...)
	case jsonv.KindObject:
		members := v.Members()
		for k, m := range members {
			members[k] = normalizeObjectTypes(m)
		}
		out := jsonv.Object(members)
		if t, ok := out.Get("type"); ok && out.Has("properties") {
			if s, _ := t.AsString(); s == "object" {
				out = out.Without("type")
			}
		}
		return out
	default:
		return v
	}
}

func expandDotted(v jsonv.Value) jsonv.Value {
	if !v.IsObject() {
		return v
	}
	out := jsonv.EmptyObject()
	for _, k := range v.Keys() {
		member, _ := v.Get(k)
		out = jsonv.Merge(out, nestUnder(k, expandDotted(member)))
	}
	return out
}

// nestUnder wraps v in one object per dot-separated segment of key.
func nestUnder(key string, v jsonv.Value) jsonv.Value {
	parts := strings.Split(key, ".")
	for i := len(parts) - 1; i >= 0; i-- {
		v = jsonv.EmptyObject().With(parts[i], v)
	}
	return v
}

// fieldType returns the effective type of a mapping field; a field with
// properties and no type is an object.
func fieldType(def jsonv.Value) string {
	if t, ok := def.Get("type"); ok {
		if s, ok := t.AsString(); ok {
			return s
		}
	}
	if def.Has("properties") {
		return "object"
	}
	return ""
}

// isFieldDefinition reports whether v defines a field. A properties object
// may hold a field named "type", whose value is an object, not a string.
func isFieldDefinition(v jsonv.Value) bool {
	t, ok := v.Get("type")
	return ok && t.IsString()
}
