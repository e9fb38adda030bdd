package jsonv

import "regexp"

var numericString = regexp.MustCompile(`^-?(0|[1-9][0-9]*)(\.[0-9]+)?([eE][+-]?[0-9]+)?$`)

// Coerce rewrites string-encoded booleans and numbers into their native
// form, recursively. The search cluster echoes most scalar settings back as
// strings ("1", "true"), so both sides of a comparison go through Coerce.
func Coerce(v Value) Value {
	switch v.kind {
	case KindString:
		switch v.s {
		case "true":
			return Bool(true)
		case "false":
			return Bool(false)
		}
		if numericString.MatchString(v.s) {
			if n, err := numberLiteral(v.s); err == nil {
				return n
			}
		}
		return v
	case KindArray:
		elems := make([]Value, len(v.arr))
		for i, e := range v.arr {
			elems[i] = Coerce(e)
		}
		return Value{kind: KindArray, arr: elems}
	case KindObject:
		members := make(map[string]Value, len(v.obj))
		for k, m := range v.obj {
			members[k] = Coerce(m)
		}
		return Value{kind: KindObject, obj: members}
	default:
		return v
	}
}

// Merge overlays patch onto base: objects merge member by member, any other
// patch value replaces the base value outright. This is how the cluster's
// partial-update endpoints combine a patch with the existing index state.
func Merge(base, patch Value) Value {
	if base.kind != KindObject || patch.kind != KindObject {
		return patch
	}
	out := base.Members()
	for k, pm := range patch.obj {
		if bm, ok := out[k]; ok {
			out[k] = Merge(bm, pm)
		} else {
			out[k] = pm
		}
	}
	return Value{kind: KindObject, obj: out}
}

// MergeReplacing is Merge, except that patch objects for which replace
// returns true overwrite the base value instead of merging into it.
func MergeReplacing(base, patch Value, replace func(Value) bool) Value {
	if base.kind != KindObject || patch.kind != KindObject || replace(patch) {
		return patch
	}
	out := base.Members()
	for k, pm := range patch.obj {
		if bm, ok := out[k]; ok {
			out[k] = MergeReplacing(bm, pm, replace)
		} else {
			out[k] = pm
		}
	}
	return Value{kind: KindObject, obj: out}
}
