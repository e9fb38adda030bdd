package core

import "github.com/kilupskalvis/aliasmig/internal/jsonv"

// SettingsPatch computes the partial settings update that moves remote to
// local, wrapped under "index". It returns an empty object when nothing
// differs. Keys only remote has are never part of a patch.
func SettingsPatch(local, remote jsonv.Value) jsonv.Value {
	raw := settingsShape(local)
	patch := diffTree(jsonv.Coerce(raw), NormalizeSettings(remote), raw)
	if patch.Len() == 0 {
		return jsonv.EmptyObject()
	}
	return jsonv.EmptyObject().With("index", patch)
}

// MappingsPatch computes the partial mapping update that moves remote to
// local. Field definitions are always sent whole because the mapping API
// redefines a field from scratch on update.
func MappingsPatch(local, remote jsonv.Value) jsonv.Value {
	raw := mappingsShape(local)
	local = jsonv.Coerce(raw)
	remote = NormalizeMappings(remote)

	patch := diffTree(local, remote, raw)
	// dynamic is a top-level switch, not a field; compare it on its own
	patch = patch.Without("dynamic")
	if ld, ok := local.Get("dynamic"); ok {
		if rd, ok := remote.Get("dynamic"); !ok || !rd.Equal(ld) {
			rawDynamic, _ := raw.Get("dynamic")
			patch = patch.With("dynamic", rawDynamic)
		}
	}
	return patch
}

// diffTree returns the members of local that are missing from or differ in
// remote. Objects recurse unless they are field definitions. local is
// compared, but emitted values are taken from raw, the uncoerced tree of
// the same shape, so they reach the cluster exactly as declared.
func diffTree(local, remote, raw jsonv.Value) jsonv.Value {
	out := jsonv.EmptyObject()
	for _, k := range local.Keys() {
		lv, _ := local.Get(k)
		sv, _ := raw.Get(k)
		rv, ok := remote.Get(k)
		switch {
		case !ok:
			out = out.With(k, sv)
		case lv.Equal(rv):
		case lv.IsObject() && rv.IsObject() && !isFieldDefinition(lv):
			if sub := diffTree(lv, rv, sv); sub.Len() > 0 {
				out = out.With(k, sub)
			}
		default:
			out = out.With(k, sv)
		}
	}
	return out
}

// IsEmptyPatch reports whether a patch carries no changes.
func IsEmptyPatch(patch jsonv.Value) bool {
	return patch.Len() == 0
}
