package eventlog

// DiffContext computes the recursive diff of cur relative to prev: each
// persisted record stores only the change from the previous record's
// effective context, not the whole thing. A key present in cur but absent
// or changed relative to prev is included (recursively, for nested maps);
// a key removed from cur is marked with the deleted-key sentinel so
// MergeContext can tell "unchanged" apart from "deleted" even after the
// diff has round-tripped through JSON.
func DiffContext(prev, cur map[string]any) map[string]any {
	diff := make(map[string]any)
	for k, curVal := range cur {
		prevVal, existed := prev[k]
		if !existed {
			diff[k] = curVal
			continue
		}
		curMap, curIsMap := curVal.(map[string]any)
		prevMap, prevIsMap := prevVal.(map[string]any)
		if curIsMap && prevIsMap {
			if sub := DiffContext(prevMap, curMap); len(sub) > 0 {
				diff[k] = sub
			}
			continue
		}
		if !equalValue(prevVal, curVal) {
			diff[k] = curVal
		}
	}
	for k := range prev {
		if _, stillPresent := cur[k]; !stillPresent {
			diff[k] = deletedMarker()
		}
	}
	return diff
}

// deletedMarkerKey is the map key DiffContext writes for a key removed
// between two context snapshots. A plain map value (rather than a typed
// Go struct) is used because the diff is persisted as JSON: a typed
// sentinel would unmarshal back as an indistinguishable empty
// map[string]any, silently turning every restored deletion back into a
// no-op merge.
const deletedMarkerKey = "$statecraft.deleted"

func deletedMarker() map[string]any {
	return map[string]any{deletedMarkerKey: true}
}

func isDeletedMarker(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	flag, ok := m[deletedMarkerKey]
	if !ok {
		return false
	}
	b, ok := flag.(bool)
	return ok && b
}

// MergeContext applies a diff produced by DiffContext on top of base,
// returning a new map (base is never mutated). Nested maps are merged
// recursively so a diff that only touches one nested field doesn't need to
// carry its siblings.
func MergeContext(base, diff map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(diff))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range diff {
		if isDeletedMarker(v) {
			delete(out, k)
			continue
		}
		if subDiff, ok := v.(map[string]any); ok {
			if baseSub, ok := out[k].(map[string]any); ok {
				out[k] = MergeContext(baseSub, subDiff)
				continue
			}
		}
		out[k] = v
	}
	return out
}

func equalValue(a, b any) bool {
	// Context values round-trip through JSON at rest, so comparing via a
	// cheap reflect-free path covers the types that matter here: strings,
	// bools, float64/int-ish numbers, and nil. Anything else falls back to
	// "changed", which only costs an extra (harmless) diff entry.
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case int:
		bv, ok := b.(int)
		return ok && av == bv
	case nil:
		return b == nil
	default:
		return false
	}
}
