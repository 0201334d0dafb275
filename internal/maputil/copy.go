// Package maputil deep-copies the nested maps and slices that Helm uses for
// chart values.
package maputil

// DeepCopyMap returns a copy of src that shares no nested map or slice with
// it. Scalars are copied by value.
func DeepCopyMap(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}

	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = deepCopy(v)
	}

	return dst
}

// DeepCopySlice is DeepCopyMap for a []interface{}.
func DeepCopySlice(src []interface{}) []interface{} {
	if src == nil {
		return nil
	}

	dst := make([]interface{}, len(src))
	for i, v := range src {
		dst[i] = deepCopy(v)
	}

	return dst
}

func deepCopy(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return DeepCopyMap(val)
	case []interface{}:
		return DeepCopySlice(val)
	default:
		return v
	}
}
