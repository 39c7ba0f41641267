package starlark

import (
	"fmt"

	starlarkLib "go.starlark.net/starlark"
)

// toStarlarkValue converts a Go value into its Starlark representation.
// Values without a native mapping are stringified.
func toStarlarkValue(v any) starlarkLib.Value {
	switch v := v.(type) {
	case nil:
		return starlarkLib.None
	case bool:
		return starlarkLib.Bool(v)
	case int:
		return starlarkLib.MakeInt(v)
	case int64:
		return starlarkLib.MakeInt64(v)
	case float64:
		return starlarkLib.Float(v)
	case string:
		return starlarkLib.String(v)
	default:
		return starlarkLib.String(fmt.Sprint(v))
	}
}

// fromStarlarkValue converts a Starlark value to a Go any value.
func fromStarlarkValue(v starlarkLib.Value) (any, error) {
	switch v := v.(type) {
	case nil, starlarkLib.NoneType:
		return nil, nil
	case starlarkLib.Bool:
		return bool(v), nil
	case starlarkLib.Int:
		i, _ := v.Int64()
		return i, nil
	case starlarkLib.Float:
		return float64(v), nil
	case starlarkLib.String:
		return string(v), nil
	case *starlarkLib.List:
		list := make([]any, 0, v.Len())
		for i := range v.Len() {
			elem, err := fromStarlarkValue(v.Index(i))
			if err != nil {
				return nil, fmt.Errorf("failed to convert list element: %w", err)
			}
			list = append(list, elem)
		}
		return list, nil
	case *starlarkLib.Dict:
		dict := make(map[string]any, v.Len())
		for _, k := range v.Keys() {
			val, found, err := v.Get(k)
			if err != nil || !found {
				continue
			}

			// String keys for JSON compatibility
			kStr, ok := k.(starlarkLib.String)
			if !ok {
				kStr = starlarkLib.String(k.String())
			}

			vv, err := fromStarlarkValue(val)
			if err != nil {
				return nil, fmt.Errorf("failed to convert dict value: %w", err)
			}
			dict[string(kStr)] = vv
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type %T", v)
	}
}
