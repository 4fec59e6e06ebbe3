package rtde

import (
	"fmt"

	"urdriver/shared"
)

// Coercion helpers for input-recipe values. Callers hand the command
// channel plain ints and float64s; the wire type is dictated by the recipe,
// so each field is coerced here. A nil value encodes as zero.

func asBool(v interface{}) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	}
	return false, fmt.Errorf("cannot encode %T as BOOL", v)
}

func asUint8(v interface{}) (uint8, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case uint8:
		return t, nil
	case int:
		if t < 0 || t > 255 {
			return 0, fmt.Errorf("value %d does not fit UINT8", t)
		}
		return uint8(t), nil
	}
	return 0, fmt.Errorf("cannot encode %T as UINT8", v)
}

func asUint32(v interface{}) (uint32, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case uint32:
		return t, nil
	case int:
		if t < 0 {
			return 0, fmt.Errorf("value %d does not fit UINT32", t)
		}
		return uint32(t), nil
	}
	return 0, fmt.Errorf("cannot encode %T as UINT32", v)
}

func asUint64(v interface{}) (uint64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case uint64:
		return t, nil
	case uint32:
		return uint64(t), nil
	case int:
		if t < 0 {
			return 0, fmt.Errorf("value %d does not fit UINT64", t)
		}
		return uint64(t), nil
	}
	return 0, fmt.Errorf("cannot encode %T as UINT64", v)
}

func asInt32(v interface{}) (int32, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case int32:
		return t, nil
	case int:
		return int32(t), nil
	}
	return 0, fmt.Errorf("cannot encode %T as INT32", v)
}

func asFloat64(v interface{}) (float64, error) {
	switch t := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	}
	return 0, fmt.Errorf("cannot encode %T as DOUBLE", v)
}

func asVector3(v interface{}) (shared.Vector3, error) {
	switch t := v.(type) {
	case nil:
		return shared.Vector3{}, nil
	case shared.Vector3:
		return t, nil
	case []float64:
		if len(t) != 3 {
			return shared.Vector3{}, fmt.Errorf("VECTOR3D needs 3 elements, got %d", len(t))
		}
		return shared.Vector3{t[0], t[1], t[2]}, nil
	}
	return shared.Vector3{}, fmt.Errorf("cannot encode %T as VECTOR3D", v)
}

func asVector6(v interface{}) (shared.Vector6, error) {
	switch t := v.(type) {
	case nil:
		return shared.Vector6{}, nil
	case shared.Vector6:
		return t, nil
	case []float64:
		if len(t) != 6 {
			return shared.Vector6{}, fmt.Errorf("VECTOR6D needs 6 elements, got %d", len(t))
		}
		return shared.Vector6{t[0], t[1], t[2], t[3], t[4], t[5]}, nil
	}
	return shared.Vector6{}, fmt.Errorf("cannot encode %T as VECTOR6D", v)
}

func asVector6Int32(v interface{}) ([6]int32, error) {
	switch t := v.(type) {
	case nil:
		return [6]int32{}, nil
	case [6]int32:
		return t, nil
	case []int:
		if len(t) != 6 {
			return [6]int32{}, fmt.Errorf("VECTOR6INT32 needs 6 elements, got %d", len(t))
		}
		var out [6]int32
		for i, n := range t {
			out[i] = int32(n)
		}
		return out, nil
	}
	return [6]int32{}, fmt.Errorf("cannot encode %T as VECTOR6INT32", v)
}

func asVector6Uint32(v interface{}) ([6]uint32, error) {
	switch t := v.(type) {
	case nil:
		return [6]uint32{}, nil
	case [6]uint32:
		return t, nil
	}
	return [6]uint32{}, fmt.Errorf("cannot encode %T as VECTOR6UINT32", v)
}
