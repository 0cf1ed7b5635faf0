// Package layering composes configuration structs from ordered layers.
package layering

import "reflect"

// MergeLayers composes values ordered from strongest to weakest. A field set
// in a stronger layer wins; zero scalars, nil pointers, nil or empty slices and
// nil maps fall through to the next weaker layer. Maps are merged key by key.
func MergeLayers[T any](layers ...T) T {
	var zero T
	if len(layers) == 0 {
		return zero
	}

	merged := clone(reflect.ValueOf(layers[len(layers)-1]))
	for i := len(layers) - 2; i >= 0; i-- {
		merged = merge(reflect.ValueOf(layers[i]), merged)
	}
	if !merged.IsValid() {
		return zero
	}
	out := reflect.New(reflect.TypeOf(zero)).Elem()
	out.Set(merged.Convert(out.Type()))
	return out.Interface().(T)
}

func merge(strong, weak reflect.Value) reflect.Value {
	if !strong.IsValid() {
		return clone(weak)
	}
	if !weak.IsValid() || weak.Type() != strong.Type() {
		return clone(strong)
	}

	switch strong.Kind() {
	case reflect.Struct:
		out := reflect.New(strong.Type()).Elem()
		for i := 0; i < strong.NumField(); i++ {
			if !out.Field(i).CanSet() {
				continue
			}
			out.Field(i).Set(merge(strong.Field(i), weak.Field(i)))
		}
		return out
	case reflect.Pointer:
		if strong.IsNil() {
			return clone(weak)
		}
		if weak.IsNil() {
			return clone(strong)
		}
		out := reflect.New(strong.Type().Elem())
		out.Elem().Set(merge(strong.Elem(), weak.Elem()))
		return out
	case reflect.Map:
		if strong.IsNil() {
			return clone(weak)
		}
		out := clone(weak)
		if out.IsNil() {
			out = reflect.MakeMapWithSize(strong.Type(), strong.Len())
		}
		iter := strong.MapRange()
		for iter.Next() {
			if existing := out.MapIndex(iter.Key()); existing.IsValid() {
				out.SetMapIndex(iter.Key(), merge(iter.Value(), existing))
				continue
			}
			out.SetMapIndex(iter.Key(), clone(iter.Value()))
		}
		return out
	case reflect.Slice:
		if strong.Len() == 0 {
			return clone(weak)
		}
		return clone(strong)
	case reflect.Interface:
		if strong.IsNil() {
			return clone(weak)
		}
		return clone(strong)
	default:
		if strong.IsZero() {
			return clone(weak)
		}
		return clone(strong)
	}
}

func clone(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(clone(v.Elem()))
		return out
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if out.Field(i).CanSet() {
				out.Field(i).Set(clone(v.Field(i)))
			}
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			out.SetMapIndex(iter.Key(), clone(iter.Value()))
		}
		return out
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(clone(v.Index(i)))
		}
		return out
	default:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		return out
	}
}
