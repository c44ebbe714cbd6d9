package query

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/fulldump/rowmodel/utils"
)

// Getter lets record types expose their fields without reflection.
type Getter interface {
	Get(field string) any
}

// ValueGetter reads one field of a record.
type ValueGetter func(data any, field string) any

// Value reads field from data. Dotted fields walk nested maps.
func Value(data any, field string) any {
	if data == nil {
		return nil
	}
	if strings.Contains(field, ".") {
		current := data
		for _, part := range strings.Split(field, ".") {
			current = Value(current, part)
			if current == nil {
				return nil
			}
		}
		return current
	}

	switch d := data.(type) {
	case map[string]any:
		return d[field]
	case map[string]string:
		v, ok := d[field]
		if !ok {
			return nil
		}
		return v
	case Getter:
		return d.Get(field)
	}

	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		if name == field || f.Name == field {
			return v.Field(i).Interface()
		}
	}
	return nil
}

// KeyString renders a group key value. Nil renders as empty string.
func KeyString(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ToMap returns data as a generic map, the shape filter conditions are
// evaluated against.
func ToMap(data any) (map[string]any, error) {
	if m, ok := data.(map[string]any); ok {
		return m, nil
	}
	m := map[string]any{}
	err := utils.Remarshal(data, &m)
	if err != nil {
		return nil, fmt.Errorf("remarshal record: %w", err)
	}
	return m, nil
}
