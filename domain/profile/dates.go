package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"
)

const dateLayout = time.DateOnly

// Date is a calendar date stored as a timestamp at midnight UTC.
// It accepts "2006-01-02" or RFC3339 input and always serializes as an
// RFC3339 timestamp.
type Date struct {
	time.Time
}

// NewDate returns the date of t at midnight UTC.
func NewDate(t time.Time) Date {
	return Date{Time: midnight(t)}
}

// ParseDate parses "2006-01-02" or RFC3339 into a Date.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return NewDate(t), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: expected YYYY-MM-DD or RFC3339", s)
	}
	return NewDate(t), nil
}

// MarshalJSON encodes the date as a midnight UTC timestamp.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(midnight(d.Time).Format(time.RFC3339))
}

// UnmarshalJSON accepts a date or timestamp string.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// JSONSchema describes dates as calendar dates for generated schemas.
func (Date) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:   "string",
		Format: "date",
	}
}

func midnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

var dateType = reflect.TypeOf(Date{})

// NormalizeDates walks v recursively through structs, pointers, slices,
// arrays and maps, truncating every Date it finds to midnight UTC. v must be
// a pointer for the changes to be visible.
func NormalizeDates(v any) {
	normalize(reflect.ValueOf(v))
}

func normalize(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			normalize(v.Elem())
		}
	case reflect.Struct:
		if v.Type() == dateType {
			if v.CanSet() {
				d := v.Interface().(Date)
				v.Set(reflect.ValueOf(NewDate(d.Time)))
			}
			return
		}
		for i := range v.NumField() {
			if v.Type().Field(i).IsExported() {
				normalize(v.Field(i))
			}
		}
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			normalize(v.Index(i))
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			val := iter.Value()
			if val.Kind() == reflect.Pointer {
				normalize(val)
				continue
			}
			// Map values are not addressable; copy, normalize, write back.
			cp := reflect.New(val.Type()).Elem()
			cp.Set(val)
			normalize(cp)
			v.SetMapIndex(iter.Key(), cp)
		}
	}
}
