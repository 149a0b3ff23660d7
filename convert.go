package sqlfrag

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Converter translates values of one column type between their Go and
// database representations. nil always converts to nil.
type Converter interface {
	ToDb(v any) (any, error)
	FromDb(v any) (any, error)
}

// Timestamp layouts written by the date converters.
const (
	ISOTimestamp   = "2006-01-02T15:04:05.000Z07:00"
	MySQLTimestamp = "2006-01-02 15:04:05"
)

// parseLayouts are tried in order when a date is read from text.
var parseLayouts = []string{
	time.RFC3339Nano,
	ISOTimestamp,
	"2006-01-02T15:04:05",
	MySQLTimestamp,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05Z07:00",
	time.DateOnly,
}

// DateTimeConverter stores time.Time values as UTC text in Layout.
type DateTimeConverter struct {
	Layout string
}

func (c DateTimeConverter) ToDb(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if x.IsZero() {
			return nil, nil
		}
		return x.UTC().Format(c.Layout), nil
	case *time.Time:
		if x == nil {
			return nil, nil
		}
		return c.ToDb(*x)
	case string:
		if x == "" {
			return nil, nil
		}
		t, err := parseTime(x)
		if err != nil {
			return nil, err
		}
		return c.ToDb(t)
	case int64:
		return c.ToDb(time.UnixMilli(x))
	}
	return nil, fmt.Errorf("%w: date from %T", ErrUnsupportedConverter, v)
}

func (c DateTimeConverter) FromDb(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return x, nil
	case string:
		if x == "" {
			return nil, nil
		}
		return parseTime(x)
	case []byte:
		if len(x) == 0 {
			return nil, nil
		}
		return parseTime(string(x))
	case int64:
		return time.UnixMilli(x).UTC(), nil
	}
	return nil, fmt.Errorf("%w: date from %T", ErrUnsupportedConverter, v)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not a date", ErrUnsupportedConverter, s)
}

// UUIDConverter stores UUIDs in their canonical text form.
type UUIDConverter struct{}

func (UUIDConverter) ToDb(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case uuid.UUID:
		return x.String(), nil
	case *uuid.UUID:
		if x == nil {
			return nil, nil
		}
		return x.String(), nil
	case [16]byte:
		return uuid.UUID(x).String(), nil
	case string:
		if x == "" {
			return nil, nil
		}
		id, err := uuid.Parse(x)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedConverter, err)
		}
		return id.String(), nil
	}
	return nil, fmt.Errorf("%w: uuid from %T", ErrUnsupportedConverter, v)
}

func (UUIDConverter) FromDb(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case uuid.UUID:
		return x, nil
	case string:
		id, err := uuid.Parse(x)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedConverter, err)
		}
		return id, nil
	case []byte:
		if len(x) == 16 {
			return uuid.FromBytes(x)
		}
		return UUIDConverter{}.FromDb(string(x))
	}
	return nil, fmt.Errorf("%w: uuid from %T", ErrUnsupportedConverter, v)
}

// JSONConverter stores arbitrary values as JSON text and decodes them back
// into generic maps, slices and scalars.
type JSONConverter struct{}

func (JSONConverter) ToDb(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case json.RawMessage:
		return string(x), nil
	}
	if rv := reflect.ValueOf(v); (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Map || rv.Kind() == reflect.Slice) && rv.IsNil() {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedConverter, err)
	}
	return string(b), nil
}

func (JSONConverter) FromDb(v any) (any, error) {
	var raw []byte
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		raw = []byte(x)
	case []byte:
		raw = x
	default:
		return v, nil
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedConverter, err)
	}
	return out, nil
}

// converterFor maps every type tag to c.
func converterFor(c Converter, types ...string) map[string]Converter {
	out := make(map[string]Converter, len(types))
	for _, t := range types {
		out[strings.ToUpper(t)] = c
	}
	return out
}
