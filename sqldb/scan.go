package sqldb

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/gandaldf/sqlfrag"
	"github.com/gandaldf/sqlfrag/internal/fieldmap"
)

// colKind classifies the strategy for scanning a result column into a struct field.
type colKind uint8

const (
	ckSink    colKind = iota // column is ignored, scan into sink
	ckScanner                // field implements sql.Scanner
	ckPtr                    // field is *T (we use a **T holder)
	ckValue                  // direct value field
	ckConvert                // scanned into a sink, then passed through a converter
)

var (
	rowMapType    = reflect.TypeOf(map[string]any(nil))
	scanPlanCache = fieldmap.NewCache[planKey, *scanPlan](fieldmap.DefaultCacheSize)
)

// target is the table rows are hydrated as. Both fields may be nil.
type target struct {
	meta   *sqlfrag.TableMeta
	schema *sqlfrag.Schema
}

// column finds the mapped column named name, by column name first and then
// by property.
func (t target) column(name string) (sqlfrag.ColumnDef, bool) {
	if t.meta == nil {
		return sqlfrag.ColumnDef{}, false
	}
	for _, c := range t.meta.Columns() {
		if c.Name == name {
			return c, true
		}
	}
	return t.meta.Column(name)
}

func (t target) converter(c sqlfrag.ColumnDef) sqlfrag.Converter {
	if t.schema == nil {
		return nil
	}
	conv, _ := t.schema.Converter(c.Type)
	return conv
}

// result wraps a row set with the per-query column facts.
type result struct {
	rows   *sql.Rows
	cols   []string
	binary []bool
}

func newResult(rows *sql.Rows) (*result, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	r := &result{rows: rows, cols: cols, binary: make([]bool, len(cols))}
	if types, err := rows.ColumnTypes(); err == nil {
		for i, ct := range types {
			r.binary[i] = isBinaryType(ct.DatabaseTypeName())
		}
	}
	return r, nil
}

func isBinaryType(name string) bool {
	name = strings.ToUpper(name)
	return strings.Contains(name, "BLOB") || strings.Contains(name, "BINARY") || name == "BYTEA"
}

// values scans the current row into generic values. Text returned as bytes
// becomes a string.
func (r *result) values() ([]any, error) {
	vals := make([]any, len(r.cols))
	ptrs := make([]any, len(r.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	if err := r.rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range vals {
		if b, ok := v.([]byte); ok && !r.binary[i] {
			vals[i] = string(b)
		}
	}
	return vals, nil
}

// scanMap scans the current row into a map. With a target table, keys are
// property names and converters are applied.
func (r *result) scanMap(tg target) (map[string]any, error) {
	vals, err := r.values()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(r.cols))
	for i, name := range r.cols {
		key, v := name, vals[i]
		if col, ok := tg.column(name); ok {
			key = col.Prop
			if conv := tg.converter(col); conv != nil {
				if v, err = conv.FromDb(v); err != nil {
					return nil, fmt.Errorf("sqldb: column %q: %w", name, err)
				}
			}
		}
		out[key] = v
	}
	return out, nil
}

// rowScanner returns a function scanning the current row into a value of
// type t. It supports map[string]any, structs (flattened mapping via `db`
// tags or field names) and single-column primitives or sql.Scanner types.
func (r *result) rowScanner(t reflect.Type, tg target) (func(dst reflect.Value) error, error) {
	switch {
	case t == rowMapType:
		return func(dst reflect.Value) error {
			m, err := r.scanMap(tg)
			if err != nil {
				return err
			}
			dst.Set(reflect.ValueOf(m))
			return nil
		}, nil

	case t.Kind() == reflect.Struct && fieldmap.ShouldFlatten(t):
		plan, err := getScanPlan(r.cols, t, tg)
		if err != nil {
			return nil, err
		}
		st := plan.newState()
		return func(dst reflect.Value) error { return plan.scan(r.rows, st, dst) }, nil

	default:
		if len(r.cols) != 1 {
			return nil, fmt.Errorf("sqldb: scan on type %s requires 1 column, got %d", t, len(r.cols))
		}
		return func(dst reflect.Value) error { return r.rows.Scan(dst.Addr().Interface()) }, nil
	}
}

// scanOne scans the current row into dest, a non-nil pointer.
func (r *result) scanOne(dest any, tg target) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("sqldb: dest must be a non-nil pointer")
	}
	rv = rv.Elem()
	scan, err := r.rowScanner(rv.Type(), tg)
	if err != nil {
		return err
	}
	return scan(rv)
}

// scanAll scans all rows into dest, a pointer to a slice of maps, structs,
// pointers to structs or single-column values.
func (r *result) scanAll(dest any, tg target) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return fmt.Errorf("sqldb: dest must be a non-nil pointer")
	}
	rv = rv.Elem()
	if rv.Kind() != reflect.Slice {
		return fmt.Errorf("sqldb: All requires a pointer to slice, got %s", rv.Type())
	}
	if rv.Len() != 0 {
		rv.Set(rv.Slice(0, 0))
	}

	elemT := rv.Type().Elem()
	isPtr := elemT.Kind() == reflect.Pointer && elemT.Elem().Kind() == reflect.Struct && fieldmap.ShouldFlatten(elemT.Elem())
	rowT := elemT
	if isPtr {
		rowT = elemT.Elem()
	}
	scan, err := r.rowScanner(rowT, tg)
	if err != nil {
		return err
	}

	for r.rows.Next() {
		if isPtr {
			ptr := reflect.New(rowT)
			if err := scan(ptr.Elem()); err != nil {
				return err
			}
			rv.Set(reflect.Append(rv, ptr))
			continue
		}
		rv.Set(reflect.Append(rv, reflect.Zero(rowT)))
		if err := scan(rv.Index(rv.Len() - 1)); err != nil {
			return err
		}
	}
	return r.rows.Err()
}

// scanState holds per-scan mutable buffers.
type scanState struct {
	targets []any
	sinks   []any
	holders []reflect.Value
}

// scanPlan describes how to map each result column to a struct field (immutable).
type scanPlan struct {
	cols          []string
	kinds         []colKind
	fPath         [][]int
	ptrIdx        []int
	convIdx       []int
	ptrFieldTypes []reflect.Type
	conv          []sqlfrag.Converter
}

func (p *scanPlan) newState() *scanState {
	n := len(p.kinds)
	st := &scanState{
		targets: make([]any, n),
		sinks:   make([]any, n),
		holders: make([]reflect.Value, n),
	}
	for i := 0; i < n; i++ {
		st.sinks[i] = new(any)
	}
	for _, i := range p.ptrIdx {
		st.holders[i] = reflect.New(p.ptrFieldTypes[i])
	}
	return st
}

func (p *scanPlan) scan(rows *sql.Rows, st *scanState, dst reflect.Value) error {
	for i := range p.kinds {
		switch p.kinds[i] {
		case ckSink, ckConvert:
			st.targets[i] = st.sinks[i]
		case ckScanner, ckValue:
			st.targets[i] = fieldmap.Alloc(dst, p.fPath[i]).Addr().Interface()
		case ckPtr:
			h := st.holders[i]
			h.Elem().SetZero()
			st.targets[i] = h.Interface()
		}
	}
	if err := rows.Scan(st.targets...); err != nil {
		return err
	}
	for _, i := range p.ptrIdx {
		fieldmap.Set(dst, p.fPath[i], st.holders[i].Elem())
	}
	for _, i := range p.convIdx {
		v, err := p.conv[i].FromDb(*(st.sinks[i].(*any)))
		if err != nil {
			return fmt.Errorf("sqldb: column %q: %w", p.cols[i], err)
		}
		if err := assign(fieldmap.Alloc(dst, p.fPath[i]), v); err != nil {
			return fmt.Errorf("sqldb: column %q: %w", p.cols[i], err)
		}
	}
	return nil
}

// assign stores a converted value into field f.
func assign(f reflect.Value, v any) error {
	if v == nil {
		f.SetZero()
		return nil
	}
	rv := reflect.ValueOf(v)
	ft := f.Type()
	if ft.Kind() == reflect.Pointer && !rv.Type().AssignableTo(ft) {
		p := reflect.New(ft.Elem())
		if err := assign(p.Elem(), v); err != nil {
			return err
		}
		f.Set(p)
		return nil
	}
	switch {
	case rv.Type().AssignableTo(ft):
		f.Set(rv)
	case rv.Kind() == ft.Kind() && rv.Type().ConvertibleTo(ft):
		f.Set(rv.Convert(ft))
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(b, f.Addr().Interface()); err != nil {
			return fmt.Errorf("cannot assign %T to %s: %w", v, ft, err)
		}
	}
	return nil
}

type planKey struct {
	dstType reflect.Type
	meta    *sqlfrag.TableMeta
	schema  *sqlfrag.Schema
	sig     string
}

func getScanPlan(cols []string, dstT reflect.Type, tg target) (*scanPlan, error) {
	key := planKey{dstType: dstT, meta: tg.meta, schema: tg.schema, sig: strings.Join(cols, "\x1f")}
	if p, ok := scanPlanCache.Get(key); ok {
		return p, nil
	}
	p, err := buildScanPlan(cols, dstT, tg)
	if err != nil {
		return nil, err
	}
	scanPlanCache.Put(key, p)
	return p, nil
}

// buildScanPlan decides, per column, whether to sink it, use sql.Scanner,
// treat it as *T, convert it or scan it as a plain value. Columns are matched
// to fields by name, then through the target table's property names.
func buildScanPlan(cols []string, dstT reflect.Type, tg target) (*scanPlan, error) {
	fmap := fieldmap.Of(dstT)
	p := &scanPlan{
		cols:          cols,
		kinds:         make([]colKind, len(cols)),
		fPath:         make([][]int, len(cols)),
		ptrFieldTypes: make([]reflect.Type, len(cols)),
		conv:          make([]sqlfrag.Converter, len(cols)),
	}

	for i, name := range cols {
		col, mapped := tg.column(name)
		fi, ok := fmap.Lookup(name)
		if !ok && mapped {
			fi, ok = fmap.Lookup(col.Prop)
		}
		if !ok {
			p.kinds[i] = ckSink
			continue
		}
		if fi.Ambiguous {
			return nil, fmt.Errorf("%w: %q", ErrFieldAmbiguous, name)
		}

		ft := dstT.FieldByIndex(fi.Index).Type
		p.fPath[i] = fi.Index
		switch {
		case fieldmap.IsScanner(ft):
			p.kinds[i] = ckScanner
		case mapped && tg.converter(col) != nil:
			p.kinds[i] = ckConvert
			p.conv[i] = tg.converter(col)
			p.convIdx = append(p.convIdx, i)
		case ft.Kind() == reflect.Pointer:
			p.kinds[i] = ckPtr
			p.ptrFieldTypes[i] = ft
			p.ptrIdx = append(p.ptrIdx, i)
		default:
			p.kinds[i] = ckValue
		}
	}
	return p, nil
}
