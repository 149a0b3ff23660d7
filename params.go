package sqlfrag

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Params maps placeholder names to bound values. Names are either positional
// ("_1", "_2", ... assigned while fragments are combined) or named ("id",
// "limit", a column name...).
type Params map[string]any

// placeholderRe matches a $name placeholder token.
var placeholderRe = regexp.MustCompile(`\$(\w+)`)

// positional returns N for a positional name "_N".
func positional(name string) (int, bool) {
	if len(name) < 2 || name[0] != '_' {
		return 0, false
	}
	n, err := strconv.Atoi(name[1:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Keys returns the parameter names in rendering order: positional names
// numerically first, then named keys lexicographically.
func (p Params) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sortParamKeys(keys)
	return keys
}

func sortParamKeys(keys []string) {
	sort.SliceStable(keys, func(i, j int) bool {
		a, aok := positional(keys[i])
		b, bok := positional(keys[j])
		switch {
		case aok && bok:
			return a < b
		case aok:
			return true
		case bok:
			return false
		}
		return keys[i] < keys[j]
	})
}

// Clone returns a shallow copy of p. A nil map clones to an empty one.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// NextParamVal returns 1 + the highest positional index in p (1 when p has none).
func NextParamVal(p Params) int {
	hi := 0
	for k := range p {
		if n, ok := positional(k); ok && n > hi {
			hi = n
		}
	}
	return hi + 1
}

// NextParam returns the next free positional name in p.
func NextParam(p Params) string {
	return "_" + strconv.Itoa(NextParamVal(p))
}

// MergeParams copies the params of f into acc and returns the SQL of f to
// splice into the statement acc belongs to.
//
// When none of f's names exist in acc the params are copied verbatim and the
// SQL is returned unchanged. Otherwise every name of f is renamed to a fresh
// positional name starting after the highest positional index of acc, and
// its placeholders in the SQL are rewritten accordingly. f.Params is never
// modified.
func MergeParams(acc Params, f Fragment) string {
	conflict := false
	for k := range f.Params {
		if _, ok := acc[k]; ok {
			conflict = true
			break
		}
	}
	if !conflict {
		for k, v := range f.Params {
			acc[k] = v
		}
		return f.SQL
	}

	start := NextParamVal(acc)
	renames := make(map[string]string, len(f.Params))
	for i, k := range f.Params.Keys() {
		to := "_" + strconv.Itoa(start+i)
		renames[k] = to
		acc[to] = f.Params[k]
	}
	return renamePlaceholders(f.SQL, renames)
}

// renamePlaceholders rewrites every $old placeholder in sql to $new. Names not
// present in renames are left untouched. All rewrites happen in one pass, so a
// rename chain (_1 -> _2, _2 -> _3) can never cascade.
func renamePlaceholders(sql string, renames map[string]string) string {
	if len(renames) == 0 || !strings.Contains(sql, "$") {
		return sql
	}
	return placeholderRe.ReplaceAllStringFunc(sql, func(tok string) string {
		if to, ok := renames[tok[1:]]; ok {
			return "$" + to
		}
		return tok
	})
}
