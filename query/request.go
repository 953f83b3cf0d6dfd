package query

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// SortTerm is a raw, unvalidated sort entry.
type SortTerm struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// RawQueryRequest is the untrusted query a client sent. Nothing in it has
// been checked; Build turns it into a QueryDescriptor.
type RawQueryRequest struct {
	// Where maps a field to a scalar (equality) or to an operator map.
	Where map[string]any
	// Sort keeps the order the client wrote the terms in.
	Sort    []SortTerm
	Select  []string
	Include []string
	Skip    *int
	Take    *int
	// Problems found while decoding the request; Build reports them with
	// the validation problems.
	Problems []Problem
}

// UnmarshalJSON decodes a request body of the form
//
//	{"where": {...}, "sort": {"title": "asc"}, "select": [...], "include": [...], "skip": 0, "take": 10}
//
// Sort keeps the order of its object keys. Numbers in where become int64 when
// integral and float64 otherwise.
func (r *RawQueryRequest) UnmarshalJSON(data []byte) error {
	var aux struct {
		Where   json.RawMessage `json:"where"`
		Sort    json.RawMessage `json:"sort"`
		Select  []string        `json:"select"`
		Include []string        `json:"include"`
		Skip    json.RawMessage `json:"skip"`
		Take    json.RawMessage `json:"take"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	out := RawQueryRequest{Select: aux.Select, Include: aux.Include}
	if len(aux.Where) > 0 {
		out.Where = out.decodeWhere(aux.Where)
	}
	if len(aux.Sort) > 0 {
		out.Sort = out.decodeSort(aux.Sort)
	}
	out.Skip = out.decodeInt(ParamSkip, string(bytes.TrimSpace(aux.Skip)))
	out.Take = out.decodeInt(ParamTake, string(bytes.TrimSpace(aux.Take)))

	*r = out
	return nil
}

// ParseValues reads a request from flat query-string parameters:
//
//	where=<json object>
//	sort=<json object> or sort=title:asc,done:desc
//	select=title,done    (comma separated and/or repeated)
//	include=profile
//	skip=0&take=10
func ParseValues(values url.Values) RawQueryRequest {
	var r RawQueryRequest

	if raw := strings.TrimSpace(values.Get(ParamWhere)); raw != "" {
		r.Where = r.decodeWhere([]byte(raw))
	}

	for _, raw := range values[ParamSort] {
		raw = strings.TrimSpace(raw)
		switch {
		case raw == "":
		case strings.HasPrefix(raw, "{"):
			r.Sort = append(r.Sort, r.decodeSort([]byte(raw))...)
		default:
			r.Sort = append(r.Sort, parseSortList(raw)...)
		}
	}

	r.Select = splitList(values[ParamSelect])
	r.Include = splitList(values[ParamInclude])
	r.Skip = r.decodeInt(ParamSkip, strings.TrimSpace(values.Get(ParamSkip)))
	r.Take = r.decodeInt(ParamTake, strings.TrimSpace(values.Get(ParamTake)))
	return r
}

func (r *RawQueryRequest) problem(param, message string) {
	r.Problems = append(r.Problems, Problem{Param: param, Message: message})
}

func (r *RawQueryRequest) decodeWhere(data []byte) map[string]any {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var where map[string]any
	if err := dec.Decode(&where); err != nil {
		r.problem(ParamWhere, "must be a JSON object")
		return nil
	}
	if where == nil {
		return nil
	}
	return normalizeJSON(where).(map[string]any)
}

// decodeSort walks the object token by token so the key order survives.
func (r *RawQueryRequest) decodeSort(data []byte) []SortTerm {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		r.problem(ParamSort, "must be a JSON object")
		return nil
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		r.problem(ParamSort, "must be a JSON object")
		return nil
	}

	var terms []SortTerm
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			r.problem(ParamSort, "must be a JSON object")
			return nil
		}
		field, _ := keyTok.(string)

		var dir any
		if err := dec.Decode(&dir); err != nil {
			r.problem(ParamSort, "must be a JSON object")
			return nil
		}
		s, ok := dir.(string)
		if !ok {
			s = fmt.Sprint(dir)
		}
		terms = append(terms, SortTerm{Field: field, Direction: s})
	}
	return terms
}

func (r *RawQueryRequest) decodeInt(param, raw string) *int {
	if raw == "" || raw == "null" {
		return nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.problem(param, "must be a non-negative integer")
		return nil
	}
	return &n
}

func parseSortList(raw string) []SortTerm {
	var terms []SortTerm
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, dir, found := strings.Cut(part, ":")
		if !found {
			dir = string(Asc)
		}
		terms = append(terms, SortTerm{Field: strings.TrimSpace(field), Direction: strings.TrimSpace(dir)})
	}
	return terms
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// normalizeJSON replaces json.Number values with int64 or float64.
func normalizeJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeJSON(e)
		}
		return t
	case []any:
		for i, e := range t {
			t[i] = normalizeJSON(e)
		}
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil && !math.IsInf(f, 0) {
			return f
		}
		return t.String()
	default:
		return v
	}
}

// ErrNotObject is returned by DecodeObject when the input is not a JSON object.
var ErrNotObject = errors.New("query: not a JSON object")

// DecodeObject decodes a JSON object with the same number handling as
// where predicates. It is used for write payloads.
func DecodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if obj == nil {
		return nil, ErrNotObject
	}
	return normalizeJSON(obj).(map[string]any), nil
}
