// Package metadataindex evaluates key/value filters against Volume metadata.
package metadataindex

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Mode is one of the closed set of filter operators.
type Mode string

const (
	Eq       Mode = "eq"
	Neq      Mode = "neq"
	Contains Mode = "contains"
	Gt       Mode = "gt"
	Gte      Mode = "gte"
	Lt       Mode = "lt"
	Lte      Mode = "lte"
	In       Mode = "in"
	NotIn    Mode = "notIn"
	Between  Mode = "between"
)

// Filter is a single metadata predicate.
type Filter struct {
	Key   string
	Mode  Mode
	Value any // string, []string, or [2]string depending on Mode
}

func asFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return f, err == nil
}

func asStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case [2]string:
		return vv[:]
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			out = append(out, toString(e))
		}
		return out
	default:
		return nil
	}
}

func toString(v any) string {
	switch vv := v.(type) {
	case string:
		return vv
	default:
		b, _ := json.Marshal(vv)
		return string(b)
	}
}

func jsonArrayContains(raw, needle string) bool {
	var arr []any
	if err := json.Unmarshal([]byte(raw), &arr); err != nil {
		return false
	}
	for _, e := range arr {
		if toString(e) == needle {
			return true
		}
	}
	return false
}

// Matches evaluates a single filter against metadata. A missing key
// evaluates to false for every operator except Neq, which is true.
func Matches(metadata map[string]string, f Filter) bool {
	actual, present := metadata[f.Key]
	if !present {
		return f.Mode == Neq
	}

	switch f.Mode {
	case Eq:
		return actual == toString(f.Value)
	case Neq:
		return actual != toString(f.Value)
	case Contains:
		needle := toString(f.Value)
		if strings.HasPrefix(strings.TrimSpace(actual), "[") {
			if jsonArrayContains(actual, needle) {
				return true
			}
		}
		return strings.Contains(actual, needle)
	case Gt, Gte, Lt, Lte:
		af, aok := asFloat(actual)
		bf, bok := asFloat(toString(f.Value))
		if !aok || !bok {
			return false
		}
		switch f.Mode {
		case Gt:
			return af > bf
		case Gte:
			return af >= bf
		case Lt:
			return af < bf
		default:
			return af <= bf
		}
	case In, NotIn:
		values := asStringSlice(f.Value)
		found := false
		for _, v := range values {
			if v == actual {
				found = true
				break
			}
		}
		if f.Mode == In {
			return found
		}
		return !found
	case Between:
		bounds := asStringSlice(f.Value)
		if len(bounds) != 2 {
			return false
		}
		lo, loOK := asFloat(bounds[0])
		hi, hiOK := asFloat(bounds[1])
		af, aok := asFloat(actual)
		if !loOK || !hiOK || !aok || lo > hi {
			return false
		}
		return af >= lo && af <= hi
	default:
		return false
	}
}

// MatchesAll is an AND across every filter.
func MatchesAll(metadata map[string]string, filters []Filter) bool {
	for _, f := range filters {
		if !Matches(metadata, f) {
			return false
		}
	}
	return true
}
