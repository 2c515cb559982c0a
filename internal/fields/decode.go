package fields

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedValue marks a raw value that did not match its field's contract.
// The accompanying decoded value is still usable.
var ErrMalformedValue = errors.New("malformed field value")

// trueDisplay is the localized display form accepted as boolean true.
const trueDisplay = "Sí"

var legacyWeek = regexp.MustCompile(`^\s*Semana\s+(\d+)\s*:\s*(.*?)\s*$`)

var dateLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{time.RFC3339, true},
	{"2006-01-02T15:04:05", false},
	{"2006-01-02 15:04:05", false},
	{"2006-01-02", false},
}

// Issue records a data-quality problem found while decoding a bag.
type Issue struct {
	FieldID string
	Err     error
}

func (i Issue) Error() string {
	return fmt.Sprintf("field %s: %v", i.FieldID, i.Err)
}

// Decode converts a raw JSON value into the typed Value for t. null and empty input
// are absent. On malformed input Decode returns the best-effort value together with
// an error wrapping ErrMalformedValue.
func Decode(t Type, raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Value{}, nil
	}

	var decoded interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrMalformedValue, err)
	}

	switch t.Spec().Shape {
	case ShapeString:
		return TextValue(scalarString(decoded)), nil
	case ShapeNumber:
		return decodeNumber(decoded)
	case ShapeBool:
		return BoolValue(IsTrue(decoded)), nil
	case ShapeDate:
		return decodeDate(decoded)
	case ShapeMembers:
		return decodeMembers(decoded)
	case ShapeFriends:
		return decodeFriends(raw, decoded)
	case ShapeCycleWeek:
		return decodeWeek(decoded)
	case ShapeNone:
		return Value{}, nil
	}
	return Value{}, fmt.Errorf("%w: unknown field type %q", ErrMalformedValue, t)
}

// DecodeBag decodes every raw value against the set. Unknown ids and SECTION ids are
// dropped and reported as issues.
func DecodeBag(set *Set, raw map[string]json.RawMessage) (Bag, []Issue) {
	bag := make(Bag, len(raw))
	var issues []Issue

	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		def, ok := set.ByID(id)
		if !ok {
			issues = append(issues, Issue{FieldID: id, Err: fmt.Errorf("%w: no such field", ErrMalformedValue)})
			continue
		}
		if !def.Type.Spec().Data {
			continue
		}
		v, err := Decode(def.Type, raw[id])
		if err != nil {
			issues = append(issues, Issue{FieldID: id, Err: err})
		}
		if !v.IsZero() {
			bag[id] = v
		}
	}
	return bag, issues
}

// IsTrue reports whether a raw or display value is a true-equivalent: the boolean
// true, the string "true", or the display string "Sí".
func IsTrue(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true" || b == trueDisplay
	case Value:
		return b.Bool()
	}
	return false
}

// ParseNumber parses a possibly string-encoded number, returning 0 on failure.
func ParseNumber(s string) float64 {
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return n
}

// ParseDate parses the accepted timestamp encodings. Zone-less layouts are read in loc.
func ParseDate(s string, loc *time.Location) (time.Time, bool) {
	t, _, ok := parseDate(s, loc)
	return t, ok
}

func parseDate(s string, loc *time.Location) (t time.Time, zoned, ok bool) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.Local
	}
	for _, l := range dateLayouts {
		if t, err := time.ParseInLocation(l.layout, s, loc); err == nil {
			return t, l.zoned, true
		}
	}
	return time.Time{}, false, false
}

func scalarString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func decodeNumber(v interface{}) (Value, error) {
	switch n := v.(type) {
	case float64:
		return NumberValue(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return NumberValue(0), fmt.Errorf("%w: %q is not a number", ErrMalformedValue, n)
		}
		return NumberValue(f), nil
	}
	return NumberValue(0), fmt.Errorf("%w: expected number, got %T", ErrMalformedValue, v)
}

func decodeDate(v interface{}) (Value, error) {
	s, ok := v.(string)
	if !ok {
		return Value{}, fmt.Errorf("%w: expected date string, got %T", ErrMalformedValue, v)
	}
	t, zoned, ok := parseDate(s, time.UTC)
	if !ok {
		return Value{}, fmt.Errorf("%w: %q is not a date", ErrMalformedValue, s)
	}
	if !zoned {
		return CivilDateValue(t), nil
	}
	return DateValue(t), nil
}

func decodeMembers(v interface{}) (Value, error) {
	switch list := v.(type) {
	case []interface{}:
		ids := make([]string, 0, len(list))
		for _, item := range list {
			if item == nil {
				continue
			}
			ids = append(ids, scalarString(item))
		}
		return MembersValue(ids...), nil
	case string:
		if list == "" {
			return MembersValue(), nil
		}
		return MembersValue(list), nil
	}
	return MembersValue(), fmt.Errorf("%w: expected member list, got %T", ErrMalformedValue, v)
}

func decodeFriends(raw json.RawMessage, v interface{}) (Value, error) {
	if _, ok := v.([]interface{}); !ok {
		return FriendsValue(), fmt.Errorf("%w: expected friend list, got %T", ErrMalformedValue, v)
	}
	var friends []Friend
	if err := json.Unmarshal(raw, &friends); err != nil {
		// Keep the length even when records are oddly shaped.
		list := v.([]interface{})
		return FriendsValue(make([]Friend, len(list))...), fmt.Errorf("%w: %v", ErrMalformedValue, err)
	}
	return FriendsValue(friends...), nil
}

func decodeWeek(v interface{}) (Value, error) {
	switch w := v.(type) {
	case string:
		return WeekValue(ParseCycleWeek(w)), nil
	case map[string]interface{}:
		var c CycleWeek
		switch n := w["week"].(type) {
		case float64:
			c.Week = int(n)
		case string:
			c.Week = int(ParseNumber(n))
		}
		if verb, ok := w["verb"].(string); ok {
			c.Verb = verb
		}
		return WeekValue(c), nil
	}
	return WeekValue(CycleWeek{Verb: scalarString(v)}), fmt.Errorf("%w: expected cycle week, got %T", ErrMalformedValue, v)
}

// ParseCycleWeek normalizes the legacy "Semana {n}: {verb}" encoding. Strings that do
// not match are kept as the verb with week 0.
func ParseCycleWeek(s string) CycleWeek {
	m := legacyWeek.FindStringSubmatch(s)
	if m == nil {
		return CycleWeek{Verb: s}
	}
	n, _ := strconv.Atoi(m[1])
	return CycleWeek{Week: n, Verb: m[2]}
}
