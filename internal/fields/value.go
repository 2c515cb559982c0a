package fields

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CycleWeek is the canonical form of a CYCLE_WEEK_INDICATOR value.
type CycleWeek struct {
	Week int    `json:"week"`
	Verb string `json:"verb"`
}

// String renders the legacy "Semana {n}: {verb}" encoding.
func (c CycleWeek) String() string {
	if c.Week == 0 {
		return c.Verb
	}
	return fmt.Sprintf("Semana %d: %s", c.Week, c.Verb)
}

// Friend is one FRIEND_REGISTRATION record.
type Friend struct {
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Phone             string `json:"phone,omitempty"`
	SpiritualFatherID string `json:"spiritualFatherId,omitempty"`
}

// Value is a decoded field value. The zero Value is absent.
type Value struct {
	shape   Shape
	text    string
	number  float64
	boolean bool
	date    time.Time
	civil   bool // date carries a wall-clock reading, not an instant
	members []string
	friends []Friend
	week    CycleWeek
}

func TextValue(s string) Value         { return Value{shape: ShapeString, text: s} }
func NumberValue(n float64) Value      { return Value{shape: ShapeNumber, number: n} }
func BoolValue(b bool) Value           { return Value{shape: ShapeBool, boolean: b} }
func DateValue(t time.Time) Value      { return Value{shape: ShapeDate, date: t} }
func MembersValue(ids ...string) Value { return Value{shape: ShapeMembers, members: ids} }
func FriendsValue(fs ...Friend) Value  { return Value{shape: ShapeFriends, friends: fs} }
func WeekValue(c CycleWeek) Value      { return Value{shape: ShapeCycleWeek, week: c} }

// CivilDateValue records a zone-less reading; only its wall-clock fields are meaningful.
func CivilDateValue(t time.Time) Value {
	return Value{shape: ShapeDate, date: t, civil: true}
}

// Shape returns the value's shape; ShapeNone means absent.
func (v Value) Shape() Shape { return v.shape }

// IsZero reports whether the value is absent.
func (v Value) IsZero() bool { return v.shape == ShapeNone }

// Number returns the numeric form; non-numeric values are 0.
func (v Value) Number() float64 {
	if v.shape == ShapeNumber {
		return v.number
	}
	return 0
}

// Bool reports whether the value is a true boolean.
func (v Value) Bool() bool { return v.shape == ShapeBool && v.boolean }

// Time returns the date value.
func (v Value) Time() time.Time { return v.date }

// LocalDay returns the calendar day of a date value at midnight in loc. Instants are
// converted to loc first; civil readings keep their own year, month and day.
func (v Value) LocalDay(loc *time.Location) time.Time {
	return Day(v.date, v.civil, loc)
}

// Day truncates t to local midnight in loc. When civil is set, t's own calendar
// fields are used without a zone conversion.
func Day(t time.Time, civil bool, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	if !civil {
		t = t.In(loc)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Members returns the member id list.
func (v Value) Members() []string { return v.members }

// Friends returns the friend registration records.
func (v Value) Friends() []Friend { return v.friends }

// Week returns the cycle week indicator.
func (v Value) Week() CycleWeek { return v.week }

// Len returns the list length for list-valued shapes and 0 otherwise.
func (v Value) Len() int {
	switch v.shape {
	case ShapeMembers:
		return len(v.members)
	case ShapeFriends:
		return len(v.friends)
	}
	return 0
}

// String coerces the value to text. Absent values are "".
func (v Value) String() string {
	switch v.shape {
	case ShapeString:
		return v.text
	case ShapeNumber:
		return strconv.FormatFloat(v.number, 'f', -1, 64)
	case ShapeBool:
		return strconv.FormatBool(v.boolean)
	case ShapeDate:
		if v.civil {
			return v.date.Format("2006-01-02T15:04:05")
		}
		return v.date.Format(time.RFC3339)
	case ShapeMembers:
		return strings.Join(v.members, ",")
	case ShapeFriends:
		names := make([]string, len(v.friends))
		for i, f := range v.friends {
			names[i] = strings.TrimSpace(f.FirstName + " " + f.LastName)
		}
		return strings.Join(names, ",")
	case ShapeCycleWeek:
		return v.week.String()
	}
	return ""
}

// MarshalJSON writes the canonical JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.shape {
	case ShapeString:
		return json.Marshal(v.text)
	case ShapeNumber:
		return json.Marshal(v.number)
	case ShapeBool:
		return json.Marshal(v.boolean)
	case ShapeDate:
		if v.civil {
			return json.Marshal(v.date.Format("2006-01-02T15:04:05"))
		}
		return json.Marshal(v.date)
	case ShapeMembers:
		if v.members == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.members)
	case ShapeFriends:
		if v.friends == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.friends)
	case ShapeCycleWeek:
		return json.Marshal(v.week)
	}
	return []byte("null"), nil
}

// Bag holds an entry's decoded values keyed by field id.
type Bag map[string]Value

// Get returns the value for id; missing ids are absent values.
func (b Bag) Get(id string) Value {
	return b[id]
}
