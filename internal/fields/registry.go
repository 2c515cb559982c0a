// Package fields provides the field type registry, report field definitions, and
// the typed value bag that every other analytics package consumes.
package fields

// Type is one of the closed set of report field kinds.
type Type string

const (
	Text               Type = "TEXT"
	Number             Type = "NUMBER"
	Currency           Type = "CURRENCY"
	Boolean            Type = "BOOLEAN"
	Date               Type = "DATE"
	Select             Type = "SELECT"
	MemberSelect       Type = "MEMBER_SELECT"
	MemberAttendance   Type = "MEMBER_ATTENDANCE"
	FriendRegistration Type = "FRIEND_REGISTRATION"
	CycleWeekIndicator Type = "CYCLE_WEEK_INDICATOR"
	Section            Type = "SECTION"
)

// Shape is the value contract carried by a field type.
type Shape int

const (
	ShapeNone Shape = iota
	ShapeString
	ShapeNumber
	ShapeBool
	ShapeDate
	ShapeMembers
	ShapeFriends
	ShapeCycleWeek
)

// FilterKind selects the predicate the filter engine applies to a field.
type FilterKind int

const (
	FilterNone FilterKind = iota
	FilterSubstring
	FilterRange
	FilterBool
	FilterExact
	FilterDateRange
)

// AggKind selects how a field contributes to group aggregates.
type AggKind int

const (
	AggNone AggKind = iota
	AggSum
	AggLength
	AggAttendance
	AggTrueCount
)

// Spec describes a field type's behaviour across the pipeline.
type Spec struct {
	Type   Type
	Shape  Shape
	Filter FilterKind
	Agg    AggKind
	Data   bool // false for layout-only types
}

// Numeric reports whether the type aggregates into a running sum.
func (s Spec) Numeric() bool {
	return s.Agg == AggSum || s.Agg == AggLength || s.Agg == AggAttendance
}

// registry is the single source of truth for type behaviour.
var registry = map[Type]Spec{
	Text:               {Type: Text, Shape: ShapeString, Filter: FilterSubstring, Data: true},
	Select:             {Type: Select, Shape: ShapeString, Filter: FilterExact, Data: true},
	CycleWeekIndicator: {Type: CycleWeekIndicator, Shape: ShapeCycleWeek, Filter: FilterSubstring, Data: true},
	Number:             {Type: Number, Shape: ShapeNumber, Filter: FilterRange, Agg: AggSum, Data: true},
	Currency:           {Type: Currency, Shape: ShapeNumber, Filter: FilterRange, Agg: AggSum, Data: true},
	Boolean:            {Type: Boolean, Shape: ShapeBool, Filter: FilterBool, Agg: AggTrueCount, Data: true},
	Date:               {Type: Date, Shape: ShapeDate, Filter: FilterDateRange, Data: true},
	MemberSelect:       {Type: MemberSelect, Shape: ShapeMembers, Agg: AggLength, Data: true},
	MemberAttendance:   {Type: MemberAttendance, Shape: ShapeMembers, Agg: AggAttendance, Data: true},
	FriendRegistration: {Type: FriendRegistration, Shape: ShapeFriends, Agg: AggLength, Data: true},
	Section:            {Type: Section, Shape: ShapeNone},
}

// Lookup returns the registry entry for t.
func Lookup(t Type) (Spec, bool) {
	s, ok := registry[t]
	return s, ok
}

// Spec returns the registry entry for t, or the zero Spec for unknown types.
func (t Type) Spec() Spec {
	return registry[t]
}

// Valid reports whether t is a registered type.
func (t Type) Valid() bool {
	_, ok := registry[t]
	return ok
}

// Types returns every registered type in declaration order.
func Types() []Type {
	return []Type{
		Text, Number, Currency, Boolean, Date, Select, MemberSelect,
		MemberAttendance, FriendRegistration, CycleWeekIndicator, Section,
	}
}
