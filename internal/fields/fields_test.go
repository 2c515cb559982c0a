package fields

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_EveryTypeRegistered(t *testing.T) {
	for _, typ := range Types() {
		spec, ok := Lookup(typ)
		require.True(t, ok, "type %s missing from registry", typ)
		assert.Equal(t, typ, spec.Type)
	}
	assert.False(t, Type("RATING").Valid())
}

func TestRegistry_Classification(t *testing.T) {
	numeric := []Type{Number, Currency, FriendRegistration, MemberSelect, MemberAttendance}
	for _, typ := range numeric {
		assert.True(t, typ.Spec().Numeric(), "%s should aggregate numerically", typ)
	}
	assert.Equal(t, AggTrueCount, Boolean.Spec().Agg)
	for _, typ := range []Type{Text, Select, Date, CycleWeekIndicator, Section} {
		assert.Equal(t, AggNone, typ.Spec().Agg, "%s should not aggregate", typ)
	}
	assert.False(t, Section.Spec().Data)
	for _, typ := range []Type{MemberSelect, MemberAttendance, FriendRegistration, Section} {
		assert.Equal(t, FilterNone, typ.Spec().Filter, "%s should not be filterable", typ)
	}
}

func TestNewSet_OrdersAndIndexes(t *testing.T) {
	set, err := NewSet([]Definition{
		{ID: "f2", Key: "second", Type: Number, Order: 2},
		{ID: "f1", Key: "first", Type: Text, Order: 1},
		{ID: "s1", Key: "sec", Type: Section, Order: 0},
	})
	require.NoError(t, err)

	all := set.All()
	require.Len(t, all, 3)
	assert.Equal(t, "s1", all[0].ID)
	assert.Equal(t, "f1", all[1].ID)
	assert.Equal(t, "f2", all[2].ID)

	d, ok := set.ByKey("second")
	require.True(t, ok)
	assert.Equal(t, "f2", d.ID)

	numeric := set.Numeric()
	require.Len(t, numeric, 1)
	assert.Equal(t, "f2", numeric[0].ID)
}

func TestNewSet_DuplicateID(t *testing.T) {
	_, err := NewSet([]Definition{
		{ID: "f1", Type: Number},
		{ID: "f1", Type: Text},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateFieldID))
	var dup DuplicateIDError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, "f1", dup.ID)
}

func TestNewSet_InvalidDefinitions(t *testing.T) {
	_, err := NewSet([]Definition{{ID: "", Type: Text}})
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = NewSet([]Definition{{ID: "x", Type: "RATING"}})
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestDecode_Number(t *testing.T) {
	v, err := Decode(Number, json.RawMessage(`5`))
	require.NoError(t, err)
	assert.Equal(t, 5.0, v.Number())

	v, err = Decode(Currency, json.RawMessage(`"12.5"`))
	require.NoError(t, err)
	assert.Equal(t, 12.5, v.Number())

	v, err = Decode(Number, json.RawMessage(`"abc"`))
	assert.ErrorIs(t, err, ErrMalformedValue)
	assert.False(t, v.IsZero(), "unparsable numbers stay present")
	assert.Equal(t, 0.0, v.Number())

	v, err = Decode(Number, json.RawMessage(`null`))
	require.NoError(t, err)
	assert.True(t, v.IsZero())
}

func TestDecode_BooleanTrueEquivalents(t *testing.T) {
	cases := map[string]bool{
		`true`:    true,
		`"true"`:  true,
		`"Sí"`:    true,
		`false`:   false,
		`"false"`: false,
		`"no"`:    false,
	}
	for raw, want := range cases {
		v, err := Decode(Boolean, json.RawMessage(raw))
		require.NoError(t, err)
		assert.Equal(t, want, v.Bool(), "raw %s", raw)
	}
}

func TestDecode_CycleWeekForms(t *testing.T) {
	legacy, err := Decode(CycleWeekIndicator, json.RawMessage(`"Semana 3: Consolidar"`))
	require.NoError(t, err)
	assert.Equal(t, CycleWeek{Week: 3, Verb: "Consolidar"}, legacy.Week())

	structured, err := Decode(CycleWeekIndicator, json.RawMessage(`{"week":3,"verb":"Consolidar"}`))
	require.NoError(t, err)
	assert.Equal(t, legacy.Week(), structured.Week())
	assert.Equal(t, "Semana 3: Consolidar", structured.String())

	free, err := Decode(CycleWeekIndicator, json.RawMessage(`"Ganar"`))
	require.NoError(t, err)
	assert.Equal(t, CycleWeek{Verb: "Ganar"}, free.Week())
}

func TestDecode_Lists(t *testing.T) {
	v, err := Decode(MemberAttendance, json.RawMessage(`["m1","m2",3]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2", "3"}, v.Members())
	assert.Equal(t, 3, v.Len())

	f, err := Decode(FriendRegistration, json.RawMessage(`[{"firstName":"Ana","lastName":"Ruiz","spiritualFatherId":"m1"}]`))
	require.NoError(t, err)
	require.Equal(t, 1, f.Len())
	assert.Equal(t, "m1", f.Friends()[0].SpiritualFatherID)
}

func TestDecode_Dates(t *testing.T) {
	v, err := Decode(Date, json.RawMessage(`"2024-03-01"`))
	require.NoError(t, err)
	west := time.FixedZone("UTC-5", -5*3600)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, west), v.LocalDay(west),
		"zone-less dates keep their calendar day in any location")

	v, err = Decode(Date, json.RawMessage(`"2024-02-29T23:00:00Z"`))
	require.NoError(t, err)
	east := time.FixedZone("CET", 3600)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, east), v.LocalDay(east))

	_, err = Decode(Date, json.RawMessage(`"soon"`))
	assert.ErrorIs(t, err, ErrMalformedValue)
}

func TestDecodeBag_DropsUnknownAndSections(t *testing.T) {
	set := MustSet(
		Definition{ID: "n", Type: Number},
		Definition{ID: "s", Type: Section},
	)
	bag, issues := DecodeBag(set, map[string]json.RawMessage{
		"n":       json.RawMessage(`"7"`),
		"s":       json.RawMessage(`"x"`),
		"missing": json.RawMessage(`1`),
	})
	assert.Equal(t, 7.0, bag.Get("n").Number())
	_, hasSection := bag["s"]
	assert.False(t, hasSection)
	require.Len(t, issues, 1)
	assert.Equal(t, "missing", issues[0].FieldID)
}

func TestIsTrue(t *testing.T) {
	assert.True(t, IsTrue(true))
	assert.True(t, IsTrue("true"))
	assert.True(t, IsTrue("Sí"))
	assert.True(t, IsTrue(BoolValue(true)))
	assert.False(t, IsTrue(nil))
	assert.False(t, IsTrue("si"))
}
