package visibility

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/reportcore/internal/fields"
)

func roleFields() *fields.Set {
	return fields.MustSet(
		fields.Definition{ID: "f-role", Key: "role", Type: fields.Select, Order: 1,
			Options: []string{"LIDER", "MIEMBRO"}},
		fields.Definition{ID: "f-count", Key: "asistentes", Type: fields.Number, Order: 2},
		fields.Definition{ID: "f-notes", Key: "notas", Type: fields.Text, Order: 3},
		fields.Definition{ID: "f-leader", Key: "reunion_lideres", Type: fields.Boolean, Order: 4,
			VisibilityRules: []fields.Rule{{FieldKey: "role", Operator: fields.OpEquals, Value: "LIDER"}}},
	)
}

func TestIsVisible_EqualsToggles(t *testing.T) {
	set := roleFields()
	ev := NewEvaluator(set)
	dep, _ := set.ByID("f-leader")

	values := fields.Bag{"f-role": fields.TextValue("MIEMBRO")}
	assert.False(t, ev.IsVisible(dep, values))

	values["f-role"] = fields.TextValue("LIDER")
	assert.True(t, ev.IsVisible(dep, values))
}

func TestIsVisible_NoRulesAlwaysVisible(t *testing.T) {
	set := roleFields()
	def, _ := set.ByID("f-notes")
	assert.True(t, IsFieldVisible(set, def, nil))
}

func TestIsVisible_DanglingReferenceFailsOpen(t *testing.T) {
	set := roleFields()
	def := fields.Definition{ID: "x", Type: fields.Text,
		VisibilityRules: []fields.Rule{{FieldKey: "does_not_exist", Operator: fields.OpEquals, Value: "y"}}}
	assert.True(t, NewEvaluator(set).IsVisible(def, fields.Bag{}))
}

func TestIsVisible_AllRulesMustHold(t *testing.T) {
	set := roleFields()
	ev := NewEvaluator(set)
	def := fields.Definition{ID: "x", Type: fields.Text, VisibilityRules: []fields.Rule{
		{FieldKey: "role", Operator: fields.OpEquals, Value: "LIDER"},
		{FieldKey: "asistentes", Operator: fields.OpGT, Value: "10"},
	}}

	cases := []struct {
		name  string
		role  string
		count float64
		want  bool
	}{
		{"both hold", "LIDER", 12, true},
		{"first fails", "MIEMBRO", 12, false},
		{"second fails", "LIDER", 10, false},
		{"both fail", "MIEMBRO", 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values := fields.Bag{
				"f-role":  fields.TextValue(tc.role),
				"f-count": fields.NumberValue(tc.count),
			}
			r1 := ev.Satisfied(def.VisibilityRules[0], values)
			r2 := ev.Satisfied(def.VisibilityRules[1], values)
			assert.Equal(t, tc.want, ev.IsVisible(def, values))
			assert.Equal(t, r1 && r2, ev.IsVisible(def, values))
		})
	}
}

func TestSatisfied_Operators(t *testing.T) {
	set := roleFields()
	ev := NewEvaluator(set)
	values := fields.Bag{
		"f-notes": fields.TextValue("Reunión de Oración"),
		"f-count": fields.NumberValue(7),
	}

	assert.True(t, ev.Satisfied(fields.Rule{FieldKey: "notas", Operator: fields.OpContains, Value: "oración"}, values))
	assert.False(t, ev.Satisfied(fields.Rule{FieldKey: "notas", Operator: fields.OpContains, Value: "ayuno"}, values))
	assert.True(t, ev.Satisfied(fields.Rule{FieldKey: "notas", Operator: fields.OpNotEquals, Value: "x"}, values))
	assert.True(t, ev.Satisfied(fields.Rule{FieldKey: "asistentes", Operator: fields.OpLT, Value: "7.5"}, values))
	assert.False(t, ev.Satisfied(fields.Rule{FieldKey: "asistentes", Operator: fields.OpGT, Value: "abc"}, values))
	// Absent controlling value coerces to "" which compares as 0.
	assert.True(t, ev.Satisfied(fields.Rule{FieldKey: "role", Operator: fields.OpLT, Value: "1"}, values))
	assert.True(t, ev.Satisfied(fields.Rule{FieldKey: "role", Operator: fields.OpEquals, Value: ""}, values))
}

func TestLayout_SectionsAndBreaks(t *testing.T) {
	set := fields.MustSet(
		fields.Definition{ID: "intro", Key: "intro", Type: fields.Text, Order: 0},
		fields.Definition{ID: "s1", Key: "s1", Label: "Asistencia", Type: fields.Section, Order: 1},
		fields.Definition{ID: "a", Key: "a", Type: fields.Number, Order: 2},
		fields.Definition{ID: "brk", Key: "brk", Type: fields.Section, Value: fields.SectionBreak, Order: 3},
		fields.Definition{ID: "b", Key: "b", Type: fields.Number, Order: 4},
		fields.Definition{ID: "s2", Key: "s2", Label: "Líderes", Type: fields.Section, Order: 5,
			VisibilityRules: []fields.Rule{{FieldKey: "intro", Operator: fields.OpEquals, Value: "lider"}}},
		fields.Definition{ID: "c", Key: "c", Type: fields.Number, Order: 6},
	)
	ev := NewEvaluator(set)

	sections := ev.Layout(fields.Bag{"intro": fields.TextValue("miembro")})
	require.Len(t, sections, 3)
	assert.Equal(t, "", sections[0].Title)
	assert.Equal(t, "Asistencia", sections[1].Title)
	assert.True(t, sections[2].Break)
	assert.Equal(t, "", sections[2].Title)

	visible := ev.VisibleIDs(fields.Bag{"intro": fields.TextValue("miembro")})
	assert.False(t, visible["c"], "fields of a hidden section are hidden")
	assert.True(t, visible["b"])

	sections = ev.Layout(fields.Bag{"intro": fields.TextValue("lider")})
	require.Len(t, sections, 4)
	assert.Equal(t, "Líderes", sections[3].Title)
}
