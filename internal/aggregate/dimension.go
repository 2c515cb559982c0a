package aggregate

import (
	"fmt"
	"strings"
	"time"

	"github.com/matthewbaird/reportcore/internal/types"
)

// Dimension is the axis entries are partitioned by.
type Dimension string

const (
	ByEntity              Dimension = "entidad"
	ByCell                Dimension = "celula"
	BySubSector           Dimension = "subsector"
	BySector              Dimension = "sector"
	ByZone                Dimension = "zona"
	BySectorSupervisor    Dimension = "supervisor_sector"
	BySubSectorSupervisor Dimension = "supervisor_subsector"
	ByLeader              Dimension = "lider"
	ByMonth               Dimension = "mes"
	ByWeek                Dimension = "semana"
)

// UnspecifiedLabel is the bucket used for unknown dimensions.
const UnspecifiedLabel = "Sin Especificar"

// dimensionInfo describes how a name dimension reads an entry's context.
type dimensionInfo struct {
	fallback string
	read     func(types.Context) string
}

var nameDimensions = map[Dimension]dimensionInfo{
	ByEntity:              {"Sin Entidad", func(c types.Context) string { return c.EntityName }},
	ByCell:                {"Sin Célula", func(c types.Context) string { return c.CellName }},
	BySubSector:           {"Sin Subsector", func(c types.Context) string { return c.SubSectorName }},
	BySector:              {"Sin Sector", func(c types.Context) string { return c.SectorName }},
	ByZone:                {"Sin Zona", func(c types.Context) string { return c.ZoneName }},
	BySectorSupervisor:    {"Sin Supervisor", func(c types.Context) string { return c.SectorSupervisor }},
	BySubSectorSupervisor: {"Sin Supervisor", func(c types.Context) string { return c.SubSectorSupervisor }},
	ByLeader:              {"Sin Líder", func(c types.Context) string { return c.LeaderName }},
}

// Dimensions returns every supported dimension.
func Dimensions() []Dimension {
	return []Dimension{
		ByEntity, ByCell, BySubSector, BySector, ByZone,
		BySectorSupervisor, BySubSectorSupervisor, ByLeader, ByMonth, ByWeek,
	}
}

// Valid reports whether d is a supported dimension.
func (d Dimension) Valid() bool {
	if _, ok := nameDimensions[d]; ok {
		return true
	}
	return d == ByMonth || d == ByWeek
}

// Temporal reports whether d buckets entries by time.
func (d Dimension) Temporal() bool { return d == ByMonth || d == ByWeek }

var monthNames = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// bucket computes the group key and display label of an entry for d.
func bucket(d Dimension, e types.Entry, loc *time.Location) (key, label string) {
	if info, ok := nameDimensions[d]; ok {
		name := strings.TrimSpace(info.read(e.Context))
		if name == "" {
			name = info.fallback
		}
		return NormalizeKey(name), name
	}

	switch d {
	case ByMonth, ByWeek:
		if e.CreatedAt.IsZero() {
			return NormalizeKey("Sin Fecha"), "Sin Fecha"
		}
		return TimeBucket(d, e.CreatedAt.In(loc))
	}
	return NormalizeKey(UnspecifiedLabel), UnspecifiedLabel
}

// TimeBucket returns the month (yyyy-MM, "marzo 2024") or ISO week (yyyy-Www,
// "Semana 9, 2024") bucket of t.
func TimeBucket(d Dimension, t time.Time) (key, label string) {
	if d == ByWeek {
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week), fmt.Sprintf("Semana %d, %d", week, year)
	}
	return t.Format("2006-01"), fmt.Sprintf("%s %d", monthNames[t.Month()-1], t.Year())
}

// NormalizeKey folds a display name into its grouping key.
func NormalizeKey(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
