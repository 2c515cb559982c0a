// Package seed provides a demo report and deterministic demo submissions.
package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/matthewbaird/reportcore/internal/catalog"
	"github.com/matthewbaird/reportcore/internal/store"
	"github.com/matthewbaird/reportcore/internal/types"
)

//go:embed demo.cue
var demoTemplate []byte

// DemoReportID is the id of the embedded demo report.
const DemoReportID = "informe-semanal"

// Report parses the embedded demo report.
func Report() (catalog.Report, error) {
	return catalog.Parse("demo.cue", demoTemplate)
}

type cell struct {
	name, subSector, sector, zone, leader, subSupervisor, supervisor string
	members                                                          []string
}

var cells = []cell{
	{"Célula Norte 1", "Subsector Norte A", "Sector Norte", "Zona 1", "Ana Pérez", "Luis Gómez", "María Ruiz", members("n1", 8)},
	{"Célula Norte 2", "Subsector Norte A", "Sector Norte", "Zona 1", "Carlos Díaz", "Luis Gómez", "María Ruiz", members("n2", 6)},
	{"Célula Norte 10", "Subsector Norte B", "Sector Norte", "Zona 1", "Elena Soto", "Jorge Vera", "María Ruiz", members("n10", 10)},
	{"Célula Sur 1", "Subsector Sur A", "Sector Sur", "Zona 2", "Pedro Luna", "Rosa Mejía", "Andrés Gil", members("s1", 7)},
	{"Célula Sur 2", "Subsector Sur A", "Sector Sur", "Zona 2", "Lucía Ramos", "Rosa Mejía", "Andrés Gil", members("s2", 5)},
}

// CellNames returns the display names of every demo cell.
func CellNames() []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = c.name
	}
	return out
}

func members(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-m%d", prefix, i+1)
	}
	return out
}

var verbs = []string{"Ganar", "Consolidar", "Discipular", "Enviar"}

// Documents returns weeks of weekly submissions per cell ending at end. The last
// cell skips the final week so inactivity shows up in weekly views.
func Documents(end time.Time, weeks int) []types.Document {
	var docs []types.Document
	for w := range weeks {
		at := end.AddDate(0, 0, -7*(weeks-1-w))
		for ci, c := range cells {
			if ci == len(cells)-1 && w == weeks-1 {
				continue
			}
			present := c.members[:len(c.members)-(w+ci)%3]
			attendees := len(present) + (w+ci)%4
			values := map[string]any{
				"tema":          fmt.Sprintf("Estudio %d", w+1),
				"fecha":         at.Format("2006-01-02"),
				"asistentes":    attendees,
				"lista":         present,
				"ayuno":         (w+ci)%2 == 0,
				"horas_oracion": float64((w*3+ci)%5) + 0.5,
				"capitulos":     (w + ci) % 7,
				"ciclo":         map[string]any{"week": w%4 + 1, "verb": verbs[w%4]},
				"ofrenda":       fmt.Sprintf("%d.%02d", 20+ci*5+w, (w*17)%100),
				"rol":           []string{"LIDER", "MIEMBRO"}[w%2],
			}
			if w%2 == 0 {
				values["reunion_lideres"] = "Sí"
			}
			if (w+ci)%3 == 0 {
				values["invitados"] = []map[string]any{{"firstName": "Invitado", "lastName": fmt.Sprint(w), "phone": "555-0100"}}
			}
			docs = append(docs, types.Document{
				ID:        fmt.Sprintf("demo-%d-%d", ci, w),
				ReportID:  DemoReportID,
				Scope:     types.ScopeCell,
				CellID:    fmt.Sprintf("cell-%d", ci),
				CreatedAt: at.Add(time.Duration(ci) * time.Hour).UTC(),
				Values:    rawBag(values),
				Context: types.Context{
					EntityName:          c.name,
					CellName:            c.name,
					SubSectorName:       c.subSector,
					SectorName:          c.sector,
					ZoneName:            c.zone,
					LeaderName:          c.leader,
					SubSectorSupervisor: c.subSupervisor,
					SectorSupervisor:    c.supervisor,
					Rosters:             map[string][]string{"lista": c.members},
				},
			})
		}
	}
	return docs
}

func rawBag(values map[string]any) types.RawBag {
	bag := make(types.RawBag, len(values))
	for k, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			panic(err)
		}
		bag[k] = b
	}
	return bag
}

// Load registers the demo report and writes its documents unless the store already
// holds some. It is idempotent.
func Load(ctx context.Context, cat *catalog.Memory, st store.Store, end time.Time) error {
	report, err := Report()
	if err != nil {
		return fmt.Errorf("parsing demo report: %w", err)
	}
	if err := cat.Register(report); err != nil {
		return err
	}

	existing, err := st.ListDocuments(ctx, DemoReportID, store.ListOptions{Limit: 1})
	if err != nil {
		return fmt.Errorf("checking demo documents: %w", err)
	}
	if len(existing) > 0 {
		log.Info().Str("report_id", DemoReportID).Msg("demo documents already seeded, skipping")
		return nil
	}

	docs := Documents(end, 8)
	if err := st.WriteDocuments(ctx, docs); err != nil {
		return fmt.Errorf("writing demo documents: %w", err)
	}
	log.Info().Str("report_id", DemoReportID).Int("documents", len(docs)).Msg("seeded demo documents")
	return nil
}
