// Package types provides the report entry shapes shared by the store, the analytics
// pipeline and the HTTP surfaces. A Document is the raw, stored form of a submission;
// an Entry is the same submission decoded against its report's field definitions.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matthewbaird/reportcore/internal/fields"
)

// Scope is the organizational unit an entry is submitted on behalf of.
type Scope string

const (
	ScopeCell   Scope = "CELL"
	ScopeGroup  Scope = "GROUP"
	ScopeSector Scope = "SECTOR"
	ScopeChurch Scope = "CHURCH"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	switch s {
	case ScopeCell, ScopeGroup, ScopeSector, ScopeChurch:
		return true
	}
	return false
}

// Context is the denormalized hierarchy carried alongside an entry for grouping.
// It is supplied by the entry store and never derived here.
type Context struct {
	EntityName          string `json:"entityName,omitempty"`
	CellName            string `json:"cellName,omitempty"`
	SubSectorName       string `json:"subSectorName,omitempty"`
	SectorName          string `json:"sectorName,omitempty"`
	ZoneName            string `json:"zoneName,omitempty"`
	LeaderName          string `json:"leaderName,omitempty"`
	SubSectorSupervisor string `json:"subSectorSupervisor,omitempty"`
	SectorSupervisor    string `json:"sectorSupervisor,omitempty"`

	// Rosters maps an attendance field id to the member ids eligible to appear in it.
	Rosters map[string][]string `json:"rosters,omitempty"`
}

// RawBag is an undecoded value bag keyed by field id. It unmarshals from either an
// object keyed by field id or an array of {fieldId, value} pairs.
type RawBag map[string]json.RawMessage

type rawPair struct {
	FieldID string          `json:"fieldId"`
	Value   json.RawMessage `json:"value"`
}

// UnmarshalJSON accepts both bag encodings.
func (b *RawBag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*b = nil
		return nil
	}
	if data[0] == '[' {
		var pairs []rawPair
		if err := json.Unmarshal(data, &pairs); err != nil {
			return fmt.Errorf("decoding value pairs: %w", err)
		}
		out := make(RawBag, len(pairs))
		for _, p := range pairs {
			if p.FieldID == "" {
				continue
			}
			out[p.FieldID] = p.Value
		}
		*b = out
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("decoding value bag: %w", err)
	}
	*b = m
	return nil
}

// Document is one submission as stored.
type Document struct {
	ID        string    `json:"id"`
	ReportID  string    `json:"reportId"`
	Scope     Scope     `json:"scope"`
	CellID    string    `json:"cellId,omitempty"`
	GroupID   string    `json:"groupId,omitempty"`
	SectorID  string    `json:"sectorId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Values    RawBag    `json:"values"`
	Context   Context   `json:"context"`
}

// EntityID returns the entity reference consistent with the scope.
func (d Document) EntityID() string {
	switch d.Scope {
	case ScopeCell:
		return d.CellID
	case ScopeGroup:
		return d.GroupID
	case ScopeSector:
		return d.SectorID
	}
	return ""
}

// Decode validates the raw value bag against set. Data-quality issues are returned
// alongside a usable Entry.
func (d Document) Decode(set *fields.Set) (Entry, []fields.Issue) {
	bag, issues := fields.DecodeBag(set, d.Values)
	return Entry{
		ID:        d.ID,
		ReportID:  d.ReportID,
		Scope:     d.Scope,
		CellID:    d.CellID,
		GroupID:   d.GroupID,
		SectorID:  d.SectorID,
		CreatedAt: d.CreatedAt,
		Values:    bag,
		Context:   d.Context,
	}, issues
}

// Entry is a decoded submission. The analytics packages only read entries.
type Entry struct {
	ID        string     `json:"id"`
	ReportID  string     `json:"reportId"`
	Scope     Scope      `json:"scope"`
	CellID    string     `json:"cellId,omitempty"`
	GroupID   string     `json:"groupId,omitempty"`
	SectorID  string     `json:"sectorId,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	Values    fields.Bag `json:"values"`
	Context   Context    `json:"context"`
}

// RosterSize returns the number of members eligible for an attendance field.
// A missing roster is 0.
func (e Entry) RosterSize(fieldID string) int {
	return len(e.Context.Rosters[fieldID])
}

// DecodeAll decodes every document, collecting issues keyed by document id.
func DecodeAll(docs []Document, set *fields.Set) ([]Entry, map[string][]fields.Issue) {
	entries := make([]Entry, 0, len(docs))
	var issues map[string][]fields.Issue
	for _, d := range docs {
		e, errs := d.Decode(set)
		if len(errs) > 0 {
			if issues == nil {
				issues = make(map[string][]fields.Issue)
			}
			issues[d.ID] = errs
		}
		entries = append(entries, e)
	}
	return entries, issues
}
