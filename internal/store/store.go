// Package store persists submitted report documents.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matthewbaird/reportcore/internal/types"
)

// ErrInvalidDocument is returned for documents that cannot be stored.
var ErrInvalidDocument = errors.New("invalid document")

// Store reads and writes report documents. Writes upsert by document id.
type Store interface {
	WriteDocuments(ctx context.Context, docs []types.Document) error
	ListDocuments(ctx context.Context, reportID string, opts ListOptions) ([]types.Document, error)
}

// ListOptions narrows a listing. Zero values impose no constraint.
type ListOptions struct {
	Since *time.Time  // created at or after
	Until *time.Time  // created at or before
	Scope types.Scope // only documents of this scope
	Limit int         // 0 for all
}

func (o ListOptions) match(d types.Document) bool {
	if o.Since != nil && d.CreatedAt.Before(*o.Since) {
		return false
	}
	if o.Until != nil && d.CreatedAt.After(*o.Until) {
		return false
	}
	if o.Scope != "" && d.Scope != o.Scope {
		return false
	}
	return true
}

func validate(d types.Document) error {
	switch {
	case d.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidDocument)
	case d.ReportID == "":
		return fmt.Errorf("%w: document %s has no report id", ErrInvalidDocument, d.ID)
	case d.Scope != "" && !d.Scope.Valid():
		return fmt.Errorf("%w: document %s has unknown scope %q", ErrInvalidDocument, d.ID, d.Scope)
	}
	return nil
}
