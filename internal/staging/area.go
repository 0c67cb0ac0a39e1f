// Package staging holds the scratch storage used while a statement is
// analyzed, natural ordering of staged artifact names, and the document
// sources (local files and GCS objects) a run can start from.
package staging

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SummariesName is the artifact holding the concatenated per-table summaries.
const SummariesName = "summaries.txt"

// ErrInvalidName is returned for artifact names that are empty or contain a
// path separator.
var ErrInvalidName = errors.New("staging: invalid artifact name")

// Area is per-run scratch storage for named artifacts. An area belongs to a
// single run; Cleanup reclaims everything it holds.
type Area interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	// List returns the names of all artifacts in unspecified order.
	List(ctx context.Context) ([]string, error)
	Cleanup(ctx context.Context) error
	// Location describes where the area lives, for logs.
	Location() string
}

// Factory opens a fresh Area for the run with the given id.
type Factory func(ctx context.Context, runID string) (Area, error)

// TableName returns the artifact name of the n-th extracted table.
func TableName(n int) string {
	return fmt.Sprintf("table%d.md", n)
}

// IsTableName reports whether name was produced by TableName.
func IsTableName(name string) bool {
	return strings.HasPrefix(name, "table") && strings.HasSuffix(name, ".md")
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
