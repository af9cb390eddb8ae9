package typesense

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ympact/typesense-sync/internal/model"
)

// HTTPError is a non-2xx response from Typesense.
type HTTPError struct {
	Op     string // e.g. "create collection"
	Name   string // collection or alias the call addressed
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("typesense %s %q: status %d: %s", e.Op, e.Name, e.Status, e.Body)
}

// Unwrap maps well-known statuses onto the shared sentinels.
func (e *HTTPError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return model.ErrNotFound
	case http.StatusConflict:
		return model.ErrConflict
	default:
		return nil
	}
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusNotFound
}

// IsConflict reports whether err is a backend 409 (e.g. collection exists).
func IsConflict(err error) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.Status == http.StatusConflict
}

// ImportError reports per-document import failures for one collection.
type ImportError struct {
	Collection string
	Failed     int
	First      ImportResult
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import into %q: %d document(s) failed, first: %s (document: %s)",
		e.Collection, e.Failed, e.First.Error, e.First.Document)
}

// CheckImport turns per-document results into an *ImportError when any
// document failed.
func CheckImport(collection string, results []ImportResult) error {
	var ie *ImportError
	for _, r := range results {
		if r.Success {
			continue
		}
		if ie == nil {
			ie = &ImportError{Collection: collection, First: r}
		}
		ie.Failed++
	}
	if ie == nil {
		return nil
	}
	return ie
}
