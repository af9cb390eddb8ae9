package model

import (
	"fmt"
	"strconv"
)

// Document is a single search document as sent to the backend.
type Document map[string]any

// ID returns the document identifier rendered as a string, the only form
// Typesense accepts.
func (d Document) ID() string {
	return IDString(d["id"])
}

// IDString renders a primary key value the way it is stored in the index.
func IDString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
