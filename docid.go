package manuscript

import (
	"errors"
	"fmt"
	"strings"
)

const worldbuildingPrefix = "worldbuilding"

// ErrInvalidDocID is returned for ids that do not match the composite format.
// It is a programmer/client error and is never retried.
var ErrInvalidDocID = errors.New("invalid document id, expected format is <owner>:<project>:<doc> or worldbuilding:<owner>:<project>:<element>")

// DocID identifies a document across owner, project and document name.
// Worldbuilding elements share the same sync machinery under a
// distinguishing prefix.
type DocID struct {
	Worldbuilding bool
	Owner         string
	Project       string
	Doc           string
}

// ParseDocID parses a composite document id. All segments must be non-empty;
// malformed ids are rejected before any I/O is attempted.
func ParseDocID(s string) (DocID, error) {
	parts := strings.Split(s, ":")

	switch len(parts) {
	case 3:
		id := DocID{Owner: parts[0], Project: parts[1], Doc: parts[2]}
		if parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return DocID{}, fmt.Errorf("%w: %q", ErrInvalidDocID, s)
		}
		return id, nil
	case 4:
		if parts[0] != worldbuildingPrefix {
			return DocID{}, fmt.Errorf("%w: %q", ErrInvalidDocID, s)
		}
		if parts[1] == "" || parts[2] == "" || parts[3] == "" {
			return DocID{}, fmt.Errorf("%w: %q", ErrInvalidDocID, s)
		}
		return DocID{Worldbuilding: true, Owner: parts[1], Project: parts[2], Doc: parts[3]}, nil
	default:
		return DocID{}, fmt.Errorf("%w: %q", ErrInvalidDocID, s)
	}
}

func (id DocID) String() string {
	if id.Worldbuilding {
		return worldbuildingPrefix + ":" + id.Owner + ":" + id.Project + ":" + id.Doc
	}
	return id.Owner + ":" + id.Project + ":" + id.Doc
}

// ProjectKey is the client-side project scope key, <owner>/<project>.
func (id DocID) ProjectKey() string {
	return id.Owner + "/" + id.Project
}

// Valid reports whether every segment of the id is non-empty.
func (id DocID) Valid() bool {
	return id.Owner != "" && id.Project != "" && id.Doc != ""
}
