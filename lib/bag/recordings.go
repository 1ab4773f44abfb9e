package bag

import (
	"fmt"
	"slices"
)

// Source is the caller-facing form of a recording set: either a single File or a Files sequence.
type Source interface {
	identifiers() ([]string, error)
}

// File is a single recording identifier (a filename or path).
type File string

func (f File) identifiers() ([]string, error) {
	if f == "" {
		return nil, ErrMissingRecording
	}
	return []string{string(f)}, nil
}

// Files is an ordered sequence of recording identifiers.
type Files []string

func (f Files) identifiers() ([]string, error) {
	if len(f) == 0 {
		return nil, ErrMissingRecording
	}
	return slices.Clone(f), nil
}

// Recordings is a validated, non-empty, immutable sequence of recording identifiers.
type Recordings struct {
	files []string
}

// NewRecordings validates src and normalizes it into a Recordings value.
func NewRecordings(src Source) (Recordings, error) {
	if src == nil {
		return Recordings{}, ErrMissingRecording
	}
	files, err := src.identifiers()
	if err != nil {
		return Recordings{}, err
	}
	return Recordings{files: files}, nil
}

// Files returns a copy of the identifiers in their original order.
func (r Recordings) Files() []string {
	return slices.Clone(r.files)
}

func (r Recordings) Len() int {
	return len(r.files)
}

func (r Recordings) String() string {
	return fmt.Sprintf("%q", r.files)
}
