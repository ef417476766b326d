// Package roster provides the read-only doctor directory consulted by the
// workflow engine. The engine looks doctors up by id and never mutates them.
//
// Directories are loaded from CUE: schema.cue defines #Doctor and the
// roster file supplies a doctors list that is unified against it, so a
// malformed roster fails at load time with a file position.
package roster

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownDoctor indicates the id is not in the directory.
	ErrUnknownDoctor = errors.New("unknown doctor")
	// ErrDoctorUnavailable indicates the doctor exists but is not taking cases.
	ErrDoctorUnavailable = errors.New("doctor is not available")
	// ErrDuplicateDoctor indicates two roster entries share an id.
	ErrDuplicateDoctor = errors.New("duplicate doctor id")
)

// Doctor is one roster entry.
type Doctor struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Facility       string `json:"facility"`
	Available      bool   `json:"available"`
}

// Directory resolves doctors by id.
type Directory interface {
	Lookup(id string) (Doctor, bool)
	List() []Doctor
}

// Static is an in-memory Directory. Safe for concurrent reads.
type Static struct {
	byID  map[string]Doctor
	order []string
}

// NewStatic builds a directory from doctors. Ids must be unique.
func NewStatic(doctors ...Doctor) (*Static, error) {
	s := &Static{byID: make(map[string]Doctor, len(doctors))}
	for _, d := range doctors {
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return nil, fmt.Errorf("roster entry %q has no id", d.Name)
		}
		if _, dup := s.byID[d.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDoctor, d.ID)
		}
		s.byID[d.ID] = d
		s.order = append(s.order, d.ID)
	}
	sort.Strings(s.order)
	return s, nil
}

// MustStatic is NewStatic that panics on error. Intended for tests.
func MustStatic(doctors ...Doctor) *Static {
	s, err := NewStatic(doctors...)
	if err != nil {
		panic(err)
	}
	return s
}

// Lookup returns the doctor with id.
func (s *Static) Lookup(id string) (Doctor, bool) {
	d, ok := s.byID[id]
	return d, ok
}

// List returns every doctor sorted by id.
func (s *Static) List() []Doctor {
	out := make([]Doctor, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

// Known returns the doctor or ErrUnknownDoctor.
func Known(dir Directory, id string) (Doctor, error) {
	d, ok := dir.Lookup(id)
	if !ok {
		return Doctor{}, fmt.Errorf("%w: %s", ErrUnknownDoctor, id)
	}
	return d, nil
}

// Available returns the doctor when known and taking cases.
func Available(dir Directory, id string) (Doctor, error) {
	d, err := Known(dir, id)
	if err != nil {
		return Doctor{}, err
	}
	if !d.Available {
		return Doctor{}, fmt.Errorf("%w: %s", ErrDoctorUnavailable, id)
	}
	return d, nil
}
