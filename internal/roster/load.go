package roster

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

//go:embed schema.cue
var schemaCUE []byte

//go:embed default.cue
var defaultCUE []byte

// LoadError reports a roster file that fails to compile or validate.
type LoadError struct {
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: roster: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	return "roster: " + e.Message
}

// Default returns the directory compiled into the binary.
func Default() (*Static, error) {
	return LoadCUE("default.cue", defaultCUE)
}

// LoadFile reads a CUE roster from disk.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return LoadCUE(path, data)
}

// LoadCUE compiles data, unifies it with the #Doctor schema and decodes the
// doctors list. filename is used only for error positions.
func LoadCUE(filename string, data []byte) (*Static, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileBytes(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	unified := schema.Unify(v)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	doctorsVal := unified.LookupPath(cue.ParsePath("doctors"))
	if !doctorsVal.Exists() {
		return nil, &LoadError{Message: "doctors list is required", Pos: v.Pos()}
	}

	var doctors []Doctor
	if err := doctorsVal.Decode(&doctors); err != nil {
		return nil, formatCUEError(err)
	}
	return NewStatic(doctors...)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &LoadError{Message: first.Error(), Pos: positions[0]}
	}
	return &LoadError{Message: first.Error()}
}
