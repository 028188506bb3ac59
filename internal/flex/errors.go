package flex

import "errors"

var (
	ErrUnsupportedDType = errors.New("flex: unsupported storage dtype")
	ErrDuplicateName    = errors.New("flex: duplicate entry name")
	ErrAlreadyAllocated = errors.New("flex: scale storage already allocated")
	ErrNotAllocated     = errors.New("flex: scale storage not allocated")
	ErrUnknownEntry     = errors.New("flex: unknown entry id")
)

// DuplicateNameError is returned by MakeEntry when a name is registered twice.
type DuplicateNameError struct {
	Name string
}

func (e DuplicateNameError) Error() string {
	return "flex: entry " + e.Name + " already registered"
}

func (e DuplicateNameError) Unwrap() error {
	return ErrDuplicateName
}
