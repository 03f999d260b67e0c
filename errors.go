package sheetstore

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("object not found")
	ErrDuplicateIdentity   = errors.New("object with this identity already exists")
	ErrUnsupportedMapping  = errors.New("unsupported field mapping")
	ErrReachability        = errors.New("reachable object is not persistent and not cascaded")
	ErrDanglingReference   = errors.New("referenced object no longer exists")
	ErrSheetNotFound       = errors.New("sheet not found")
	ErrClosed              = errors.New("store is closed")
	ErrUnsupportedEmbedded = errors.New("embedded multi-valued fields are not supported")
	ErrInvalidColumnSlot   = errors.New("invalid column slot")
	ErrReadOnly            = errors.New("class is read-only")
	ErrNoContext           = errors.New("object has no execution context")
	ErrSyncFailed          = errors.New("sync failed")
)

// ObjectError describes a failure tied to one managed object
type ObjectError struct {
	Class    string
	Identity string
	Op       string
	Err      error
}

func (e *ObjectError) Error() string {
	if e.Identity != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Class, e.Identity, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Class, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// MappingError describes a field that could not be mapped to or from a cell
type MappingError struct {
	Class string
	Field string
	Type  FieldType
	Err   error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("field %s.%s (%s): %v", e.Class, e.Field, e.Type, e.Err)
}

func (e *MappingError) Unwrap() error {
	return e.Err
}

func newMappingError(cmd *ClassMeta, fmd *FieldMeta, err error) *MappingError {
	return &MappingError{Class: cmd.Name, Field: fmd.Name, Type: fmd.Type, Err: err}
}
