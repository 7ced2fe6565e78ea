package raw

import (
	"fmt"
)

// ObjectRef uniquely identifies an indirect PDF object.
type ObjectRef struct {
	Num int
	Gen int
}

func (r ObjectRef) String() string { return fmt.Sprintf("%d %d R", r.Num, r.Gen) }

// IsZero reports whether r is the unset reference (object 0 is always free).
func (r ObjectRef) IsZero() bool { return r.Num == 0 }

// Object is the base interface for all raw PDF objects.
type Object interface {
	Type() string
	IsIndirect() bool
}

// Dictionary represents a PDF dictionary object.
type Dictionary interface {
	Object
	Get(key Name) (Object, bool)
	Set(key Name, value Object)
	Keys() []Name
	Len() int
}

// Name represents a PDF name object.
type Name interface {
	Object
	Value() string
}

// IndirectObject pairs an object identity with its value.
type IndirectObject struct {
	Ref   ObjectRef
	Value Object
}

// Document is the flat result of loading a file: the effective object of
// every live number plus the newest trailer.
type Document struct {
	Objects map[ObjectRef]Object
	Trailer *DictObj
	Version string // e.g., "1.7"

	// StartXRef is the offset of the newest cross-reference section; the
	// next incremental update chains to it with /Prev.
	StartXRef int64
	// Size is the trailer /Size (one past the highest object number).
	Size int
	// Revisions counts the cross-reference sections reached via /Prev.
	Revisions int
	// Repaired is set when the cross-reference data was rebuilt by scanning.
	// Offsets in the file cannot be trusted for a /Prev chain.
	Repaired bool
}
