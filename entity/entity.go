// Package entity defines the data model shared by every object store
// component: the set of legal field types, the static field-descriptor
// contract a domain class provides in place of runtime reflection, and the
// wire serialization of entity data (instants, decimals, UUIDs wrapped in
// a self-describing "__type__" form).
package entity

import (
	"time"
)

// Kind enumerates the legal field types a domain class's fields may take.
type Kind int

const (
	KindString Kind = iota
	KindInt64
	KindFloat64
	KindBool
	KindInstant
	KindDecimal
	KindOptionalString
	KindOptionalInt64
	KindOptionalFloat64
	KindOptionalBool
	KindOptionalInstant
	KindOptionalDecimal
)

// FieldDescriptor names one field of a domain class and its kind. A domain
// class exposes a static slice of these from a Fields() method instead of
// being enumerated via runtime reflection, per the redesign note on
// dynamic reflection over entity classes.
type FieldDescriptor struct {
	Name string
	Kind Kind
}

// Describable is implemented by every domain class registered with the
// store: it reports its own field list statically.
type Describable interface {
	TypeName() string
	Fields() []FieldDescriptor
}

// Data is the generic, type-erased representation of one entity's field
// values: the same shape the store reads/writes `data` as. Domain classes
// convert to/from Data via ToData/FromData pairs generated or hand-written
// per class (the source language's dynamic reflection has no static Go
// equivalent).
type Data map[string]any

// Decimal is a fixed-precision numeric value stored as its canonical
// string form, matching the wire representation in SPEC_FULL §6.
type Decimal string

// Instant is a UTC timestamp with sub-second precision.
type Instant = time.Time
