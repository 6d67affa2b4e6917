// Package store implements the event-sourced object store: append-only
// versioned records of typed entities, per-entity row-level access
// control, bi-temporal timestamps, optimistic concurrency, and
// point-in-time queries. The Repository interface is implemented by
// store/postgres (the production substrate) and store/memory (for tests);
// Client is the principal-scoped façade applications use.
package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/objectstore/entity"
)

// EventKind is the kind of change an event records.
type EventKind string

const (
	EventCreated      EventKind = "CREATED"
	EventUpdated      EventKind = "UPDATED"
	EventDeleted      EventKind = "DELETED"
	EventStateChange  EventKind = "STATE_CHANGE"
	EventCorrected    EventKind = "CORRECTED"
)

// Principal identifies an authenticated caller.
type Principal string

// PrincipalSet is a set of principals, used for readers/writers.
type PrincipalSet map[Principal]struct{}

// NewPrincipalSet builds a PrincipalSet from a list, deduplicating.
func NewPrincipalSet(principals ...Principal) PrincipalSet {
	s := make(PrincipalSet, len(principals))
	for _, p := range principals {
		s[p] = struct{}{}
	}
	return s
}

// Contains reports whether p is a member.
func (s PrincipalSet) Contains(p Principal) bool {
	_, ok := s[p]
	return ok
}

// Add inserts p, returning whether it was newly added.
func (s PrincipalSet) Add(p Principal) bool {
	if s.Contains(p) {
		return false
	}
	s[p] = struct{}{}
	return true
}

// Remove deletes p, returning whether it was present.
func (s PrincipalSet) Remove(p Principal) bool {
	if !s.Contains(p) {
		return false
	}
	delete(s, p)
	return true
}

// List returns the set's members in no particular order.
func (s PrincipalSet) List() []Principal {
	out := make([]Principal, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	return out
}

// Clone returns an independent copy.
func (s PrincipalSet) Clone() PrincipalSet {
	out := make(PrincipalSet, len(s))
	for p := range s {
		out[p] = struct{}{}
	}
	return out
}

// EventMeta is a small map of context attached to an event (e.g.
// from_state/to_state/triggered_by on a STATE_CHANGE).
type EventMeta map[string]any

// Event is the atomic unit of persistence: every creation, update,
// soft-delete, correction, and state change appends one.
type Event struct {
	EventID   uuid.UUID
	EntityID  uuid.UUID
	Version   int64
	TypeName  string
	Owner     Principal
	UpdatedBy Principal
	Readers   PrincipalSet
	Writers   PrincipalSet
	Data      entity.Data
	State     string // empty if no state machine is registered for TypeName
	EventKind EventKind
	EventMeta EventMeta
	TxTime    time.Time
	ValidFrom time.Time
	ValidTo   *time.Time
}

// AdminPrincipal is the well-known app_admin group: any caller resolved to
// it bypasses RLS entirely, per spec.md §3's two well-known groups.
// access.Resolve is what actually assigns a caller this principal value,
// based on the admin claim on its authenticated token.
const AdminPrincipal Principal = "app_admin"

// Visible reports whether p can see this event under the RLS policy: p is
// AdminPrincipal, equals owner, or is in readers, or is in writers.
func (e Event) Visible(p Principal) bool {
	return p == AdminPrincipal || e.Owner == p || e.Readers.Contains(p) || e.Writers.Contains(p)
}

// CanWrite reports whether p may update, delete, transition, or share this
// entity: p is AdminPrincipal, equals owner, or is in writers. Readers may
// see but not mutate.
func (e Event) CanWrite(p Principal) bool {
	return p == AdminPrincipal || e.Owner == p || e.Writers.Contains(p)
}

// ChangeEvent is the notification payload published on every event: a
// reduced projection carried by the in-process bus and the cross-process
// listener.
type ChangeEvent struct {
	EntityID  uuid.UUID `json:"entity_id"`
	Version   int64     `json:"version"`
	EventKind EventKind `json:"event_kind"`
	TypeName  string    `json:"type_name"`
	UpdatedBy Principal `json:"updated_by"`
	State     string    `json:"state,omitempty"`
	TxTime    time.Time `json:"tx_time"`
}

// FromEvent projects an Event down to its ChangeEvent notification form.
func FromEvent(e Event) ChangeEvent {
	return ChangeEvent{
		EntityID:  e.EntityID,
		Version:   e.Version,
		EventKind: e.EventKind,
		TypeName:  e.TypeName,
		UpdatedBy: e.UpdatedBy,
		State:     e.State,
		TxTime:    e.TxTime,
	}
}

// AuditRecord is one row of an entity's audit trail: ordered, includes
// tombstones, omits the full data snapshot.
type AuditRecord struct {
	Version   int64
	EventKind EventKind
	Owner     Principal
	UpdatedBy Principal
	State     string
	EventMeta EventMeta
	TxTime    time.Time
	ValidFrom time.Time
}
