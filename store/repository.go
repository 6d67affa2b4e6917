package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/objectstore/entity"
)

// WriteRequest is the input to Repository.Write: a new entity's first
// version.
type WriteRequest struct {
	TypeName  string
	Owner     Principal
	Data      entity.Data
	Readers   PrincipalSet
	Writers   PrincipalSet
	State     string
	ValidFrom *time.Time // defaults to tx_time if nil
}

// UpdateRequest is the input to Repository.Update: a new version of an
// existing entity.
type UpdateRequest struct {
	EntityID        uuid.UUID
	Caller          Principal
	Data            entity.Data
	ExpectedVersion *int64 // nil skips the OCC check (first write after a read with no cached version)
	ValidFrom       *time.Time
	EventMeta       EventMeta
}

// TransitionRequest is the input to Repository.Transition: a new version
// carrying a STATE_CHANGE.
type TransitionRequest struct {
	EntityID        uuid.UUID
	Caller          Principal
	NewState        string
	Data            entity.Data // the entity's field values after the transition's action tier, if any
	ExpectedVersion *int64
	EventMeta       EventMeta
}

// Repository is the event-sourced storage substrate contract. Every
// mutating method runs the six-step OCC version-assignment algorithm of
// SPEC_FULL §4.4 and returns the newly assigned Event on success.
//
// Implementations: store/postgres (production, backed by Postgres RLS
// policies) and store/memory (test double with identical semantics).
type Repository interface {
	Write(ctx context.Context, req WriteRequest) (Event, error)
	Update(ctx context.Context, req UpdateRequest) (Event, error)
	Delete(ctx context.Context, entityID uuid.UUID, caller Principal, expectedVersion *int64) (Event, error)
	Transition(ctx context.Context, req TransitionRequest) (Event, error)

	// Read returns the latest non-tombstone version visible to caller, or
	// (Event{}, false, nil) if absent or invisible (these are
	// indistinguishable by design).
	Read(ctx context.Context, typeName string, entityID uuid.UUID, caller Principal) (Event, bool, error)

	Query(ctx context.Context, caller Principal, opts QueryOptions) (Page, error)

	// History returns every version in ascending order, including
	// tombstones, visible to caller.
	History(ctx context.Context, typeName string, entityID uuid.UUID, caller Principal) ([]Event, error)

	// AsOf returns the latest version satisfying tx_time <= txTime (if
	// non-nil) and valid_from <= validTime (if non-nil), or false if none
	// match.
	AsOf(ctx context.Context, typeName string, entityID uuid.UUID, caller Principal, txTime, validTime *time.Time) (Event, bool, error)

	Audit(ctx context.Context, entityID uuid.UUID, caller Principal) ([]AuditRecord, error)

	Count(ctx context.Context, caller Principal, typeName string) (int64, error)

	ListTypes(ctx context.Context, caller Principal) ([]string, error)

	// WriteMany and UpdateMany run inside one substrate transaction with
	// all-or-nothing semantics: if entry k fails, none of the batch
	// persists.
	WriteMany(ctx context.Context, reqs []WriteRequest) ([]Event, error)
	UpdateMany(ctx context.Context, reqs []UpdateRequest) ([]Event, error)

	// ShareRead/ShareWrite/UnshareRead/UnshareWrite mutate readers/writers
	// across all versions of one entity (an entity-wide capability, not a
	// per-version one); only owner or a writer may call these.
	ShareRead(ctx context.Context, entityID uuid.UUID, caller, grantee Principal) error
	ShareWrite(ctx context.Context, entityID uuid.UUID, caller, grantee Principal) error
	UnshareRead(ctx context.Context, entityID uuid.UUID, caller, grantee Principal) error
	UnshareWrite(ctx context.Context, entityID uuid.UUID, caller, grantee Principal) error
	ListSharedWith(ctx context.Context, entityID uuid.UUID, caller Principal) (readers, writers []Principal, err error)
}
