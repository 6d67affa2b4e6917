package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/objectstore/entity"
)

// Identity is the subset of access.Identity a Client needs — just the
// real principal plus the effective caller to use for read-path ACL
// checks. Declared here (rather than imported from package access) to
// avoid an import cycle: access depends on store for Principal and
// AdminPrincipal, so store cannot depend back on access.
type Identity interface {
	// RealPrincipal returns the identity's true principal, always used
	// for Owner/UpdatedBy/Caller fields on writes so audit trails are
	// never anonymized by an admin bypass.
	RealPrincipal() Principal
	// EffectiveCaller returns AdminPrincipal for an admin identity, or
	// RealPrincipal() otherwise; used for every read-path ACL check.
	EffectiveCaller() Principal
}

// Client is a principal-scoped façade over a Repository, grounded on
// original_source/store/client.py's StoreClient: there, a Postgres
// connection authenticated as a specific database role had RLS enforce
// visibility with "no middleware needed". Here the same posture is
// achieved in the Go layer — Client fixes one Identity for its lifetime
// and translates every call into the right principal, so callers never
// pass a caller argument (and can't accidentally pass the wrong one) the
// way store/postgres's migrations/000003_object_events_rls.up.sql fixes
// it again at the database layer for defense-in-depth.
type Client struct {
	repo     Repository
	identity Identity
}

// NewClient returns a Client scoped to identity, operating through repo.
func NewClient(repo Repository, identity Identity) *Client {
	return &Client{repo: repo, identity: identity}
}

// Write persists a new entity owned by the client's real principal.
func (c *Client) Write(ctx context.Context, req WriteRequest) (Event, error) {
	req.Owner = c.identity.RealPrincipal()
	return c.repo.Write(ctx, req)
}

// Update persists a new version of an existing entity.
func (c *Client) Update(ctx context.Context, entityID uuid.UUID, data entity.Data, expectedVersion *int64, meta EventMeta) (Event, error) {
	return c.repo.Update(ctx, UpdateRequest{
		EntityID:        entityID,
		Caller:          c.identity.RealPrincipal(),
		Data:            data,
		ExpectedVersion: expectedVersion,
		EventMeta:       meta,
	})
}

// Delete tombstones an entity.
func (c *Client) Delete(ctx context.Context, entityID uuid.UUID, expectedVersion *int64) (Event, error) {
	return c.repo.Delete(ctx, entityID, c.identity.RealPrincipal(), expectedVersion)
}

// Transition persists a STATE_CHANGE version.
func (c *Client) Transition(ctx context.Context, req TransitionRequest) (Event, error) {
	req.Caller = c.identity.RealPrincipal()
	return c.repo.Transition(ctx, req)
}

// Read returns the latest non-tombstone version visible to the client.
func (c *Client) Read(ctx context.Context, typeName string, entityID uuid.UUID) (Event, bool, error) {
	return c.repo.Read(ctx, typeName, entityID, c.identity.EffectiveCaller())
}

// Query returns a page of entities visible to the client.
func (c *Client) Query(ctx context.Context, opts QueryOptions) (Page, error) {
	return c.repo.Query(ctx, c.identity.EffectiveCaller(), opts)
}

// History returns every version of an entity visible to the client.
func (c *Client) History(ctx context.Context, typeName string, entityID uuid.UUID) ([]Event, error) {
	return c.repo.History(ctx, typeName, entityID, c.identity.EffectiveCaller())
}

// AsOf returns the version of an entity as it stood at the given
// transaction and/or valid times.
func (c *Client) AsOf(ctx context.Context, typeName string, entityID uuid.UUID, txTime, validTime *time.Time) (Event, bool, error) {
	return c.repo.AsOf(ctx, typeName, entityID, c.identity.EffectiveCaller(), txTime, validTime)
}

// Audit returns an entity's full audit trail.
func (c *Client) Audit(ctx context.Context, entityID uuid.UUID) ([]AuditRecord, error) {
	return c.repo.Audit(ctx, entityID, c.identity.EffectiveCaller())
}

// Count returns the number of entities of typeName visible to the client.
func (c *Client) Count(ctx context.Context, typeName string) (int64, error) {
	return c.repo.Count(ctx, c.identity.EffectiveCaller(), typeName)
}

// ListTypes lists every distinct type name visible to the client.
func (c *Client) ListTypes(ctx context.Context) ([]string, error) {
	return c.repo.ListTypes(ctx, c.identity.EffectiveCaller())
}

// WriteMany persists a batch of entities atomically, owned by the
// client's real principal.
func (c *Client) WriteMany(ctx context.Context, reqs []WriteRequest) ([]Event, error) {
	owner := c.identity.RealPrincipal()
	for i := range reqs {
		reqs[i].Owner = owner
	}
	return c.repo.WriteMany(ctx, reqs)
}

// UpdateMany persists a batch of updates atomically.
func (c *Client) UpdateMany(ctx context.Context, reqs []UpdateRequest) ([]Event, error) {
	caller := c.identity.RealPrincipal()
	for i := range reqs {
		reqs[i].Caller = caller
	}
	return c.repo.UpdateMany(ctx, reqs)
}

// ShareRead grants grantee read access to entityID.
func (c *Client) ShareRead(ctx context.Context, entityID uuid.UUID, grantee Principal) error {
	return c.repo.ShareRead(ctx, entityID, c.identity.RealPrincipal(), grantee)
}

// ShareWrite grants grantee write access to entityID.
func (c *Client) ShareWrite(ctx context.Context, entityID uuid.UUID, grantee Principal) error {
	return c.repo.ShareWrite(ctx, entityID, c.identity.RealPrincipal(), grantee)
}

// UnshareRead revokes grantee's read access to entityID.
func (c *Client) UnshareRead(ctx context.Context, entityID uuid.UUID, grantee Principal) error {
	return c.repo.UnshareRead(ctx, entityID, c.identity.RealPrincipal(), grantee)
}

// UnshareWrite revokes grantee's write access to entityID.
func (c *Client) UnshareWrite(ctx context.Context, entityID uuid.UUID, grantee Principal) error {
	return c.repo.UnshareWrite(ctx, entityID, c.identity.RealPrincipal(), grantee)
}

// ListSharedWith lists every principal entityID's readers/writers are
// shared with.
func (c *Client) ListSharedWith(ctx context.Context, entityID uuid.UUID) (readers, writers []Principal, err error) {
	return c.repo.ListSharedWith(ctx, entityID, c.identity.EffectiveCaller())
}
