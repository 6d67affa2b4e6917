// Package memory implements store.Repository over an in-process,
// mutex-guarded map: a test double with the same OCC/RLS/bi-temporal
// semantics as store/postgres, grounded on the mutex-guarded-map idiom of
// the teacher's former pkg/storage/memory/memory.go (constructor + RWMutex +
// linear scan), generalized here to the single event-sourced log instead of
// per-domain CRUD tables.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/objectstore/entity"
	"github.com/r3e-network/objectstore/expr"
	infraerrors "github.com/r3e-network/objectstore/infrastructure/errors"
	"github.com/r3e-network/objectstore/store"
)

// Store is an in-memory store.Repository. Zero value is usable after New.
type Store struct {
	mu  sync.RWMutex
	log []store.Event // append-only, ascending TxTime/insertion order
}

// New returns an empty Store.
func New() *Store {
	return &Store{}
}

// entityEvents returns all events for entityID in version order (the slice
// is a fresh copy; callers must hold s.mu).
func (s *Store) entityEvents(entityID uuid.UUID) []store.Event {
	var out []store.Event
	for _, e := range s.log {
		if e.EntityID == entityID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

func (s *Store) latest(entityID uuid.UUID) (store.Event, bool) {
	events := s.entityEvents(entityID)
	if len(events) == 0 {
		return store.Event{}, false
	}
	return events[len(events)-1], true
}

// checkOCC implements step 3 of the six-step version-assignment algorithm:
// if the caller supplied an expected version, it must equal the entity's
// current max version.
func checkOCC(entityID uuid.UUID, expected *int64, current store.Event, exists bool) error {
	if expected == nil {
		return nil
	}
	actual := int64(0)
	if exists {
		actual = current.Version
	}
	if actual != *expected {
		return infraerrors.VersionConflict(entityID.String(), *expected, actual)
	}
	return nil
}

// Write implements store.Repository.
func (s *Store) Write(ctx context.Context, req store.WriteRequest) (store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	validFrom := now
	if req.ValidFrom != nil {
		validFrom = *req.ValidFrom
	}
	readers := req.Readers
	if readers == nil {
		readers = store.NewPrincipalSet()
	}
	writers := req.Writers
	if writers == nil {
		writers = store.NewPrincipalSet()
	}

	ev := store.Event{
		EventID:   uuid.New(),
		EntityID:  uuid.New(),
		Version:   1,
		TypeName:  req.TypeName,
		Owner:     req.Owner,
		UpdatedBy: req.Owner,
		Readers:   readers,
		Writers:   writers,
		Data:      req.Data,
		State:     req.State,
		EventKind: store.EventCreated,
		TxTime:    now,
		ValidFrom: validFrom,
	}
	s.log = append(s.log, ev)
	return ev, nil
}

// Update implements store.Repository.
func (s *Store) Update(ctx context.Context, req store.UpdateRequest) (store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(req)
}

func (s *Store) update(req store.UpdateRequest) (store.Event, error) {
	cur, exists := s.latest(req.EntityID)
	if !exists || !cur.Visible(req.Caller) {
		return store.Event{}, infraerrors.NotFound("", req.EntityID.String())
	}
	if !cur.CanWrite(req.Caller) {
		return store.Event{}, infraerrors.PermissionDenied("caller is not owner or writer")
	}
	if err := checkOCC(req.EntityID, req.ExpectedVersion, cur, exists); err != nil {
		return store.Event{}, err
	}

	now := time.Now().UTC()
	validFrom := now
	if req.ValidFrom != nil {
		validFrom = *req.ValidFrom
	}
	kind := store.EventUpdated
	if req.ValidFrom != nil {
		kind = store.EventCorrected
	}

	ev := store.Event{
		EventID:   uuid.New(),
		EntityID:  cur.EntityID,
		Version:   cur.Version + 1,
		TypeName:  cur.TypeName,
		Owner:     cur.Owner,
		UpdatedBy: req.Caller,
		Readers:   cur.Readers.Clone(),
		Writers:   cur.Writers.Clone(),
		Data:      req.Data,
		State:     cur.State,
		EventKind: kind,
		EventMeta: req.EventMeta,
		TxTime:    now,
		ValidFrom: validFrom,
	}
	s.log = append(s.log, ev)
	return ev, nil
}

// Delete implements store.Repository: appends a tombstone version with no
// Data. Earlier versions are left as they are; their ValidTo stays unset.
func (s *Store) Delete(ctx context.Context, entityID uuid.UUID, caller store.Principal, expectedVersion *int64) (store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.latest(entityID)
	if !exists || !cur.Visible(caller) {
		return store.Event{}, infraerrors.NotFound("", entityID.String())
	}
	if !cur.CanWrite(caller) {
		return store.Event{}, infraerrors.PermissionDenied("caller is not owner or writer")
	}
	if err := checkOCC(entityID, expectedVersion, cur, exists); err != nil {
		return store.Event{}, err
	}

	now := time.Now().UTC()
	ev := store.Event{
		EventID:   uuid.New(),
		EntityID:  cur.EntityID,
		Version:   cur.Version + 1,
		TypeName:  cur.TypeName,
		Owner:     cur.Owner,
		UpdatedBy: caller,
		Readers:   cur.Readers.Clone(),
		Writers:   cur.Writers.Clone(),
		State:     cur.State,
		EventKind: store.EventDeleted,
		TxTime:    now,
		ValidFrom: now,
	}
	s.log = append(s.log, ev)
	return ev, nil
}

// Transition implements store.Repository: the substrate only appends the
// resulting event after the visibility, write-capability and OCC checks.
// Guard and AllowedBy evaluation belong to statemachine, which calls
// Transition after deciding the move is legal.
func (s *Store) Transition(ctx context.Context, req store.TransitionRequest) (store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, exists := s.latest(req.EntityID)
	if !exists || !cur.Visible(req.Caller) {
		return store.Event{}, infraerrors.NotFound("", req.EntityID.String())
	}
	if !cur.CanWrite(req.Caller) {
		return store.Event{}, infraerrors.PermissionDenied("caller is not owner or writer")
	}
	if err := checkOCC(req.EntityID, req.ExpectedVersion, cur, exists); err != nil {
		return store.Event{}, err
	}

	now := time.Now().UTC()
	data := req.Data
	if data == nil {
		data = cur.Data
	}
	ev := store.Event{
		EventID:   uuid.New(),
		EntityID:  cur.EntityID,
		Version:   cur.Version + 1,
		TypeName:  cur.TypeName,
		Owner:     cur.Owner,
		UpdatedBy: req.Caller,
		Readers:   cur.Readers.Clone(),
		Writers:   cur.Writers.Clone(),
		Data:      data,
		State:     req.NewState,
		EventKind: store.EventStateChange,
		EventMeta: req.EventMeta,
		TxTime:    now,
		ValidFrom: now,
	}
	s.log = append(s.log, ev)
	return ev, nil
}

// Read implements store.Repository.
func (s *Store) Read(ctx context.Context, typeName string, entityID uuid.UUID, caller store.Principal) (store.Event, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, exists := s.latest(entityID)
	if !exists || ev.EventKind == store.EventDeleted || ev.TypeName != typeName || !ev.Visible(caller) {
		return store.Event{}, false, nil
	}
	return ev, true, nil
}

// Query implements store.Repository: linear scan, cursor is the index past
// the last item returned (opaque to callers, encoded as a decimal string).
func (s *Store) Query(ctx context.Context, caller store.Principal, opts store.QueryOptions) (store.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latestByEntity := make(map[uuid.UUID]store.Event)
	for _, e := range s.log {
		latestByEntity[e.EntityID] = e
	}

	var matches []store.Event
	for _, e := range latestByEntity {
		if e.EventKind == store.EventDeleted || e.TypeName != opts.TypeName || !e.Visible(caller) {
			continue
		}
		if opts.Filter != nil {
			ok, err := evalFilter(opts.Filter, e.Data)
			if err != nil {
				return store.Page{}, err
			}
			if !ok {
				continue
			}
		}
		matches = append(matches, e)
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].TxTime.Equal(matches[j].TxTime) {
			return matches[i].EntityID.String() < matches[j].EntityID.String()
		}
		return matches[i].TxTime.Before(matches[j].TxTime)
	})

	start := 0
	if opts.Pagination.Cursor != "" {
		start = decodeCursor(opts.Pagination.Cursor)
	}
	limit := opts.Pagination.Normalize(500).Limit
	if start > len(matches) {
		start = len(matches)
	}
	end := start + limit
	if end > len(matches) {
		end = len(matches)
	}

	page := store.Page{Items: matches[start:end]}
	if end-start == limit {
		page.NextCursor = encodeCursor(end)
	}
	return page, nil
}

// History implements store.Repository.
func (s *Store) History(ctx context.Context, typeName string, entityID uuid.UUID, caller store.Principal) ([]store.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.entityEvents(entityID)
	if len(events) == 0 || events[0].TypeName != typeName || !events[len(events)-1].Visible(caller) {
		return nil, nil
	}
	var out []store.Event
	for _, e := range events {
		if e.Visible(caller) {
			out = append(out, e)
		}
	}
	return out, nil
}

// AsOf implements store.Repository per SPEC_FULL §9 Open Question 2: the
// version with the greatest ValidFrom <= validTime among those satisfying
// TxTime <= txTime, breaking ties by highest Version.
func (s *Store) AsOf(ctx context.Context, typeName string, entityID uuid.UUID, caller store.Principal, txTime, validTime *time.Time) (store.Event, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best store.Event
	found := false
	for _, e := range s.entityEvents(entityID) {
		if e.TypeName != typeName || !e.Visible(caller) {
			continue
		}
		if txTime != nil && e.TxTime.After(*txTime) {
			continue
		}
		if validTime != nil && e.ValidFrom.After(*validTime) {
			continue
		}
		if !found {
			best, found = e, true
			continue
		}
		if e.ValidFrom.After(best.ValidFrom) ||
			(e.ValidFrom.Equal(best.ValidFrom) && e.Version > best.Version) {
			best = e
		}
	}
	if found && best.EventKind == store.EventDeleted {
		return store.Event{}, false, nil
	}
	return best, found, nil
}

// Audit implements store.Repository.
func (s *Store) Audit(ctx context.Context, entityID uuid.UUID, caller store.Principal) ([]store.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []store.AuditRecord
	for _, e := range s.entityEvents(entityID) {
		if !e.Visible(caller) {
			continue
		}
		out = append(out, store.AuditRecord{
			Version:   e.Version,
			EventKind: e.EventKind,
			Owner:     e.Owner,
			UpdatedBy: e.UpdatedBy,
			State:     e.State,
			EventMeta: e.EventMeta,
			TxTime:    e.TxTime,
			ValidFrom: e.ValidFrom,
		})
	}
	return out, nil
}

// Count implements store.Repository.
func (s *Store) Count(ctx context.Context, caller store.Principal, typeName string) (int64, error) {
	var n int64
	opts := store.QueryOptions{TypeName: typeName, Pagination: store.Pagination{Limit: 500}}
	for {
		page, err := s.Query(ctx, caller, opts)
		if err != nil {
			return 0, err
		}
		n += int64(len(page.Items))
		if page.NextCursor == "" {
			return n, nil
		}
		opts.Pagination.Cursor = page.NextCursor
	}
}

// ListTypes implements store.Repository.
func (s *Store) ListTypes(ctx context.Context, caller store.Principal) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	latestByEntity := make(map[uuid.UUID]store.Event)
	for _, e := range s.log {
		latestByEntity[e.EntityID] = e
	}
	for _, e := range latestByEntity {
		if e.EventKind != store.EventDeleted && e.Visible(caller) {
			seen[e.TypeName] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// WriteMany implements store.Repository with all-or-nothing semantics.
func (s *Store) WriteMany(ctx context.Context, reqs []store.WriteRequest) ([]store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]store.Event, 0, len(reqs))
	for _, req := range reqs {
		now := time.Now().UTC()
		validFrom := now
		if req.ValidFrom != nil {
			validFrom = *req.ValidFrom
		}
		readers, writers := req.Readers, req.Writers
		if readers == nil {
			readers = store.NewPrincipalSet()
		}
		if writers == nil {
			writers = store.NewPrincipalSet()
		}
		ev := store.Event{
			EventID:   uuid.New(),
			EntityID:  uuid.New(),
			Version:   1,
			TypeName:  req.TypeName,
			Owner:     req.Owner,
			UpdatedBy: req.Owner,
			Readers:   readers,
			Writers:   writers,
			Data:      req.Data,
			State:     req.State,
			EventKind: store.EventCreated,
			TxTime:    now,
			ValidFrom: validFrom,
		}
		s.log = append(s.log, ev)
		out = append(out, ev)
	}
	return out, nil
}

// UpdateMany implements store.Repository with all-or-nothing semantics: a
// failure anywhere rolls back the whole batch's appends.
func (s *Store) UpdateMany(ctx context.Context, reqs []store.UpdateRequest) ([]store.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	checkpoint := len(s.log)
	out := make([]store.Event, 0, len(reqs))
	for _, req := range reqs {
		ev, err := s.update(req)
		if err != nil {
			s.log = s.log[:checkpoint]
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// share mutates readers/writers across every version of entityID, per
// SPEC_FULL's Open Question 1 decision: sharing is an entity-wide UPDATE,
// not a new event kind.
func (s *Store) share(entityID uuid.UUID, caller store.Principal, mutate func(ev *store.Event)) error {
	cur, exists := s.latest(entityID)
	if !exists || !cur.Visible(caller) {
		return infraerrors.NotFound("", entityID.String())
	}
	if !cur.CanWrite(caller) {
		return infraerrors.PermissionDenied("caller is not owner or writer")
	}
	for i := range s.log {
		if s.log[i].EntityID == entityID {
			mutate(&s.log[i])
		}
	}
	return nil
}

// ShareRead implements store.Repository.
func (s *Store) ShareRead(ctx context.Context, entityID uuid.UUID, caller, grantee store.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.share(entityID, caller, func(ev *store.Event) { ev.Readers.Add(grantee) })
}

// ShareWrite implements store.Repository.
func (s *Store) ShareWrite(ctx context.Context, entityID uuid.UUID, caller, grantee store.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.share(entityID, caller, func(ev *store.Event) { ev.Writers.Add(grantee) })
}

// UnshareRead implements store.Repository.
func (s *Store) UnshareRead(ctx context.Context, entityID uuid.UUID, caller, grantee store.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.share(entityID, caller, func(ev *store.Event) { ev.Readers.Remove(grantee) })
}

// UnshareWrite implements store.Repository.
func (s *Store) UnshareWrite(ctx context.Context, entityID uuid.UUID, caller, grantee store.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.share(entityID, caller, func(ev *store.Event) { ev.Writers.Remove(grantee) })
}

// ListSharedWith implements store.Repository.
func (s *Store) ListSharedWith(ctx context.Context, entityID uuid.UUID, caller store.Principal) (readers, writers []store.Principal, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cur, exists := s.latest(entityID)
	if !exists || !cur.Visible(caller) {
		return nil, nil, infraerrors.NotFound("", entityID.String())
	}
	return cur.Readers.List(), cur.Writers.List(), nil
}

func evalFilter(n expr.Node, data entity.Data) (bool, error) {
	ctx := make(expr.Context, len(data))
	for k, v := range data {
		ctx[k] = v
	}
	v, err := n.Eval(ctx)
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}
