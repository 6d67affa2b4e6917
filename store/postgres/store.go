package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/r3e-network/objectstore/expr"
	infraerrors "github.com/r3e-network/objectstore/infrastructure/errors"
	"github.com/r3e-network/objectstore/store"
)

// latestLocked selects the newest row for entityID, row-locked against
// concurrent writers within the enclosing transaction — the Postgres
// equivalent of store/memory's in-process mutex: it is what makes the
// OCC check-then-append sequence atomic across concurrent callers.
func (s *Store) latestLocked(ctx context.Context, entityID uuid.UUID) (store.Event, bool, error) {
	row := s.querier(ctx).QueryRowContext(ctx, `
		SELECT `+eventColumns+`
		FROM object_events
		WHERE entity_id = $1
		ORDER BY version DESC
		LIMIT 1
		FOR UPDATE`, entityID)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return store.Event{}, false, nil
	}
	if err != nil {
		return store.Event{}, false, infraerrors.Wrap(infraerrors.ErrCodeInternal, "select latest event", 0, err)
	}
	return ev, true, nil
}

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

func (s *Store) insert(ctx context.Context, ev store.Event) error {
	dataRaw, err := encodeData(ev.Data)
	if err != nil {
		return err
	}
	metaRaw, err := encodeEventMeta(ev.EventMeta)
	if err != nil {
		return err
	}
	var state sql.NullString
	if ev.State != "" {
		state = sql.NullString{String: ev.State, Valid: true}
	}
	var validTo sql.NullTime
	if ev.ValidTo != nil {
		validTo = sql.NullTime{Time: *ev.ValidTo, Valid: true}
	}

	_, err = s.querier(ctx).ExecContext(ctx, `
		INSERT INTO object_events (`+eventColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		ev.EventID, ev.EntityID, ev.Version, ev.TypeName, string(ev.Owner), string(ev.UpdatedBy),
		principalsToArray(ev.Readers), principalsToArray(ev.Writers), dataRaw, state, string(ev.EventKind), metaRaw,
		ev.TxTime, ev.ValidFrom, validTo,
	)
	if err != nil {
		return infraerrors.Wrap(infraerrors.ErrCodeInternal, "insert event", 0, err)
	}
	return nil
}

// Write implements store.Repository.
func (s *Store) Write(ctx context.Context, req store.WriteRequest) (store.Event, error) {
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
	if err := s.insert(ctx, ev); err != nil {
		return store.Event{}, err
	}
	return ev, nil
}

func (s *Store) update(ctx context.Context, req store.UpdateRequest) (store.Event, error) {
	cur, exists, err := s.latestLocked(ctx, req.EntityID)
	if err != nil {
		return store.Event{}, err
	}
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
	if err := s.insert(ctx, ev); err != nil {
		return store.Event{}, err
	}
	return ev, nil
}

// Update implements store.Repository.
func (s *Store) Update(ctx context.Context, req store.UpdateRequest) (store.Event, error) {
	var out store.Event
	err := s.withTx(ctx, func(ctx context.Context) error {
		ev, err := s.update(ctx, req)
		out = ev
		return err
	})
	return out, err
}

// Delete implements store.Repository: appends a tombstone version.
func (s *Store) Delete(ctx context.Context, entityID uuid.UUID, caller store.Principal, expectedVersion *int64) (store.Event, error) {
	var out store.Event
	err := s.withTx(ctx, func(ctx context.Context) error {
		cur, exists, err := s.latestLocked(ctx, entityID)
		if err != nil {
			return err
		}
		if !exists || !cur.Visible(caller) {
			return infraerrors.NotFound("", entityID.String())
		}
		if !cur.CanWrite(caller) {
			return infraerrors.PermissionDenied("caller is not owner or writer")
		}
		if err := checkOCC(entityID, expectedVersion, cur, exists); err != nil {
			return err
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
		out = ev
		return s.insert(ctx, ev)
	})
	return out, err
}

// Transition implements store.Repository.
func (s *Store) Transition(ctx context.Context, req store.TransitionRequest) (store.Event, error) {
	var out store.Event
	err := s.withTx(ctx, func(ctx context.Context) error {
		cur, exists, err := s.latestLocked(ctx, req.EntityID)
		if err != nil {
			return err
		}
		if !exists || !cur.Visible(req.Caller) {
			return infraerrors.NotFound("", req.EntityID.String())
		}
		if !cur.CanWrite(req.Caller) {
			return infraerrors.PermissionDenied("caller is not owner or writer")
		}
		if err := checkOCC(req.EntityID, req.ExpectedVersion, cur, exists); err != nil {
			return err
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
		out = ev
		return s.insert(ctx, ev)
	})
	return out, err
}

// Read implements store.Repository.
func (s *Store) Read(ctx context.Context, typeName string, entityID uuid.UUID, caller store.Principal) (store.Event, bool, error) {
	ev, exists, err := s.latestLocked(ctx, entityID)
	if err != nil {
		return store.Event{}, false, err
	}
	if !exists || ev.EventKind == store.EventDeleted || ev.TypeName != typeName || !ev.Visible(caller) {
		return store.Event{}, false, nil
	}
	return ev, true, nil
}

// Query implements store.Repository: the latest version per entity,
// optionally filtered by opts.Filter compiled via expr.ToSQLFilter against
// the data jsonb column, ordered by tx_time for a stable cursor.
func (s *Store) Query(ctx context.Context, caller store.Principal, opts store.QueryOptions) (store.Page, error) {
	limit := opts.Pagination.Normalize(500).Limit
	var afterTxTime time.Time
	var afterEntityID uuid.UUID
	if opts.Pagination.Cursor != "" {
		t, id, err := decodeCursor(opts.Pagination.Cursor)
		if err != nil {
			return store.Page{}, infraerrors.Wrap(infraerrors.ErrCodeValidationError, "decode cursor", 0, err)
		}
		afterTxTime, afterEntityID = t, id
	}

	query := `
		SELECT ` + eventColumns + `
		FROM (
			SELECT DISTINCT ON (entity_id) ` + eventColumns + `
			FROM object_events
			WHERE type_name = $1
			ORDER BY entity_id, version DESC
		) latest
		WHERE event_kind != 'DELETED'
		  AND ($2 = 'app_admin' OR owner = $2 OR $2 = ANY(readers) OR $2 = ANY(writers))`
	args := []any{opts.TypeName, string(caller)}

	if !afterTxTime.IsZero() {
		query += fmt.Sprintf(" AND (tx_time, entity_id) > ($%d, $%d)", len(args)+1, len(args)+2)
		args = append(args, afterTxTime, afterEntityID)
	}

	if opts.Filter != nil {
		frag, filterArgs := expr.ToSQLFilter(opts.Filter, "data")
		query += " AND " + renumberPlaceholders(frag, len(args))
		args = append(args, filterArgs...)
	}

	query += fmt.Sprintf(" ORDER BY tx_time, entity_id LIMIT %d", limit+1)

	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return store.Page{}, infraerrors.Wrap(infraerrors.ErrCodeInternal, "query events", 0, err)
	}
	defer rows.Close()

	var items []store.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return store.Page{}, infraerrors.Wrap(infraerrors.ErrCodeInternal, "scan event", 0, err)
		}
		items = append(items, ev)
	}
	if err := rows.Err(); err != nil {
		return store.Page{}, infraerrors.Wrap(infraerrors.ErrCodeInternal, "iterate events", 0, err)
	}

	page := store.Page{}
	if len(items) >= limit {
		last := items[limit-1]
		page.NextCursor = encodeCursor(last.TxTime, last.EntityID)
		items = items[:limit]
	}
	page.Items = items
	return page, nil
}

// History implements store.Repository.
func (s *Store) History(ctx context.Context, typeName string, entityID uuid.UUID, caller store.Principal) ([]store.Event, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM object_events
		WHERE entity_id = $1 AND type_name = $2
		ORDER BY version ASC`, entityID, typeName)
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.ErrCodeInternal, "select history", 0, err)
	}
	defer rows.Close()

	var out []store.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, infraerrors.Wrap(infraerrors.ErrCodeInternal, "scan event", 0, err)
		}
		if ev.Visible(caller) {
			out = append(out, ev)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, infraerrors.Wrap(infraerrors.ErrCodeInternal, "iterate history", 0, err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	if !out[len(out)-1].Visible(caller) {
		return nil, nil
	}
	return out, nil
}

// AsOf implements store.Repository per SPEC_FULL §9 Open Question 2: the
// version with the greatest valid_from <= validTime among those
// satisfying tx_time <= txTime, breaking ties by highest version — same
// resolution as store/memory.AsOf, expressed as one query instead of a
// linear scan.
func (s *Store) AsOf(ctx context.Context, typeName string, entityID uuid.UUID, caller store.Principal, txTime, validTime *time.Time) (store.Event, bool, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM object_events
		WHERE entity_id = $1 AND type_name = $2`
	args := []any{entityID, typeName}
	if txTime != nil {
		query += fmt.Sprintf(" AND tx_time <= $%d", len(args)+1)
		args = append(args, *txTime)
	}
	if validTime != nil {
		query += fmt.Sprintf(" AND valid_from <= $%d", len(args)+1)
		args = append(args, *validTime)
	}
	query += " ORDER BY valid_from DESC, version DESC LIMIT 1"

	row := s.querier(ctx).QueryRowContext(ctx, query, args...)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return store.Event{}, false, nil
	}
	if err != nil {
		return store.Event{}, false, infraerrors.Wrap(infraerrors.ErrCodeInternal, "select as-of event", 0, err)
	}
	if !ev.Visible(caller) {
		return store.Event{}, false, nil
	}
	if ev.EventKind == store.EventDeleted {
		return store.Event{}, false, nil
	}
	return ev, true, nil
}

// Audit implements store.Repository.
func (s *Store) Audit(ctx context.Context, entityID uuid.UUID, caller store.Principal) ([]store.AuditRecord, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM object_events
		WHERE entity_id = $1
		ORDER BY version ASC`, entityID)
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.ErrCodeInternal, "select audit", 0, err)
	}
	defer rows.Close()

	var out []store.AuditRecord
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, infraerrors.Wrap(infraerrors.ErrCodeInternal, "scan event", 0, err)
		}
		if !ev.Visible(caller) {
			continue
		}
		out = append(out, store.AuditRecord{
			Version:   ev.Version,
			EventKind: ev.EventKind,
			Owner:     ev.Owner,
			UpdatedBy: ev.UpdatedBy,
			State:     ev.State,
			EventMeta: ev.EventMeta,
			TxTime:    ev.TxTime,
			ValidFrom: ev.ValidFrom,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, infraerrors.Wrap(infraerrors.ErrCodeInternal, "iterate audit", 0, err)
	}
	return out, nil
}

// Count implements store.Repository.
func (s *Store) Count(ctx context.Context, caller store.Principal, typeName string) (int64, error) {
	var count int64
	err := s.querier(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT DISTINCT ON (entity_id) entity_id, owner, readers, writers, event_kind
			FROM object_events
			WHERE type_name = $1
			ORDER BY entity_id, version DESC
		) latest
		WHERE event_kind != 'DELETED'
		  AND ($2 = 'app_admin' OR owner = $2 OR $2 = ANY(readers) OR $2 = ANY(writers))`,
		typeName, string(caller)).Scan(&count)
	if err != nil {
		return 0, infraerrors.Wrap(infraerrors.ErrCodeInternal, "count events", 0, err)
	}
	return count, nil
}

// ListTypes implements store.Repository.
func (s *Store) ListTypes(ctx context.Context, caller store.Principal) ([]string, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT DISTINCT type_name FROM (
			SELECT DISTINCT ON (entity_id) entity_id, type_name, owner, readers, writers, event_kind
			FROM object_events
			ORDER BY entity_id, version DESC
		) latest
		WHERE event_kind != 'DELETED'
		  AND ($1 = 'app_admin' OR owner = $1 OR $1 = ANY(readers) OR $1 = ANY(writers))
		ORDER BY type_name`, string(caller))
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.ErrCodeInternal, "list types", 0, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, infraerrors.Wrap(infraerrors.ErrCodeInternal, "scan type", 0, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// WriteMany implements store.Repository with all-or-nothing semantics via
// one transaction.
func (s *Store) WriteMany(ctx context.Context, reqs []store.WriteRequest) ([]store.Event, error) {
	out := make([]store.Event, 0, len(reqs))
	err := s.withTx(ctx, func(ctx context.Context) error {
		for _, req := range reqs {
			ev, err := s.Write(ctx, req)
			if err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateMany implements store.Repository with all-or-nothing semantics.
func (s *Store) UpdateMany(ctx context.Context, reqs []store.UpdateRequest) ([]store.Event, error) {
	out := make([]store.Event, 0, len(reqs))
	err := s.withTx(ctx, func(ctx context.Context) error {
		for _, req := range reqs {
			ev, err := s.update(ctx, req)
			if err != nil {
				return err
			}
			out = append(out, ev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// share mutates readers/writers across every version of entityID within
// one transaction, per SPEC_FULL's Open Question 1 decision: sharing is
// an entity-wide UPDATE, not a new event.
func (s *Store) share(ctx context.Context, entityID uuid.UUID, caller store.Principal, mutate func(readers, writers store.PrincipalSet)) error {
	return s.withTx(ctx, func(ctx context.Context) error {
		cur, exists, err := s.latestLocked(ctx, entityID)
		if err != nil {
			return err
		}
		if !exists || !cur.Visible(caller) {
			return infraerrors.NotFound("", entityID.String())
		}
		if !cur.CanWrite(caller) {
			return infraerrors.PermissionDenied("caller is not owner or writer")
		}

		readers, writers := cur.Readers.Clone(), cur.Writers.Clone()
		mutate(readers, writers)

		_, err = s.querier(ctx).ExecContext(ctx, `
			UPDATE object_events SET readers = $1, writers = $2 WHERE entity_id = $3`,
			principalsToArray(readers), principalsToArray(writers), entityID)
		if err != nil {
			return infraerrors.Wrap(infraerrors.ErrCodeInternal, "update shared principals", 0, err)
		}
		return nil
	})
}

// ShareRead implements store.Repository.
func (s *Store) ShareRead(ctx context.Context, entityID uuid.UUID, caller, grantee store.Principal) error {
	return s.share(ctx, entityID, caller, func(readers, writers store.PrincipalSet) { readers.Add(grantee) })
}

// ShareWrite implements store.Repository.
func (s *Store) ShareWrite(ctx context.Context, entityID uuid.UUID, caller, grantee store.Principal) error {
	return s.share(ctx, entityID, caller, func(readers, writers store.PrincipalSet) { writers.Add(grantee) })
}

// UnshareRead implements store.Repository.
func (s *Store) UnshareRead(ctx context.Context, entityID uuid.UUID, caller, grantee store.Principal) error {
	return s.share(ctx, entityID, caller, func(readers, writers store.PrincipalSet) { readers.Remove(grantee) })
}

// UnshareWrite implements store.Repository.
func (s *Store) UnshareWrite(ctx context.Context, entityID uuid.UUID, caller, grantee store.Principal) error {
	return s.share(ctx, entityID, caller, func(readers, writers store.PrincipalSet) { writers.Remove(grantee) })
}

// ListSharedWith implements store.Repository.
func (s *Store) ListSharedWith(ctx context.Context, entityID uuid.UUID, caller store.Principal) (readers, writers []store.Principal, err error) {
	cur, exists, err := s.latestLocked(ctx, entityID)
	if err != nil {
		return nil, nil, err
	}
	if !exists || !cur.Visible(caller) {
		return nil, nil, infraerrors.NotFound("", entityID.String())
	}
	return cur.Readers.List(), cur.Writers.List(), nil
}

// CatchUpSince returns every event with tx_time > since in ascending
// order, projected to its ChangeEvent notification form. It is a
// notify.CatchUpFunc: the cross-process Listener calls it on startup and
// after every reconnect to replay whatever it missed while disconnected.
// Runs unfiltered by caller visibility — notification consumers are
// trusted in-process fan-out targets (materialized views, audit mirrors),
// not end-user-facing reads, which always go through Read/Query/History
// and their Visible/CanWrite checks instead.
func (s *Store) CatchUpSince(ctx context.Context, since time.Time) ([]store.ChangeEvent, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM object_events
		WHERE tx_time > $1
		ORDER BY tx_time ASC`, since)
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.ErrCodeInternal, "select catch-up events", 0, err)
	}
	defer rows.Close()

	var out []store.ChangeEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, infraerrors.Wrap(infraerrors.ErrCodeInternal, "scan event", 0, err)
		}
		out = append(out, store.FromEvent(ev))
	}
	if err := rows.Err(); err != nil {
		return nil, infraerrors.Wrap(infraerrors.ErrCodeInternal, "iterate catch-up events", 0, err)
	}
	return out, nil
}

// renumberPlaceholders rewrites a SQL fragment's $1.."$N placeholders
// (numbered from 1, as expr.ToSQLFilter always produces) to continue
// after base existing positional arguments.
func renumberPlaceholders(frag string, base int) string {
	out := make([]byte, 0, len(frag))
	for i := 0; i < len(frag); i++ {
		if frag[i] == '$' && i+1 < len(frag) && frag[i+1] >= '0' && frag[i+1] <= '9' {
			j := i + 1
			for j < len(frag) && frag[j] >= '0' && frag[j] <= '9' {
				j++
			}
			n, _ := strconv.Atoi(frag[i+1 : j])
			out = append(out, '$')
			out = append(out, []byte(strconv.Itoa(n+base))...)
			i = j - 1
			continue
		}
		out = append(out, frag[i])
	}
	return string(out)
}
