package postgres

import (
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"

	"github.com/r3e-network/objectstore/entity"
	infraerrors "github.com/r3e-network/objectstore/infrastructure/errors"
	"github.com/r3e-network/objectstore/store"
)

// eventColumns is the fixed column list every SELECT against object_events
// uses, matched positionally by scanEvent.
const eventColumns = `event_id, entity_id, version, type_name, owner, updated_by,
	readers, writers, data, state, event_kind, event_meta, tx_time, valid_from, valid_to`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanEvent reads one object_events row (selected via eventColumns) into a
// store.Event, reversing entity.ToJSON/json.Marshal's wire encodings.
func scanEvent(row rowScanner) (store.Event, error) {
	var (
		ev            store.Event
		readers       pq.StringArray
		writers       pq.StringArray
		dataRaw       []byte
		eventMetaRaw  []byte
		state         sql.NullString
		validTo       sql.NullTime
	)
	err := row.Scan(
		&ev.EventID, &ev.EntityID, &ev.Version, &ev.TypeName, &ev.Owner, &ev.UpdatedBy,
		&readers, &writers, &dataRaw, &state, &ev.EventKind, &eventMetaRaw,
		&ev.TxTime, &ev.ValidFrom, &validTo,
	)
	if err != nil {
		return store.Event{}, err
	}

	ev.Readers = store.NewPrincipalSet()
	for _, p := range readers {
		ev.Readers.Add(store.Principal(p))
	}
	ev.Writers = store.NewPrincipalSet()
	for _, p := range writers {
		ev.Writers.Add(store.Principal(p))
	}
	if state.Valid {
		ev.State = state.String
	}
	if validTo.Valid {
		t := validTo.Time
		ev.ValidTo = &t
	}

	if len(dataRaw) > 0 {
		data, err := entity.FromJSON(dataRaw)
		if err != nil {
			return store.Event{}, err
		}
		ev.Data = data
	}
	if len(eventMetaRaw) > 0 {
		var meta store.EventMeta
		if err := json.Unmarshal(eventMetaRaw, &meta); err != nil {
			return store.Event{}, infraerrors.Wrap(infraerrors.ErrCodeSerializationError, "decode event_meta", 0, err)
		}
		ev.EventMeta = meta
	}
	return ev, nil
}

// principalsToArray converts a PrincipalSet to the text[] wire form.
func principalsToArray(s store.PrincipalSet) pq.StringArray {
	list := s.List()
	out := make(pq.StringArray, len(list))
	for i, p := range list {
		out[i] = string(p)
	}
	return out
}

// encodeData marshals an entity.Data map via entity.ToJSON, the same wire
// form used by every other encoder/decoder of entity field values.
func encodeData(data entity.Data) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}
	return entity.ToJSON(data)
}

func encodeEventMeta(meta store.EventMeta) ([]byte, error) {
	if meta == nil {
		return []byte("{}"), nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, infraerrors.Wrap(infraerrors.ErrCodeSerializationError, "encode event_meta", 0, err)
	}
	return raw, nil
}
