package postgres

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/r3e-network/objectstore/entity"
	"github.com/r3e-network/objectstore/expr"
	"github.com/r3e-network/objectstore/store"
)

func eventRow(rows *sqlmock.Rows, ev store.Event) *sqlmock.Rows {
	dataRaw, _ := encodeData(ev.Data)
	metaRaw, _ := encodeEventMeta(ev.EventMeta)
	readersVal, _ := principalsToArray(ev.Readers).Value()
	writersVal, _ := principalsToArray(ev.Writers).Value()
	return rows.AddRow(
		ev.EventID.String(), ev.EntityID.String(), ev.Version, ev.TypeName, string(ev.Owner), string(ev.UpdatedBy),
		readersVal, writersVal, dataRaw, ev.State, string(ev.EventKind), metaRaw,
		ev.TxTime, ev.ValidFrom, nil,
	)
}

func eventColumnNames() []string {
	return []string{"event_id", "entity_id", "version", "type_name", "owner", "updated_by",
		"readers", "writers", "data", "state", "event_kind", "event_meta", "tx_time", "valid_from", "valid_to"}
}

func TestStore_Write_InsertsCreatedEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`INSERT INTO object_events`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1), "Widget", "alice", "alice",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "CREATED", sqlmock.AnyArg(),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s := New(db)
	ev, err := s.Write(context.Background(), store.WriteRequest{TypeName: "Widget", Owner: "alice", Data: entity.Data{"n": 1.0}})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if ev.Version != 1 || ev.EventKind != store.EventCreated {
		t.Fatalf("ev = %+v, want version 1 CREATED", ev)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStore_Read_ReturnsLatestVisibleEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	entityID := uuid.New()
	want := store.Event{
		EventID: uuid.New(), EntityID: entityID, Version: 2, TypeName: "Widget",
		Owner: "alice", UpdatedBy: "alice", Readers: store.NewPrincipalSet(), Writers: store.NewPrincipalSet(),
		Data: entity.Data{"n": 2.0}, EventKind: store.EventUpdated,
		TxTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), ValidFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	rows := eventRow(sqlmock.NewRows(eventColumnNames()), want)
	mock.ExpectQuery(`FROM object_events`).WithArgs(entityID).WillReturnRows(rows)

	s := New(db)
	got, ok, err := s.Read(context.Background(), "Widget", entityID, "alice")
	if err != nil || !ok {
		t.Fatalf("Read: ok=%v err=%v", ok, err)
	}
	if got.Version != 2 || got.Data["n"] != 2.0 {
		t.Fatalf("got = %+v, want version 2 with n=2.0", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRenumberPlaceholders_ShiftsByBase(t *testing.T) {
	frag, args := expr.ToSQLFilter(expr.BinOp(expr.OpGt, expr.Field("price"), expr.Const(100.0)), "data")
	shifted := renumberPlaceholders(frag, 2)
	want := `(("data"->>'price')::float8 > $3)`
	if shifted != want {
		t.Fatalf("shifted = %q, want %q", shifted, want)
	}
	if len(args) != 1 || args[0] != 100.0 {
		t.Fatalf("args = %v, want [100.0]", args)
	}
}

func TestCursor_RoundTrips(t *testing.T) {
	txTime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entityID := uuid.New()

	encoded := encodeCursor(txTime, entityID)
	gotTime, gotID, err := decodeCursor(encoded)
	if err != nil {
		t.Fatalf("decodeCursor: %v", err)
	}
	if !gotTime.Equal(txTime) || gotID != entityID {
		t.Fatalf("decodeCursor = (%v, %v), want (%v, %v)", gotTime, gotID, txTime, entityID)
	}
}

func TestCursor_DecodeMalformedErrors(t *testing.T) {
	if _, _, err := decodeCursor("not-a-valid-cursor!!"); err == nil {
		t.Fatal("expected an error decoding a malformed cursor")
	}
}
