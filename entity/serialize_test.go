package entity

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestToJSON_NativeTypes(t *testing.T) {
	data := Data{"name": "widget", "active": true, "count": int64(42)}
	raw, err := ToJSON(data)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	back, err := FromJSON(raw)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if back["name"] != "widget" || back["active"] != true {
		t.Fatalf("got %v", back)
	}
	if n, ok := back["count"].(float64); !ok || n != 42 {
		t.Fatalf("count = %v, want 42", back["count"])
	}
}

func TestToJSON_LargeInt64EncodesAsString(t *testing.T) {
	data := Data{"big": int64(1) << 60}
	raw, err := ToJSON(data)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	back, err := FromJSON(raw)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if _, ok := back["big"].(string); !ok {
		t.Fatalf("big = %v (%T), want a string wire form beyond the safe integer range", back["big"], back["big"])
	}
}

func TestToJSON_NonFiniteFloatErrors(t *testing.T) {
	if _, err := ToJSON(Data{"x": math.NaN()}); err == nil {
		t.Fatal("expected SerializationError for NaN")
	}
	if _, err := ToJSON(Data{"x": math.Inf(1)}); err == nil {
		t.Fatal("expected SerializationError for +Inf")
	}
}

func TestToJSON_TypedWrapperRoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	id := uuid.New()
	data := Data{
		"created_at": now,
		"id":         id,
		"price":      Decimal("19.99"),
	}
	raw, err := ToJSON(data)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}
	back, err := FromJSON(raw)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	gotTime, ok := back["created_at"].(time.Time)
	if !ok || !gotTime.Equal(now) {
		t.Fatalf("created_at = %v, want %v", back["created_at"], now)
	}
	gotID, ok := back["id"].(uuid.UUID)
	if !ok || gotID != id {
		t.Fatalf("id = %v, want %v", back["id"], id)
	}
	if back["price"] != Decimal("19.99") {
		t.Fatalf("price = %v, want 19.99", back["price"])
	}
}

func TestToJSON_UnsupportedTypeErrors(t *testing.T) {
	type unsupported struct{ X int }
	if _, err := ToJSON(Data{"x": unsupported{X: 1}}); err == nil {
		t.Fatal("expected SerializationError for an unsupported type")
	}
}
