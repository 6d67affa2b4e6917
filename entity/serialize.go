package entity

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	infraerrors "github.com/r3e-network/objectstore/infrastructure/errors"
)

// maxSafeJSONInt is the largest integer magnitude a JSON number can carry
// without precision loss in a double-precision consumer (2^53).
const maxSafeJSONInt = 1 << 53

// typedWrapper is the "{"__type__": ..., "value": ...}" wire form used for
// instant, decimal, and UUID fields.
type typedWrapper struct {
	Type  string `json:"__type__"`
	Value string `json:"value"`
}

// ToJSON serializes one entity's field map to its wire JSON form: strings
// and booleans natively; 64-bit integers as JSON numbers within the safe
// range, else as strings; floats as JSON numbers (non-finite values fail);
// instants, decimals, and UUIDs as typed wrapper objects.
func ToJSON(data Data) ([]byte, error) {
	wire := make(map[string]any, len(data))
	for k, v := range data {
		w, err := toWireValue(k, v)
		if err != nil {
			return nil, err
		}
		wire[k] = w
	}
	return json.Marshal(wire)
}

func toWireValue(field string, v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		return val, nil
	case bool:
		return val, nil
	case int:
		return int64WireValue(int64(val)), nil
	case int64:
		return int64WireValue(val), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, infraerrors.SerializationError(field, "non-finite float")
		}
		return val, nil
	case time.Time:
		return typedWrapper{Type: "datetime", Value: val.UTC().Format(time.RFC3339Nano)}, nil
	case Decimal:
		return typedWrapper{Type: "Decimal", Value: string(val)}, nil
	case uuid.UUID:
		return typedWrapper{Type: "UUID", Value: val.String()}, nil
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			w, err := toWireValue(field, e)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	default:
		return nil, infraerrors.SerializationError(field, fmt.Sprintf("unsupported type %T", v))
	}
}

func int64WireValue(n int64) any {
	if n > maxSafeJSONInt || n < -maxSafeJSONInt {
		return strconv.FormatInt(n, 10)
	}
	return n
}

// FromJSON deserializes the wire JSON form back into a field map. Extra
// fields present in the wire form that no descriptor names are ignored by
// callers that filter against Fields(); FromJSON itself preserves them.
func FromJSON(raw []byte) (Data, error) {
	var wire map[string]any
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("entity: decode: %w", err)
	}

	data := make(Data, len(wire))
	for k, v := range wire {
		val, err := fromWireValue(v)
		if err != nil {
			return nil, err
		}
		data[k] = val
	}
	return data, nil
}

func fromWireValue(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		typ, _ := val["__type__"].(string)
		str, _ := val["value"].(string)
		switch typ {
		case "datetime":
			t, err := time.Parse(time.RFC3339Nano, str)
			if err != nil {
				return nil, fmt.Errorf("entity: decode datetime %q: %w", str, err)
			}
			return t, nil
		case "Decimal":
			return Decimal(str), nil
		case "UUID":
			id, err := uuid.Parse(str)
			if err != nil {
				return nil, fmt.Errorf("entity: decode UUID %q: %w", str, err)
			}
			return id, nil
		}
		return val, nil
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			dv, err := fromWireValue(e)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	default:
		return val, nil
	}
}
