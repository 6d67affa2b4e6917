package postgres

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// encodeCursor/decodeCursor pack a (tx_time, entity_id) pair — Query's
// sort key — into an opaque, base64-encoded continuation token. Distinct
// from store/memory's offset-based cursor.go: Postgres pagination is
// keyset-based on the same (tx_time, entity_id) tuple the ORDER BY uses,
// so a page boundary survives concurrent inserts instead of shifting like
// an OFFSET would.
func encodeCursor(txTime time.Time, entityID uuid.UUID) string {
	raw := fmt.Sprintf("%s|%s", txTime.Format(time.RFC3339Nano), entityID.String())
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(cursor string) (time.Time, uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor: %w", err)
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor contents")
	}
	txTime, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor tx_time: %w", err)
	}
	entityID, err := uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, uuid.Nil, fmt.Errorf("malformed cursor entity_id: %w", err)
	}
	return txTime, entityID, nil
}
