package memory

import "strconv"

// encodeCursor/decodeCursor turn a result-set offset into the opaque cursor
// string store.Page carries. Offset-based is sufficient for an in-memory
// double; store/postgres's cursor instead encodes (tx_time, entity_id).
func encodeCursor(offset int) string {
	return strconv.Itoa(offset)
}

func decodeCursor(cursor string) int {
	n, err := strconv.Atoi(cursor)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
