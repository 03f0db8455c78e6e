package updatebuf

import (
	"errors"
	"fmt"
	"strconv"
)

// Buffer entries are a fixed-width decimal id followed by the opaque delta
// payload: [id:16 ascii digits][payload]. Fixed-width decimal keeps the
// framing trivially producible from the Redis-side Lua script while staying
// binary-safe for the payload.

const entryIDWidth = 16

var ErrShortEntry = errors.New("updatebuf: entry shorter than id header")

func encodeEntry(id int64, payload []byte) []byte {
	out := make([]byte, 0, entryIDWidth+len(payload))
	out = append(out, fmt.Sprintf("%016d", id)...)
	out = append(out, payload...)
	return out
}

func decodeEntry(raw []byte) (int64, []byte, error) {
	if len(raw) < entryIDWidth {
		return 0, nil, ErrShortEntry
	}
	id, err := strconv.ParseInt(string(raw[:entryIDWidth]), 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("updatebuf: malformed entry id: %w", err)
	}
	return id, raw[entryIDWidth:], nil
}
