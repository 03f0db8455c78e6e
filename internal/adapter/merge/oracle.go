// Package merge talks to the external CRDT merge oracle. The oracle is an
// opaque byte-in/byte-out service; this core only knows its failure modes
// (error, timeout) and relies on its merges being idempotent for overlapping
// delta ranges.
package merge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

type mergeRequest struct {
	RoomID       string   `json:"roomId"`
	BaseSnapshot []byte   `json:"baseSnapshotBytesOrNull"`
	Updates      [][]byte `json:"orderedUpdateBytesList"`
}

type mergeResponse struct {
	Success bool   `json:"success"`
	Merged  []byte `json:"mergedBytesOrNull"`
	Message string `json:"message"`
}

// HTTPOracle calls the merge service over HTTP JSON, guarded by a circuit
// breaker so a down oracle fails compactions fast instead of piling up
// blocked workers.
type HTTPOracle struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

func NewHTTPOracle(url string, timeout time.Duration) *HTTPOracle {
	return &HTTPOracle{
		url:    url,
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "merge-oracle",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// Merge folds ordered deltas into the base document. A nil base means
// "empty document". Any failure (transport, breaker open, oracle refusal)
// aborts the caller's compaction attempt; source data stays untouched.
func (o *HTTPOracle) Merge(ctx context.Context, roomID string, base []byte, deltas [][]byte) ([]byte, error) {
	res, err := o.breaker.Execute(func() (any, error) {
		return o.call(ctx, roomID, base, deltas)
	})
	if err != nil {
		return nil, fmt.Errorf("merge: room %s: %w", roomID, err)
	}
	return res.([]byte), nil
}

func (o *HTTPOracle) call(ctx context.Context, roomID string, base []byte, deltas [][]byte) ([]byte, error) {
	body, err := json.Marshal(mergeRequest{
		RoomID:       roomID,
		BaseSnapshot: base,
		Updates:      deltas,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	var out mergeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !out.Success {
		return nil, fmt.Errorf("oracle rejected merge: %s", out.Message)
	}
	return out.Merged, nil
}
