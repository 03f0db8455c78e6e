package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/wangfenghuan/draw-backend/internal/domain/model"
)

// AdmissionClient consults the external authorization service over HTTP.
// The rule engine itself is out of scope; this core only consumes the
// yes/no capability pair.
type AdmissionClient struct {
	url    string
	client *http.Client
}

func NewAdmissionClient(url string) *AdmissionClient {
	return &AdmissionClient{
		url:    url,
		client: &http.Client{},
	}
}

type admissionRequest struct {
	Principal string `json:"principal"`
	RoomID    string `json:"roomId"`
}

type admissionResponse struct {
	CanView bool `json:"canView"`
	CanEdit bool `json:"canEdit"`
}

func (c *AdmissionClient) Check(ctx context.Context, principal, roomID string) (model.Admission, error) {
	body, err := json.Marshal(admissionRequest{Principal: principal, RoomID: roomID})
	if err != nil {
		return model.Admission{}, fmt.Errorf("admission: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return model.Admission{}, fmt.Errorf("admission: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return model.Admission{}, fmt.Errorf("admission: call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Admission{}, fmt.Errorf("admission: status %d", resp.StatusCode)
	}

	var out admissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return model.Admission{}, fmt.Errorf("admission: decode response: %w", err)
	}
	return model.Admission{CanView: out.CanView, CanEdit: out.CanEdit}, nil
}
