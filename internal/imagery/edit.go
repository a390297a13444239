package imagery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// EditTarget names what an image edit produces.
type EditTarget string

const (
	TargetBackground   EditTarget = "background"
	TargetShortcutSign EditTarget = "shortcut_sign"
)

// Valid reports whether t is a known target.
func (t EditTarget) Valid() bool {
	return t == TargetBackground || t == TargetShortcutSign
}

// EditRequest describes one AI image edit.
type EditRequest struct {
	RoomID       string     `json:"roomId"`
	Target       EditTarget `json:"target"`
	SourceRef    string     `json:"sourceRef,omitempty"`
	Instructions string     `json:"instructions"`
	RoomContext  string     `json:"roomContext,omitempty"`
}

// GeneratedAsset is the image returned by an edit service.
type GeneratedAsset struct {
	Name        string `json:"name"`
	ContentType string `json:"contentType"`
	Data        []byte `json:"data"`
}

// EditService generates an edited image. source is nil when the request
// has no SourceRef. Implementations must honour ctx cancellation.
type EditService interface {
	Generate(ctx context.Context, req EditRequest, source []byte) (*GeneratedAsset, error)
}

// HTTPEditService calls a remote image-edit endpoint with a JSON POST.
type HTTPEditService struct {
	endpoint string
	client   *http.Client
}

// NewHTTPEditService creates a client for endpoint. A zero timeout leaves
// request lifetime to the caller's context.
func NewHTTPEditService(endpoint string, timeout time.Duration) *HTTPEditService {
	return &HTTPEditService{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type editPayload struct {
	EditRequest
	Image []byte `json:"image,omitempty"`
}

func (s *HTTPEditService) Generate(ctx context.Context, req EditRequest, source []byte) (*GeneratedAsset, error) {
	body, err := json.Marshal(editPayload{EditRequest: req, Image: source})
	if err != nil {
		return nil, fmt.Errorf("encoding edit request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building edit request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling edit service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("edit service returned %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	var out GeneratedAsset
	if err := json.NewDecoder(io.LimitReader(resp.Body, 2*MaxImageBytes)).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding edit response: %w", err)
	}
	if len(out.Data) == 0 {
		return nil, fmt.Errorf("edit service returned no image")
	}
	return &out, nil
}
