package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// RemoteClassifier delegates section detection to an HTTP service honoring
// the same Result contract as the pattern classifier. It exists for
// deployments that run a trained classifier next to the layout-model server;
// the pattern classifier remains the canonical default.
type RemoteClassifier struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewRemoteClassifier creates a classifier client for baseURL.
func NewRemoteClassifier(baseURL string, logger *slog.Logger) *RemoteClassifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteClassifier{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		logger:  logger,
	}
}

type remoteRequest struct {
	Document string `json:"document"`
}

// Classify posts the marked-up document and returns the service's record.
func (r *RemoteClassifier) Classify(ctx context.Context, doc string) (*Result, error) {
	payload, err := json.Marshal(remoteRequest{Document: doc})
	if err != nil {
		return nil, fmt.Errorf("classify: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/v1/classify", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("classify: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("classify: status %d: %s", resp.StatusCode, b)
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("classify: decode: %w", err)
	}
	return &out, nil
}
