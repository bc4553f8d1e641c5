package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// MLEngine talks to a local layout-model server over HTTP. The model weights
// load once per process on the server side, so this client holds exactly one
// in-flight request at a time; parallel page workers queue on the slot.
type MLEngine struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger

	slot chan struct{}

	healthOnce sync.Once
	healthy    bool
}

// NewMLEngine creates the tier-1 engine. An empty baseURL makes the engine
// permanently unavailable, which is the default deployment.
func NewMLEngine(baseURL string, logger *slog.Logger) *MLEngine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &MLEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
		logger:  logger,
		slot:    make(chan struct{}, 1),
	}
	e.slot <- struct{}{}
	return e
}

func (e *MLEngine) Name() string { return "ml" }
func (e *MLEngine) Tier() int    { return 1 }

// Available probes the server's health endpoint once per process.
func (e *MLEngine) Available() bool {
	if e.baseURL == "" {
		return false
	}
	e.healthOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
		if err != nil {
			return
		}
		resp, err := e.client.Do(req)
		if err != nil {
			e.logger.Warn("layout-model server unreachable", "url", e.baseURL, "error", err)
			return
		}
		resp.Body.Close()
		e.healthy = resp.StatusCode == http.StatusOK
	})
	return e.healthy
}

type mlRequest struct {
	DocumentPath string `json:"document_path,omitempty"`
	Page         int    `json:"page"`
	ImagePNG     string `json:"image_png,omitempty"` // base64, raster pages
}

type mlResponse struct {
	Markdown   string  `json:"markdown"`
	Confidence float64 `json:"confidence"`
}

// ExtractPage sends the page to the layout-model server. Raster pages travel
// as sanitized PNG; native pages are referenced by path so the server can
// exploit the original vector content.
func (e *MLEngine) ExtractPage(ctx context.Context, req PageRequest) (PageResult, error) {
	if !e.Available() {
		return PageResult{}, ErrEngineUnavailable
	}

	select {
	case <-e.slot:
	case <-ctx.Done():
		return PageResult{}, ctx.Err()
	}
	defer func() { e.slot <- struct{}{} }()

	body := mlRequest{DocumentPath: req.Path, Page: req.PageNr}
	if req.Image != nil {
		var buf bytes.Buffer
		if err := png.Encode(&buf, req.Image); err != nil {
			return PageResult{}, fmt.Errorf("ml page %d: encode: %w", req.PageNr, err)
		}
		body.ImagePNG = base64.StdEncoding.EncodeToString(buf.Bytes())
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return PageResult{}, fmt.Errorf("ml page %d: marshal: %w", req.PageNr, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/extract", bytes.NewReader(payload))
	if err != nil {
		return PageResult{}, fmt.Errorf("ml page %d: request: %w", req.PageNr, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return PageResult{}, fmt.Errorf("ml page %d: %w", req.PageNr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		return PageResult{}, ErrEngineUnavailable
	}
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return PageResult{}, fmt.Errorf("ml page %d: status %d: %s", req.PageNr, resp.StatusCode, b)
	}

	var out mlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return PageResult{}, fmt.Errorf("ml page %d: decode: %w", req.PageNr, err)
	}

	text := strings.TrimSpace(out.Markdown)
	conf := out.Confidence
	if conf <= 0 || conf > 1 {
		conf = textQuality(text)
	}

	return PageResult{
		Text:       text,
		Confidence: PriorML * conf,
		Engine:     e.Name(),
		WordCount:  len(strings.Fields(text)),
	}, nil
}
