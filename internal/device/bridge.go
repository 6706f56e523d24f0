package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MrWong99/jarvis/pkg/types"
)

// Bridge endpoints.
const (
	PathStatus    = "/status"
	PathPrint     = "/print"
	PathOpen      = "/api/open"
	PathSmartHome = "/api/smart/home"
)

// Status is the hardware bridge's self-report.
type Status struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	BridgeReady bool   `json:"bridge_ready"`
	MobileURL   string `json:"mobile_url,omitempty"`
}

// Bridge talks JSON over HTTP to the local hardware bridge.
type Bridge struct {
	base string
	hc   *http.Client
	dl   *deliverer
}

// NewBridge returns a bridge rooted at baseURL. hc may be nil.
func NewBridge(baseURL string, hc *http.Client, opts ...Option) *Bridge {
	if hc == nil {
		hc = &http.Client{}
	}
	return &Bridge{
		base: strings.TrimRight(baseURL, "/"),
		hc:   hc,
		dl:   newDeliverer("bridge", opts),
	}
}

// Print asks the bridge to print path. It returns immediately.
func (b *Bridge) Print(path string) {
	b.dl.fire("print", func(ctx context.Context) error {
		return b.post(ctx, PathPrint, map[string]string{"path": path})
	})
}

// Open asks the bridge to open app. It returns immediately.
func (b *Bridge) Open(app string) {
	b.dl.fire("open", func(ctx context.Context) error {
		return b.post(ctx, PathOpen, map[string]string{"app": app})
	})
}

// Status queries the bridge synchronously. It does not go through the
// circuit breaker so readiness always reflects the live bridge.
func (b *Bridge) Status(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.base+PathStatus, nil)
	if err != nil {
		return Status{}, fmt.Errorf("device: status: %w", err)
	}
	resp, err := b.hc.Do(req)
	if err != nil {
		return Status{}, fmt.Errorf("device: status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Status{}, fmt.Errorf("device: status: unexpected status %d", resp.StatusCode)
	}
	var st Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return Status{}, fmt.Errorf("device: status: decode: %w", err)
	}
	return st, nil
}

// Close waits for in-flight requests.
func (b *Bridge) Close() { b.dl.wait() }

func (b *Bridge) post(ctx context.Context, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("device: %s: marshal: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.base+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("device: %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.hc.Do(req)
	if err != nil {
		return fmt.Errorf("device: %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("device: %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(msg))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// HTTPSink posts the device state to the bridge's smart-home endpoint.
type HTTPSink struct {
	b  *Bridge
	dl *deliverer
}

// NewHTTPSink returns a sink that shares b's HTTP client and base URL but
// has its own circuit breaker.
func NewHTTPSink(b *Bridge, opts ...Option) *HTTPSink {
	return &HTTPSink{b: b, dl: newDeliverer("smart-home", opts)}
}

// Notify posts state. It returns immediately.
func (s *HTTPSink) Notify(state types.DeviceState) {
	s.dl.fire("notify", func(ctx context.Context) error {
		return s.b.post(ctx, PathSmartHome, state)
	})
}

// Close waits for in-flight requests.
func (s *HTTPSink) Close() { s.dl.wait() }
