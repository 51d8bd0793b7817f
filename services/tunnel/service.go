// Package tunnel verifies the anonymizing tunnel is up before any transfer
// is allowed to start. Every check polls the status provider fresh; the
// connected flag is never cached across polls, because a stale "connected"
// reading is the one failure mode this package exists to prevent.
package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"tunnelarr/models"
)

// ErrProviderUnreachable wraps any failure to obtain a status reading.
var ErrProviderUnreachable = errors.New("tunnel status provider unreachable")

// StatusProvider yields one fresh observation of the tunnel connection.
type StatusProvider interface {
	Status(ctx context.Context) (models.ConnectionStatus, error)
}

// HTTPProvider queries a tunnel control server over HTTP. The endpoint is
// expected to answer GET {base}/status with a JSON ConnectionStatus.
type HTTPProvider struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPProvider constructs a provider for the given control server URL.
func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
	}
}

func (p *HTTPProvider) Status(ctx context.Context) (models.ConnectionStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/status", nil)
	if err != nil {
		return models.ConnectionStatus{}, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return models.ConnectionStatus{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.ConnectionStatus{}, fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var status models.ConnectionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return models.ConnectionStatus{}, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}

// Service is the tunnel gate: a fail-closed check, a blocking wait, and an
// edge-triggered disconnect monitor.
type Service struct {
	provider        StatusProvider
	pollTimeout     time.Duration
	waitInterval    time.Duration
	monitorInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService builds a gate over the given provider. Zero intervals fall
// back to 5s poll timeout, 5s wait cadence and 30s monitor cadence.
func NewService(provider StatusProvider, waitInterval, monitorInterval time.Duration) *Service {
	if waitInterval <= 0 {
		waitInterval = 5 * time.Second
	}
	if monitorInterval <= 0 {
		monitorInterval = 30 * time.Second
	}
	return &Service{
		provider:        provider,
		pollTimeout:     5 * time.Second,
		waitInterval:    waitInterval,
		monitorInterval: monitorInterval,
	}
}

// Status polls the provider once with a short timeout. Provider failures
// are wrapped in ErrProviderUnreachable for callers that need the detail.
func (s *Service) Status(ctx context.Context) (models.ConnectionStatus, error) {
	pctx, cancel := context.WithTimeout(ctx, s.pollTimeout)
	defer cancel()

	status, err := s.provider.Status(pctx)
	if err != nil {
		return models.ConnectionStatus{}, fmt.Errorf("%w: %v", ErrProviderUnreachable, err)
	}
	return status, nil
}

// IsActive is the fail-closed convenience wrapper: any uncertainty about
// the tunnel reads as "not connected".
func (s *Service) IsActive(ctx context.Context) bool {
	status, err := s.Status(ctx)
	if err != nil {
		log.Printf("[tunnel] status poll failed, treating as disconnected: %v", err)
		return false
	}
	return status.Connected
}

// WaitUntilActive polls at the wait cadence until the tunnel reports
// connected or the timeout elapses. The caller's context cancels the wait
// immediately, independent of the poll cadence.
func (s *Service) WaitUntilActive(ctx context.Context, timeout time.Duration) bool {
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if s.IsActive(wctx) {
		return true
	}

	ticker := time.NewTicker(s.waitInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wctx.Done():
			return false
		case <-ticker.C:
			if s.IsActive(wctx) {
				return true
			}
		}
	}
}

// Monitor starts the background disconnect watcher. onDisconnect fires
// exactly once per observed connected-to-disconnected transition, not once
// per poll while the tunnel stays down. Calling Monitor while already
// running is a no-op.
func (s *Service) Monitor(onDisconnect func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true

	s.wg.Add(1)
	go s.monitorLoop(ctx, onDisconnect)

	log.Printf("[tunnel] disconnect monitor started (interval %s)", s.monitorInterval)
}

// monitorLoop checks the stop signal at loop-top so shutdown latency is
// bounded by one poll interval and no poll happens after StopMonitor
// returns.
func (s *Service) monitorLoop(ctx context.Context, onDisconnect func()) {
	defer s.wg.Done()

	wasConnected := s.IsActive(ctx)

	ticker := time.NewTicker(s.monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}

		connected := s.IsActive(ctx)
		if wasConnected && !connected {
			log.Printf("[tunnel] disconnect detected")
			onDisconnect()
		}
		wasConnected = connected
	}
}

// StopMonitor halts the monitor loop and waits for it to exit.
func (s *Service) StopMonitor() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.running = false
	log.Printf("[tunnel] disconnect monitor stopped")
}
