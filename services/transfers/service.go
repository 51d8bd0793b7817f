package transfers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"tunnelarr/models"
)

var (
	// ErrTunnelInactive denies a transfer because the gate could not verify
	// the tunnel. This is the safety contract: no locator reaches a daemon
	// while the tunnel is down or in doubt.
	ErrTunnelInactive       = errors.New("tunnel not active, transfer denied")
	ErrClientNotFound       = errors.New("download client not found")
	ErrTransferUnknown      = errors.New("transfer not found")
	ErrTransferNotRemovable = errors.New("transfer state does not allow removal")
)

// Gate is the slice of the tunnel service the manager depends on.
type Gate interface {
	IsActive(ctx context.Context) bool
	WaitUntilActive(ctx context.Context, timeout time.Duration) bool
	Monitor(onDisconnect func())
	StopMonitor()
}

// Recorder is the persistence collaborator. The manager hands it transfer
// records and moves on; storage failures are logged, never fatal.
type Recorder interface {
	RecordTransfer(t models.Transfer) error
}

// SeedingPolicy stops seeding once either threshold is exceeded. Zero
// values disable the corresponding limit.
type SeedingPolicy struct {
	MaxRatio    float64
	MaxSeedTime time.Duration
}

// AddRequest describes one transfer to start.
type AddRequest struct {
	ClientName    string
	Locator       string
	Name          string
	SavePath      string
	Category      string
	WaitForTunnel time.Duration // 0 means reject immediately when the gate is closed
}

// Service owns the transfer state machine. It consults the tunnel gate
// before any locator is handed to a daemon, pauses everything on a
// disconnect edge, resumes gate-paused transfers on reconnect, and enforces
// the seeding policy on a fixed cadence.
type Service struct {
	gate         Gate
	clients      map[string]Client
	clientOrder  []string
	policy       SeedingPolicy
	pollInterval time.Duration
	fs           afero.Fs
	recorder     Recorder

	mu        sync.RWMutex
	transfers map[string]*models.Transfer

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewService builds a transfer manager over the given daemon clients. The
// first client is the default when an AddRequest names none.
func NewService(gate Gate, policy SeedingPolicy, pollInterval time.Duration, clients ...Client) *Service {
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	s := &Service{
		gate:         gate,
		clients:      make(map[string]Client, len(clients)),
		policy:       policy,
		pollInterval: pollInterval,
		fs:           afero.NewOsFs(),
		transfers:    make(map[string]*models.Transfer),
	}
	for _, c := range clients {
		if c == nil {
			continue
		}
		key := strings.ToLower(c.Name())
		if _, dup := s.clients[key]; dup {
			continue
		}
		s.clients[key] = c
		s.clientOrder = append(s.clientOrder, key)
	}
	return s
}

// SetRecorder attaches the persistence collaborator.
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// SetFs swaps the filesystem used for save paths. Tests use an in-memory
// one.
func (s *Service) SetFs(fs afero.Fs) {
	s.fs = fs
}

// Add runs the gated admission sequence: requested -> gate_checking ->
// authorized -> active, or denied/failed along the way. The daemon is only
// contacted after the gate authorizes.
func (s *Service) Add(ctx context.Context, req AddRequest) (models.Transfer, error) {
	client, err := s.resolveClient(req.ClientName)
	if err != nil {
		return models.Transfer{}, err
	}

	now := time.Now().UTC()
	t := &models.Transfer{
		ID:         uuid.NewString(),
		ClientName: client.Name(),
		Name:       req.Name,
		Locator:    req.Locator,
		SavePath:   req.SavePath,
		State:      models.TransferRequested,
		AddedAt:    now,
		UpdatedAt:  now,
	}
	s.mu.Lock()
	s.transfers[t.ID] = t
	s.mu.Unlock()

	s.transition(t, models.TransferGateChecking)

	authorized := s.gate.IsActive(ctx)
	if !authorized && req.WaitForTunnel > 0 {
		log.Printf("[transfers] tunnel down, waiting up to %s before denying %s", req.WaitForTunnel, t.ID)
		authorized = s.gate.WaitUntilActive(ctx, req.WaitForTunnel)
	}
	if !authorized {
		s.transition(t, models.TransferDenied)
		return s.snapshot(t), ErrTunnelInactive
	}

	s.transition(t, models.TransferAuthorized)

	if req.SavePath != "" {
		if err := s.fs.MkdirAll(req.SavePath, 0o755); err != nil {
			log.Printf("[transfers] could not create save path %s: %v", req.SavePath, err)
		}
	}

	handle, err := client.Add(ctx, req.Locator, req.SavePath, AddOptions{Category: req.Category})
	if err != nil {
		s.setError(t, err)
		s.transition(t, models.TransferFailed)
		return s.snapshot(t), fmt.Errorf("add transfer: %w", err)
	}

	s.mu.Lock()
	t.HandleID = handle
	s.mu.Unlock()
	s.transition(t, models.TransferActive)

	log.Printf("[transfers] %s started on %s (handle %s)", t.ID, client.Name(), handle)
	return s.snapshot(t), nil
}

// Get returns one transfer by ID.
func (s *Service) Get(id string) (models.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transfers[id]
	if !ok {
		return models.Transfer{}, ErrTransferUnknown
	}
	return *t, nil
}

// List returns all transfers, newest first.
func (s *Service) List() []models.Transfer {
	s.mu.RLock()
	out := make([]models.Transfer, 0, len(s.transfers))
	for _, t := range s.transfers {
		out = append(out, *t)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].AddedAt.After(out[j].AddedAt)
	})
	return out
}

// Pause pauses one transfer at the caller's request. A user pause is not
// undone by the gate's reconnect handling.
func (s *Service) Pause(ctx context.Context, id string) error {
	v, client, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := client.Pause(ctx, v.handleID); err != nil {
		return fmt.Errorf("pause transfer: %w", err)
	}
	s.mu.Lock()
	v.t.PausedByGate = false
	s.mu.Unlock()
	s.transition(v.t, models.TransferPaused)
	return nil
}

// Resume resumes one transfer at the caller's request.
func (s *Service) Resume(ctx context.Context, id string) error {
	v, client, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := client.Resume(ctx, v.handleID); err != nil {
		return fmt.Errorf("resume transfer: %w", err)
	}
	s.mu.Lock()
	v.t.PausedByGate = false
	s.mu.Unlock()
	s.transition(v.t, models.TransferActive)
	return nil
}

// Remove deletes the transfer from its daemon, optionally with downloaded
// files. Transfers whose state cannot reach removed, terminal records
// included, are rejected rather than silently left unchanged.
func (s *Service) Remove(ctx context.Context, id string, deleteFiles bool) error {
	v, client, err := s.lookup(id)
	if err != nil {
		return err
	}
	if !models.CanTransition(v.state, models.TransferRemoved) {
		return fmt.Errorf("%w: %s is %s", ErrTransferNotRemovable, id, v.state)
	}
	if v.handleID != "" {
		if err := client.Remove(ctx, v.handleID, deleteFiles); err != nil {
			return fmt.Errorf("remove transfer: %w", err)
		}
	}
	s.transition(v.t, models.TransferRemoved)
	return nil
}

// Start wires the gate's disconnect edge to pause-all and begins the
// status/policy loop. Idempotent.
func (s *Service) Start(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.running {
		return
	}

	lctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	s.gate.Monitor(s.pauseForGate)

	s.wg.Add(1)
	go s.policyLoop(lctx)

	log.Printf("[transfers] manager started (poll %s)", s.pollInterval)
}

// Stop halts the policy loop and the gate monitor.
func (s *Service) Stop() {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.running {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.gate.StopMonitor()
	s.running = false
	log.Printf("[transfers] manager stopped")
}

// transferView is a consistent snapshot of the fields the policy loops
// branch on, taken under the lock. The record itself is only touched again
// through transition or an explicit locked write, so the loops never read
// mutable state concurrently with the handler paths.
type transferView struct {
	t            *models.Transfer
	id           string
	clientName   string
	handleID     string
	state        models.TransferState
	pausedByGate bool
}

func viewOf(t *models.Transfer) transferView {
	return transferView{
		t:            t,
		id:           t.ID,
		clientName:   t.ClientName,
		handleID:     t.HandleID,
		state:        t.State,
		pausedByGate: t.PausedByGate,
	}
}

// pauseForGate is the tunnel disconnect callback: every active or seeding
// transfer is paused and marked so the reconnect path knows to resume it.
func (s *Service) pauseForGate() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, v := range s.activeTransfers() {
		client, ok := s.clients[strings.ToLower(v.clientName)]
		if !ok {
			continue
		}
		if err := client.Pause(ctx, v.handleID); err != nil {
			log.Printf("[transfers] gate pause of %s failed: %v", v.id, err)
			continue
		}
		s.mu.Lock()
		v.t.PausedByGate = true
		s.mu.Unlock()
		s.transition(v.t, models.TransferPaused)
	}
	log.Printf("[transfers] tunnel disconnected, active transfers paused")
}

func (s *Service) policyLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refresh(ctx)
		}
	}
}

// refresh is one policy pass: sync daemon status into the records, resume
// gate-paused transfers once the tunnel is back, and retire transfers whose
// seeding thresholds are exceeded.
func (s *Service) refresh(ctx context.Context) {
	gateActive := false
	if s.hasGatePaused() {
		gateActive = s.gate.IsActive(ctx)
	}

	for _, v := range s.openTransfers() {
		client, ok := s.clients[strings.ToLower(v.clientName)]
		if !ok || v.handleID == "" {
			continue
		}

		status, err := client.Status(ctx, v.handleID)
		if err != nil {
			if errors.Is(err, ErrHandleNotFound) {
				log.Printf("[transfers] handle for %s vanished from %s", v.id, v.clientName)
				s.transition(v.t, models.TransferRemoved)
			} else {
				log.Printf("[transfers] status of %s failed: %v", v.id, err)
			}
			continue
		}

		s.mu.Lock()
		v.t.Progress = status.Progress
		v.t.Ratio = status.Ratio
		v.t.UpdatedAt = time.Now().UTC()
		s.mu.Unlock()

		switch {
		case v.state == models.TransferPaused && v.pausedByGate && gateActive:
			if err := client.Resume(ctx, v.handleID); err != nil {
				log.Printf("[transfers] gate resume of %s failed: %v", v.id, err)
				continue
			}
			s.mu.Lock()
			v.t.PausedByGate = false
			s.mu.Unlock()
			if status.Completed {
				s.transition(v.t, models.TransferSeeding)
			} else {
				s.transition(v.t, models.TransferActive)
			}
			log.Printf("[transfers] tunnel restored, resumed %s", v.id)

		case v.state == models.TransferActive && status.Seeding:
			s.transition(v.t, models.TransferSeeding)

		case v.state == models.TransferSeeding && s.seedingDone(status):
			// Remove from the daemon but keep the downloaded files.
			if err := client.Remove(ctx, v.handleID, false); err != nil {
				log.Printf("[transfers] seed-limit remove of %s failed: %v", v.id, err)
				continue
			}
			s.transition(v.t, models.TransferCompleted)
			log.Printf("[transfers] %s reached seeding limits, completed", v.id)
		}
	}
}

func (s *Service) seedingDone(status ClientStatus) bool {
	if s.policy.MaxRatio > 0 && status.Ratio >= s.policy.MaxRatio {
		return true
	}
	if s.policy.MaxSeedTime > 0 && status.SeedingTime >= s.policy.MaxSeedTime {
		return true
	}
	return false
}

func (s *Service) resolveClient(name string) (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if name == "" {
		if len(s.clientOrder) == 0 {
			return nil, ErrClientNotFound
		}
		return s.clients[s.clientOrder[0]], nil
	}
	client, ok := s.clients[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientNotFound, name)
	}
	return client, nil
}

// lookup resolves a transfer and its client, returning a locked snapshot of
// the fields the caller branches on.
func (s *Service) lookup(id string) (transferView, Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transfers[id]
	if !ok {
		return transferView{}, nil, ErrTransferUnknown
	}
	client, ok := s.clients[strings.ToLower(t.ClientName)]
	if !ok {
		return transferView{}, nil, fmt.Errorf("%w: %s", ErrClientNotFound, t.ClientName)
	}
	return viewOf(t), client, nil
}

func (s *Service) activeTransfers() []transferView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []transferView
	for _, t := range s.transfers {
		if t.State == models.TransferActive || t.State == models.TransferSeeding {
			out = append(out, viewOf(t))
		}
	}
	return out
}

func (s *Service) openTransfers() []transferView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []transferView
	for _, t := range s.transfers {
		switch t.State {
		case models.TransferActive, models.TransferPaused, models.TransferSeeding:
			out = append(out, viewOf(t))
		}
	}
	return out
}

func (s *Service) hasGatePaused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.transfers {
		if t.State == models.TransferPaused && t.PausedByGate {
			return true
		}
	}
	return false
}

// transition applies a state change if the state machine allows it and
// pushes the updated record to the recorder.
func (s *Service) transition(t *models.Transfer, to models.TransferState) {
	s.mu.Lock()
	if !models.CanTransition(t.State, to) {
		s.mu.Unlock()
		log.Printf("[transfers] illegal transition %s -> %s for %s ignored", t.State, to, t.ID)
		return
	}
	t.State = to
	t.UpdatedAt = time.Now().UTC()
	record := *t
	s.mu.Unlock()

	if s.recorder != nil {
		if err := s.recorder.RecordTransfer(record); err != nil {
			log.Printf("[transfers] recording %s failed: %v", record.ID, err)
		}
	}
}

func (s *Service) setError(t *models.Transfer, err error) {
	s.mu.Lock()
	t.Error = err.Error()
	s.mu.Unlock()
}

func (s *Service) snapshot(t *models.Transfer) models.Transfer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *t
}
