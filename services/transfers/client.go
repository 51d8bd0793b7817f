// Package transfers manages downloads behind the tunnel gate: a download
// client abstraction with one backend per supported daemon, and a manager
// that drives the transfer state machine, pauses everything on tunnel
// disconnect and enforces the seeding policy.
package transfers

import (
	"context"
	"errors"
	"time"
)

// ErrHandleNotFound is returned when a daemon no longer knows a handle.
var ErrHandleNotFound = errors.New("transfer handle not found")

// AddOptions carries per-transfer knobs for the daemon backend.
type AddOptions struct {
	Category string
	Paused   bool
}

// ClientStatus is a daemon's view of one transfer, normalized across
// backends.
type ClientStatus struct {
	HandleID    string
	Name        string
	Progress    float64 // 0..1
	Ratio       float64
	SeedingTime time.Duration
	SizeBytes   int64
	Downloading bool
	Seeding     bool
	Paused      bool
	Completed   bool
}

// Client is the download daemon abstraction. One implementation exists per
// supported daemon; the manager only ever touches this interface and never
// a backend's internal fields.
type Client interface {
	Name() string
	// Add hands the locator to the daemon and returns the daemon-owned
	// handle identifier. This is the single network-initiating side effect
	// in the transfer lifecycle and must only be called after the tunnel
	// gate has authorized the transfer.
	Add(ctx context.Context, locator, savePath string, opts AddOptions) (string, error)
	Status(ctx context.Context, handleID string) (ClientStatus, error)
	Pause(ctx context.Context, handleID string) error
	Resume(ctx context.Context, handleID string) error
	Remove(ctx context.Context, handleID string, deleteFiles bool) error
}
