// Package processor runs batch workers: one goroutine per batch that scans
// photos for QR codes, groups them per person and mirrors each group to
// cloud storage as soon as it closes.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/photo-batcher/internal/config"
	"github.com/kozaktomas/photo-batcher/internal/mailer"
	"github.com/kozaktomas/photo-batcher/internal/segment"
	"github.com/kozaktomas/photo-batcher/internal/store"
)

// ErrBatchRunning is returned when a batch already has an active worker.
var ErrBatchRunning = errors.New("batch is already being processed")

// Decoders holds the decode function per QR mode. Enhanced mode is chosen
// per processing run; a nil Enhanced falls back to Fast.
type Decoders struct {
	Fast     segment.DecodeFunc
	Enhanced segment.DecodeFunc
}

func (d Decoders) pick(enhanced bool) segment.DecodeFunc {
	if enhanced && d.Enhanced != nil {
		return d.Enhanced
	}
	return d.Fast
}

// Manager starts and tracks batch workers, one per batch id.
type Manager struct {
	store    *store.Store
	cloud    CloudStorage
	mail     mailer.Sender
	decoders Decoders
	cfg      *config.Config
	log      zerolog.Logger

	mu      sync.RWMutex
	workers map[int64]*Worker
}

func NewManager(st *store.Store, cloud CloudStorage, mail mailer.Sender,
	decoders Decoders, cfg *config.Config, log zerolog.Logger) *Manager {
	return &Manager{
		store:    st,
		cloud:    cloud,
		mail:     mail,
		decoders: decoders,
		cfg:      cfg,
		log:      log,
		workers: make(map[int64]*Worker),
	}
}

// Start launches processing for a batch. A batch with a running worker
// cannot be started again; a finished worker is replaced. The enhanced flag
// selects the QR decode mode for this run only.
func (m *Manager) Start(batchID int64, enhanced bool) (*Worker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.workers[batchID]; ok && existing.Running() {
		return nil, fmt.Errorf("batch %d: %w", batchID, ErrBatchRunning)
	}

	w := newWorker(batchID, m.store, m.cloud, m.mail, m.decoders.pick(enhanced), m.cfg, m.log)
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	m.workers[batchID] = w

	go w.Run(ctx)
	return w, nil
}

// Get returns the worker for a batch, or nil when none was started.
func (m *Manager) Get(batchID int64) *Worker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.workers[batchID]
}

// Cancel stops a running batch worker.
func (m *Manager) Cancel(batchID int64) error {
	m.mu.RLock()
	w := m.workers[batchID]
	m.mu.RUnlock()

	if w == nil || !w.Running() {
		return fmt.Errorf("batch %d has no running worker", batchID)
	}
	w.Cancel()
	return nil
}
