// Package backup keeps rolling local snapshots of the document. Backups
// are written into client-local storage, never synced, and pruned by age.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sorrow233/flowsync/internal/crdt"
	"github.com/sorrow233/flowsync/internal/export"
	"github.com/sorrow233/flowsync/internal/localstore"
)

// StorageKey is the single localstore key holding the whole history blob.
const StorageKey = "backup:history"

// Defaults for the schedule.
const (
	DefaultMinSpacing = 5 * time.Minute
	DefaultRetention  = 72 * time.Hour
	DefaultInterval   = time.Hour
	DefaultFirstDelay = time.Minute
)

// DocSource yields the document to back up. A nil source, or a source
// returning a nil document, makes every backup operation a silent no-op.
type DocSource interface {
	Doc() *crdt.Doc
}

// Record is one retained backup.
type Record struct {
	Timestamp int64            `json:"timestamp"`
	Data      *export.Snapshot `json:"data"`
}

// History is the persisted shape under StorageKey. LastBackupTime always
// equals the newest retained timestamp after a successful write.
type History struct {
	Backups        []Record `json:"backups"`
	LastBackupTime int64    `json:"lastBackupTime"`
}

// Service schedules and writes backups.
type Service struct {
	store        *localstore.Store
	now          func() time.Time
	online       func() bool
	onlineSignal <-chan struct{}

	minSpacing time.Duration
	retention  time.Duration
	interval   time.Duration
	firstDelay time.Duration

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// Option configures a Service.
type Option func(*Service)

// WithNow overrides the wall clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithOnline overrides the network reachability probe.
func WithOnline(online func() bool) Option {
	return func(s *Service) { s.online = online }
}

// WithOnlineSignal wires a channel whose receives trigger an immediate
// backup re-check, typically fired on offline-to-online transitions.
func WithOnlineSignal(ch <-chan struct{}) Option {
	return func(s *Service) { s.onlineSignal = ch }
}

// WithMinSpacing sets the minimum gap between non-forced backups.
func WithMinSpacing(d time.Duration) Option {
	return func(s *Service) { s.minSpacing = d }
}

// WithRetention sets how long backups are kept.
func WithRetention(d time.Duration) Option {
	return func(s *Service) { s.retention = d }
}

// WithInterval sets the nominal scheduling interval.
func WithInterval(d time.Duration) Option {
	return func(s *Service) { s.interval = d }
}

// WithFirstDelay sets the delay before the very first backup of a fresh
// installation.
func WithFirstDelay(d time.Duration) Option {
	return func(s *Service) { s.firstDelay = d }
}

// New creates a backup service over the given store.
func New(store *localstore.Store, opts ...Option) *Service {
	s := &Service{
		store:      store,
		now:        time.Now,
		online:     func() bool { return true },
		minSpacing: DefaultMinSpacing,
		retention:  DefaultRetention,
		interval:   DefaultInterval,
		firstDelay: DefaultFirstDelay,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaybeBackup takes one backup if the guards allow it. In order: a missing
// document is a silent no-op; minimum spacing applies unless forced;
// network reachability applies unless forced. Quota failures shrink the
// history and retry once, then give up until the next cycle.
func (s *Service) MaybeBackup(src DocSource, force bool) error {
	if src == nil {
		return nil
	}
	doc := src.Doc()
	if doc == nil {
		return nil
	}

	now := s.now()
	hist, err := s.loadHistory()
	if err != nil {
		return err
	}

	if !force {
		if hist.LastBackupTime > 0 && now.UnixMilli()-hist.LastBackupTime < s.minSpacing.Milliseconds() {
			slog.Debug("backup skipped", "reason", "minimum spacing")
			return nil
		}
		if !s.online() {
			slog.Debug("backup skipped", "reason", "offline")
			return nil
		}
	}

	snap := export.Export(doc, now)

	cutoff := now.Add(-s.retention).UnixMilli()
	kept := hist.Backups[:0]
	for _, b := range hist.Backups {
		if b.Timestamp >= cutoff {
			kept = append(kept, b)
		}
	}
	hist.Backups = append(kept, Record{Timestamp: now.UnixMilli(), Data: snap})
	hist.LastBackupTime = now.UnixMilli()

	return s.persist(hist)
}

// persist writes the history blob. On quota failure the oldest half of the
// retained backups is dropped and the write retried once.
func (s *Service) persist(hist History) error {
	err := s.putHistory(hist)
	if !errors.Is(err, localstore.ErrQuotaExceeded) {
		return err
	}

	drop := len(hist.Backups) / 2
	hist.Backups = hist.Backups[drop:]
	slog.Warn("backup history over quota, halving", "dropped", drop, "kept", len(hist.Backups))

	err = s.putHistory(hist)
	if errors.Is(err, localstore.ErrQuotaExceeded) {
		slog.Warn("backup cycle abandoned, still over quota after halving")
		return nil
	}
	return err
}

func (s *Service) putHistory(hist History) error {
	raw, err := json.Marshal(hist)
	if err != nil {
		return fmt.Errorf("encode backup history: %w", err)
	}
	return s.store.Put(StorageKey, raw)
}

func (s *Service) loadHistory() (History, error) {
	var hist History
	raw, ok, err := s.store.Get(StorageKey)
	if err != nil {
		return hist, fmt.Errorf("read backup history: %w", err)
	}
	if !ok {
		return hist, nil
	}
	if err := json.Unmarshal(raw, &hist); err != nil {
		// A corrupt history blob must not block future backups.
		slog.Warn("backup history unreadable, starting fresh", "error", err)
		return History{}, nil
	}
	return hist, nil
}

// History returns the currently retained backups.
func (s *Service) History() (History, error) {
	return s.loadHistory()
}

// PreviewRestore validates one retained backup and returns its snapshot
// for user confirmation. Applying it is an explicit export.Import call by
// the caller.
func (s *Service) PreviewRestore(rec Record) (*export.Snapshot, error) {
	if rec.Data == nil {
		return nil, errors.New("backup record has no snapshot")
	}
	if rec.Data.Version == "" {
		return nil, errors.New("backup snapshot has no version")
	}
	return rec.Data, nil
}
