package backup

import (
	"log/slog"
	"time"
)

// Start launches the background schedule. A fresh installation backs up
// after the first-delay; an installation whose last backup is more than
// one interval stale backs up immediately; afterwards a ticker fires per
// interval, and an online-signal receive triggers an immediate re-check.
// Start is a no-op when the service is already running.
func (s *Service) Start(src DocSource) {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop = stop
	s.done = done
	s.mu.Unlock()

	go s.run(src, stop, done)
}

// Stop tears down the schedule and waits for the worker to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *Service) run(src DocSource, stop, done chan struct{}) {
	defer close(done)

	firstDelay := s.firstDelay
	if hist, err := s.loadHistory(); err == nil && hist.LastBackupTime > 0 {
		if s.now().UnixMilli()-hist.LastBackupTime > s.interval.Milliseconds() {
			firstDelay = 0
		} else {
			firstDelay = -1
		}
	}

	var firstC <-chan time.Time
	if firstDelay >= 0 {
		timer := time.NewTimer(firstDelay)
		defer timer.Stop()
		firstC = timer.C
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-firstC:
			firstC = nil
			s.tryBackup(src)
		case <-ticker.C:
			s.tryBackup(src)
		case <-s.onlineSignal:
			s.tryBackup(src)
		}
	}
}

func (s *Service) tryBackup(src DocSource) {
	if err := s.MaybeBackup(src, false); err != nil {
		slog.Warn("scheduled backup failed", "error", err)
	}
}
