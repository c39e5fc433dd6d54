// Package status publishes the bot status snapshot to concurrent readers and
// keeps the user-facing activity journal.
package status

import (
	"futures-grid-bot/internal/models"
	"futures-grid-bot/internal/persistence"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// JournalLimit is the number of most recent journal entries kept.
const JournalLimit = 100

// Sink holds the current BotStatus. Writers are serialized; readers load an
// immutable snapshot and never observe a partial update.
type Sink struct {
	current atomic.Pointer[models.BotStatus]

	mu   sync.Mutex // serializes writers and guards logs
	logs []models.LogEntry

	repo            persistence.StatusRepository
	persistenceChan chan *models.BotStatus
	stopChan        chan struct{}
	doneChan        chan struct{}
	started         atomic.Bool
	startOnce       sync.Once
	stopOnce        sync.Once

	logger *zap.Logger
	now    func() time.Time
}

// NewSink creates a Sink seeded with initial (may be nil). repo may be nil,
// in which case snapshots are kept in memory only.
func NewSink(initial *models.BotStatus, repo persistence.StatusRepository, logger *zap.Logger) *Sink {
	s := &Sink{
		repo:            repo,
		persistenceChan: make(chan *models.BotStatus, 1),
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
		logger:          logger,
		now:             time.Now,
	}
	seed := &models.BotStatus{State: models.StateIdle}
	if initial != nil {
		seed = initial.Clone()
		s.logs = append(s.logs, seed.Logs...)
		if len(s.logs) > JournalLimit {
			s.logs = s.logs[len(s.logs)-JournalLimit:]
		}
	}
	seed.Logs = s.journalCopy()
	s.current.Store(seed)
	return s
}

// Start launches the persistence loop.
func (s *Sink) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.persistenceLoop()
	})
}

// Stop ends the persistence loop after flushing the latest pending snapshot.
func (s *Sink) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	if s.started.Load() {
		<-s.doneChan
	}
}

// Snapshot returns a deep copy of the current status.
func (s *Sink) Snapshot() *models.BotStatus {
	return s.current.Load().Clone()
}

// Update applies fn to a copy of the current status and publishes the result.
func (s *Sink) Update(fn func(st *models.BotStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().Clone()
	fn(next)
	next.Logs = s.journalCopy()
	s.publishLocked(next)
}

// Publish replaces the whole status. The journal is always taken from the sink.
func (s *Sink) Publish(st *models.BotStatus) {
	if st == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next := st.Clone()
	next.Logs = s.journalCopy()
	s.publishLocked(next)
}

// Log appends a journal entry, mirrors it to the structured logger and
// republishes the snapshot so readers see it immediately.
func (s *Sink) Log(level, msg string) {
	switch level {
	case models.LevelWarn:
		s.logger.Warn(msg)
	case models.LevelErr:
		s.logger.Error(msg)
	default:
		s.logger.Info(msg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, models.LogEntry{
		Time:  s.now().Format("15:04:05"),
		Level: level,
		Msg:   msg,
	})
	if len(s.logs) > JournalLimit {
		s.logs = s.logs[len(s.logs)-JournalLimit:]
	}

	next := s.current.Load().Clone()
	next.Logs = s.journalCopy()
	s.publishLocked(next)
}

func (s *Sink) journalCopy() []models.LogEntry {
	out := make([]models.LogEntry, len(s.logs))
	copy(out, s.logs)
	return out
}

// publishLocked stores next and hands a copy to the persistence loop,
// replacing any snapshot still waiting to be written. Caller holds s.mu.
func (s *Sink) publishLocked(next *models.BotStatus) {
	s.current.Store(next)
	if s.repo == nil {
		return
	}
	snap := next.Clone()
	select {
	case s.persistenceChan <- snap:
	default:
		select {
		case <-s.persistenceChan:
		default:
		}
		s.persistenceChan <- snap
	}
}

// persistenceLoop handles the asynchronous saving of status snapshots.
func (s *Sink) persistenceLoop() {
	defer close(s.doneChan)
	for {
		select {
		case st := <-s.persistenceChan:
			s.save(st)
		case <-s.stopChan:
			select {
			case st := <-s.persistenceChan:
				s.save(st)
			default:
			}
			return
		}
	}
}

func (s *Sink) save(st *models.BotStatus) {
	if s.repo == nil {
		return
	}
	if err := s.repo.SaveStatus(st); err != nil {
		s.logger.Error("Failed to save status snapshot.", zap.Error(err))
	}
}
