package board

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"storyboard-api/autosave"
)

// DefaultIdleTTL is how long an unused session stays open.
const DefaultIdleTTL = 10 * time.Minute

// Registry keeps one Session per open project.
type Registry struct {
	remote  CardStore
	logger  *log.Logger
	idleTTL time.Duration
	opts    []autosave.Option
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty Registry. opts configure the auto-save of
// every session.
func NewRegistry(remote CardStore, logger *log.Logger, idleTTL time.Duration, opts ...autosave.Option) *Registry {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Registry{
		remote:   remote,
		logger:   logger,
		idleTTL:  idleTTL,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Open returns the session of projectID, loading its cards on first use.
func (r *Registry) Open(ctx context.Context, projectID string) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[projectID]; ok {
		r.mu.Unlock()
		s.touch()
		return s, nil
	}
	r.mu.Unlock()

	cards, err := r.remote.ListCards(ctx, projectID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[projectID]; ok {
		return s, nil
	}
	s := newSession(projectID, cards, r.remote, r.logger, r.now, r.opts...)
	r.sessions[projectID] = s
	r.logger.WithFields(log.Fields{"project_id": projectID, "cards": len(cards)}).Debug("session opened")
	return s, nil
}

// Lookup returns the session of projectID when it is open.
func (r *Registry) Lookup(projectID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[projectID]
	return s, ok
}

// Close drops the session of projectID together with its pending writes.
func (r *Registry) Close(projectID string) bool {
	r.mu.Lock()
	s, ok := r.sessions[projectID]
	delete(r.sessions, projectID)
	r.mu.Unlock()
	if !ok {
		return false
	}
	s.Close()
	return true
}

// Sweep flushes and closes sessions without subscribers that have been idle
// for the configured TTL.
func (r *Registry) Sweep() int {
	now := r.now()
	r.mu.Lock()
	var idle []*Session
	for id, s := range r.sessions {
		if s.idle(now, r.idleTTL) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		s.Flush()
		s.Close()
		r.logger.WithField("project_id", s.projectID).Debug("idle session closed")
	}
	return len(idle)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

// Shutdown flushes and closes every session.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		if n := s.Flush(); n > 0 {
			r.logger.WithFields(log.Fields{"project_id": s.projectID, "writes": n}).Info("flushed pending writes")
		}
		s.Close()
	}
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
