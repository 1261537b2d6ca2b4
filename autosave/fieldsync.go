package autosave

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// DefaultDelay is the quiet period before an edited field is written.
	DefaultDelay        = time.Second
	defaultWriteTimeout = 30 * time.Second
)

// Writer persists a partial update of one entity.
type Writer interface {
	UpdateFields(ctx context.Context, id string, patch map[string]any) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, id string, patch map[string]any) error

func (f WriterFunc) UpdateFields(ctx context.Context, id string, patch map[string]any) error {
	return f(ctx, id, patch)
}

type fieldKey struct {
	id    string
	field string
}

// FieldSync writes the latest value of each (entity, field) pair once the
// pair has been quiet for the configured delay. Superseded values are
// dropped, failed writes are logged and not retried.
type FieldSync struct {
	name         string
	writer       Writer
	logger       *log.Logger
	delay        time.Duration
	writeTimeout time.Duration
	debouncer    *Debouncer[fieldKey]
}

// Option configures a FieldSync.
type Option func(*FieldSync)

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(s *FieldSync) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithWriteTimeout bounds each remote write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *FieldSync) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// NewFieldSync returns a FieldSync writing through w. name identifies the
// target collection in logs.
func NewFieldSync(name string, w Writer, logger *log.Logger, opts ...Option) *FieldSync {
	if logger == nil {
		panic("autosave.NewFieldSync: logger is nil")
	}
	s := &FieldSync{
		name:         name,
		writer:       w,
		logger:       logger,
		delay:        DefaultDelay,
		writeTimeout: defaultWriteTimeout,
		debouncer:    NewDebouncer[fieldKey](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule records value as the latest intended value of field and restarts
// the quiet period of the pair.
func (s *FieldSync) Schedule(id, field string, value any) {
	key := fieldKey{id: id, field: field}
	s.debouncer.Schedule(key, func() { s.write(key, value) }, s.delay)
}

// Flush writes the pending value of field now. It reports whether a value
// was pending.
func (s *FieldSync) Flush(id, field string) bool {
	return s.debouncer.Flush(fieldKey{id: id, field: field})
}

// FlushAll writes every pending value now.
func (s *FieldSync) FlushAll() int {
	return s.debouncer.FlushAll()
}

// Cancel drops every pending write of entity id.
func (s *FieldSync) Cancel(id string) int {
	return s.debouncer.CancelMatching(func(k fieldKey) bool { return k.id == id })
}

// CancelField drops the pending write of one field.
func (s *FieldSync) CancelField(id, field string) bool {
	return s.debouncer.Cancel(fieldKey{id: id, field: field})
}

// Pending returns the number of pending writes.
func (s *FieldSync) Pending() int {
	return s.debouncer.Pending()
}

// Close drops pending writes and waits for writes already in flight. Later
// Schedule calls are ignored.
func (s *FieldSync) Close() {
	if n := s.debouncer.Stop(); n > 0 {
		s.logger.WithFields(log.Fields{"collection": s.name, "dropped": n}).Debug("autosave closed with pending writes")
	}
}

func (s *FieldSync) write(key fieldKey, value any) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	fields := log.Fields{"collection": s.name, "id": key.id, "field": key.field}
	if err := s.writer.UpdateFields(ctx, key.id, map[string]any{key.field: value}); err != nil {
		s.logger.WithFields(fields).WithError(err).Error("auto-save failed")
		return
	}
	s.logger.WithFields(fields).Debug("auto-saved")
}
