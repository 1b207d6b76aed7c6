package app

import (
	"context"
	"io"
	"log"

	"github.com/jaakkos/auditwatch/internal/domain"
)

// EntryWriter appends an audit entry and republishes the current page.
// *auditlog.Store implements it.
type EntryWriter interface {
	Record(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error)
}

// SeenMarker is implemented by Notifier.
type SeenMarker interface {
	MarkSeen(rev string)
}

// Recorder runs the record use case: write through the store, then touch the
// notify signal so other processes refresh their view.
type Recorder struct {
	writer     EntryWriter
	signalPath string
	defaultEnv string
	logger     *log.Logger
	seen       SeenMarker // optional; set via SetNotifier after construction
}

// NewRecorder returns a Recorder. defaultEnv fills entries recorded without
// an environment; signalPath may be empty to skip signalling.
func NewRecorder(writer EntryWriter, signalPath, defaultEnv string, logger *log.Logger) *Recorder {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Recorder{writer: writer, signalPath: signalPath, defaultEnv: defaultEnv, logger: logger}
}

// SetNotifier attaches the local notifier so the revision written by this
// process is not treated as a foreign change.
func (r *Recorder) SetNotifier(n SeenMarker) {
	r.seen = n
}

// Record appends entry. A failure to touch the signal file is logged, not
// returned: the entry is already durable.
func (r *Recorder) Record(ctx context.Context, entry domain.AuditEntry) (domain.AuditEntry, error) {
	if entry.Environment == "" {
		entry.Environment = r.defaultEnv
	}
	saved, err := r.writer.Record(ctx, entry)
	if err != nil {
		return domain.AuditEntry{}, err
	}
	rev, err := TouchNotifySignal(r.signalPath)
	if err != nil {
		r.logger.Printf("Recorder: touch signal failed: %v", err)
		return saved, nil
	}
	if r.seen != nil {
		r.seen.MarkSeen(rev)
	}
	return saved, nil
}
