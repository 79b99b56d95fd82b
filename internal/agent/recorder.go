package agent

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"calendarbot/internal/domain"
	"calendarbot/internal/logging"
)

const (
	defaultRecorderBuffer = 256
	recordTimeout         = 5 * time.Second
)

type record struct {
	convID string
	msg    domain.Message
}

// Recorder persists conversation messages in the background. A failed or
// dropped write is logged and counted; it never reaches the turn that
// produced the message. Wait lets the next turn of a conversation read
// what the previous one wrote.
type Recorder struct {
	log    domain.MessageLog
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan record
	done   chan struct{}

	pendingMu sync.Mutex
	pending   map[string]int
	settled   chan struct{} // closed and replaced whenever a write finishes

	failed  atomic.Int64
	dropped atomic.Int64
}

// NewRecorder starts the writer goroutine. Call Close to drain it.
func NewRecorder(log domain.MessageLog, logger *slog.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = defaultRecorderBuffer
	}
	r := &Recorder{
		log:    log,
		logger: logger,
		queue:   make(chan record, buffer),
		done:    make(chan struct{}),
		pending: make(map[string]int),
		settled: make(chan struct{}),
	}
	go r.loop()
	return r
}

// Record queues msgs for convID in order. It does not block: when the queue
// is full the message is dropped.
func (r *Recorder) Record(convID string, msgs ...domain.Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(int64(len(msgs)))
		r.logger.Warn("recorder closed, message not persisted", logging.Conversation(convID), "count", len(msgs))
		return
	}
	for _, m := range msgs {
		r.track(convID, 1)
		select {
		case r.queue <- record{convID: convID, msg: m}:
		default:
			r.track(convID, -1)
			r.dropped.Add(1)
			r.logger.Warn("recorder queue full, message not persisted", logging.Conversation(convID), "role", m.Role)
		}
	}
}

// Wait blocks until every message queued for convID has been written or
// has failed, or until ctx is done.
func (r *Recorder) Wait(ctx context.Context, convID string) error {
	for {
		r.pendingMu.Lock()
		n, settled := r.pending[convID], r.settled
		r.pendingMu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-settled:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *Recorder) track(convID string, delta int) {
	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	r.pending[convID] += delta
	if r.pending[convID] > 0 {
		return
	}
	delete(r.pending, convID)
	close(r.settled)
	r.settled = make(chan struct{})
}

// Close stops accepting messages and waits until queued ones are written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()
	<-r.done
}

// Failed reports how many writes the message log rejected.
func (r *Recorder) Failed() int64 { return r.failed.Load() }

// Dropped reports how many messages were never handed to the message log.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

func (r *Recorder) loop() {
	defer close(r.done)
	for rec := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		seq, err := r.log.AppendMessage(ctx, rec.convID, rec.msg)
		cancel()
		r.track(rec.convID, -1)
		if err != nil {
			r.failed.Add(1)
			r.logger.Error("failed to persist message",
				logging.Conversation(rec.convID),
				"role", rec.msg.Role,
				logging.Err(err),
			)
			continue
		}
		r.logger.Debug("message persisted", logging.Conversation(rec.convID), "role", rec.msg.Role, "seq", seq)
	}
}
