package bus

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/loresmith/internal/domain"
	"github.com/yungbote/loresmith/internal/jobs/lifecycle"
	"github.com/yungbote/loresmith/internal/platform/logger"
	"github.com/yungbote/loresmith/internal/realtime"
)

const publishTimeout = 2 * time.Second

// JobPublisher forwards job snapshots to a Bus. It observes lifecycle controllers, so
// the observer methods only enqueue; a single goroutine drains the queue in order.
//
// Progress updates beyond the queue limit are dropped. JobDone events are always kept,
// since an open stream only ends when its JobDone arrives.
type JobPublisher struct {
	bus   Bus
	log   *logger.Logger
	limit int

	mu      sync.Mutex
	pending []realtime.SSEMessage
	stopped bool
	wake    chan struct{}

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

var _ lifecycle.Observer = (*JobPublisher)(nil)

func NewJobPublisher(b Bus, log *logger.Logger, buffer int) *JobPublisher {
	if log == nil {
		log = logger.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	p := &JobPublisher{
		bus:   b,
		log:   log.With("component", "JobPublisher"),
		limit: buffer,
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *JobPublisher) JobSubmitted(domain.TaskKind, error) {}

func (p *JobPublisher) JobUpdated(rec domain.JobRecord) {
	event := realtime.SSEEventJobUpdated
	if rec.Status.Terminal() {
		event = realtime.SSEEventJobDone
	}
	p.enqueue(realtime.SSEMessage{Channel: realtime.JobChannel(rec.ID), Event: event, Data: rec.Clone()})
}

// JobFinished closes streams of jobs that ended without a terminal snapshot: transport
// errors and handles abandoned for a newer submission.
func (p *JobPublisher) JobFinished(jobID string, _ domain.TaskKind, state lifecycle.State, _ time.Duration) {
	if state != lifecycle.StateErrored && state != lifecycle.StateSuperseded {
		return
	}
	p.enqueue(realtime.SSEMessage{
		Channel: realtime.JobChannel(jobID),
		Event:   realtime.SSEEventJobDone,
		Data:    map[string]any{"id": jobID, "state": string(state)},
	})
}

func (p *JobPublisher) enqueue(msg realtime.SSEMessage) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	if msg.Event != realtime.SSEEventJobDone && len(p.pending) >= p.limit {
		p.mu.Unlock()
		p.log.Warn("job update dropped; publish queue full", "channel", msg.Channel)
		return
	}
	p.pending = append(p.pending, msg)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *JobPublisher) next() (realtime.SSEMessage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return realtime.SSEMessage{}, false
	}
	msg := p.pending[0]
	p.pending[0] = realtime.SSEMessage{}
	p.pending = p.pending[1:]
	return msg, true
}

func (p *JobPublisher) run() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case <-p.wake:
		}
		for {
			select {
			case <-p.stop:
				return
			default:
			}
			msg, ok := p.next()
			if !ok {
				break
			}
			ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
			if err := p.bus.Publish(ctx, msg); err != nil {
				p.log.Warn("job update publish failed", "channel", msg.Channel, "error", err)
			}
			cancel()
		}
	}
}

// Close stops the drain loop; queued updates that were not yet published are dropped.
func (p *JobPublisher) Close() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.pending = nil
		p.mu.Unlock()
		close(p.stop)
	})
	<-p.done
}
