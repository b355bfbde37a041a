// Package sink delivers detections to consumers. Delivery is
// queue-and-forget: the matching path enqueues and returns, and a
// slow, failing, or panicking sink can never block ingestion or
// corrupt match state.
package sink

import (
	"sync"

	"github.com/seqguard/seqguard/internal/action"
	"github.com/seqguard/seqguard/internal/logger"
)

// Sink consumes detections. Report has no return value and no
// synchronous-completion guarantee.
type Sink interface {
	Report(det *action.Detection)
}

// Func adapts a function to the Sink interface.
type Func func(det *action.Detection)

// Report calls f.
func (f Func) Report(det *action.Detection) { f(det) }

// Dispatcher fans detections out to a set of sinks from a dedicated
// goroutine. The queue is bounded; when a consumer cannot keep up,
// detections are dropped with a warning rather than applying
// backpressure into the matching path.
type Dispatcher struct {
	mu    sync.RWMutex
	sinks []Sink
	queue chan *action.Detection
	stop  chan struct{}
	done  chan struct{}
	once  sync.Once
}

// NewDispatcher creates a dispatcher with the given queue depth.
// Non-positive depth gets a default.
func NewDispatcher(depth int) *Dispatcher {
	if depth <= 0 {
		depth = 1024
	}
	d := &Dispatcher{
		queue: make(chan *action.Detection, depth),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

// Add registers a sink. Safe to call while dispatching.
func (d *Dispatcher) Add(s Sink) {
	d.mu.Lock()
	d.sinks = append(d.sinks, s)
	d.mu.Unlock()
}

// Report enqueues a detection without blocking.
func (d *Dispatcher) Report(det *action.Detection) {
	select {
	case <-d.stop:
		return
	default:
	}
	select {
	case d.queue <- det:
	default:
		logger.Warn().Str("rule_id", det.RuleID).Msg("Detection queue full, dropping detection")
	}
}

// Close drains the queue and stops the dispatch goroutine. Detections
// reported after Close are dropped.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		close(d.stop)
		<-d.done
	})
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case det := <-d.queue:
			d.dispatch(det)
		case <-d.stop:
			// Drain whatever was queued before stop.
			for {
				select {
				case det := <-d.queue:
					d.dispatch(det)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) dispatch(det *action.Detection) {
	d.mu.RLock()
	sinks := d.sinks
	d.mu.RUnlock()
	for _, s := range sinks {
		deliver(s, det)
	}
}

// deliver isolates sink failures: a panicking sink loses that one
// detection, nothing else.
func deliver(s Sink, det *action.Detection) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("rule_id", det.RuleID).
				Msg("Detection sink panicked")
		}
	}()
	s.Report(det)
}
