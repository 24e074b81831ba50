package server

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// eventLog is an async, bounded pipeline for operational logging — adapted
// from the teacher's worker pool (originally used to persist chat history
// to disk). Since this system has no persistence (spec NON-GOALS), the
// pool's job here is instead to keep zerolog's I/O off the roster's hot
// broadcast path: Logf never blocks the caller, and a full queue drops the
// message rather than stalling a session goroutine.
type eventLog struct {
	log  zerolog.Logger
	jobs chan string
	wg   sync.WaitGroup
}

const eventQueueSize = 1024

func newEventLog(log zerolog.Logger, workers int) *eventLog {
	e := &eventLog{
		log:  log,
		jobs: make(chan string, eventQueueSize),
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for msg := range e.jobs {
				e.log.Info().Msg(msg)
			}
		}()
	}
	return e
}

// Logf queues a formatted operational message. Non-blocking: if the queue
// is full the message is dropped and a warning naming it is logged
// synchronously instead, like the teacher's "job queue full" log line.
func (e *eventLog) Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	select {
	case e.jobs <- msg:
	default:
		e.log.Warn().Str("dropped", msg).Msg("event log queue full")
	}
}

// Stop drains remaining jobs and waits for workers to exit.
func (e *eventLog) Stop() {
	close(e.jobs)
	e.wg.Wait()
}
