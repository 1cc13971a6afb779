package llm

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/malcolmhoward/dawn-sub004/internal/conversation"
)

// ErrBusy is returned when a job is started while another is in flight.
// The pipeline drops the new command instead of queueing: the running job
// is authoritative.
var ErrBusy = errors.New("llm worker busy")

// probeInterval is how often the in-flight call checks the cancel flag.
// This bounds cancellation latency: the transfer aborts within one
// interval of the flag being set.
const probeInterval = 100 * time.Millisecond

// pacingDelay spaces sentence emission so TTS synthesis keeps up without
// the playback queue ballooning.
const pacingDelay = 300 * time.Millisecond

// Job is one completion request handed to the worker. The worker takes
// ownership of the fields.
type Job struct {
	Text     string
	Images   [][]byte
	Messages []conversation.Message // snapshot including the user message
}

// Result is what the worker leaves behind when it finishes.
type Result struct {
	// Text is the full response. Empty with OK false on error or cancel.
	Text string
	// OK distinguishes a usable response from error/cancellation.
	OK bool
	// Cancelled is true when the job was aborted through the cancel flag.
	Cancelled bool
	// Elapsed is the wall time of the HTTP call.
	Elapsed time.Duration
}

// Streamer is the slice of the client the worker uses.
type Streamer interface {
	Stream(ctx context.Context, req Request, onSentence func(string)) (string, error)
	Timeout() time.Duration
}

// Worker runs at most one completion in the background. The state machine
// polls Processing each iteration; once it observes the 1 -> 0 transition
// it collects the result and joins the goroutine. The processing flag has
// release/acquire semantics: the result is fully written before the flag
// clears.
type Worker struct {
	streamer Streamer
	cancel   *atomic.Bool // shared with the signal handler and wake-word logic

	processing atomic.Int32
	result     Result // written by the worker goroutine before the flag clears
	wg         sync.WaitGroup
	startedAt  time.Time
}

// NewWorker creates a worker around the streamer. cancel is the
// process-wide cancellation flag.
func NewWorker(streamer Streamer, cancel *atomic.Bool) *Worker {
	return &Worker{streamer: streamer, cancel: cancel}
}

// Processing reports whether a job is in flight.
func (w *Worker) Processing() bool {
	return w.processing.Load() == 1
}

// Start launches the job in the background. onSentence receives each
// completed sentence as it streams, already paced. Returns ErrBusy when a
// job is already in flight.
func (w *Worker) Start(job Job, onSentence func(string)) error {
	if !w.processing.CompareAndSwap(0, 1) {
		return ErrBusy
	}

	// Any stale cancel request belongs to a previous job
	w.cancel.Store(false)
	w.startedAt = time.Now()

	w.wg.Add(1)
	go w.run(job, onSentence)
	return nil
}

func (w *Worker) run(job Job, onSentence func(string)) {
	defer w.wg.Done()

	ctx, cancelCtx := context.WithTimeout(context.Background(), w.streamer.Timeout())
	defer cancelCtx()

	// Progress probe: the only point that observes the cancel flag while
	// the transfer is in flight.
	probeDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(probeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-probeDone:
				return
			case <-ticker.C:
				if w.cancel.Load() {
					cancelCtx()
					return
				}
			}
		}
	}()

	paced := func(sentence string) {
		if onSentence != nil && !w.cancel.Load() {
			onSentence(sentence)
			time.Sleep(pacingDelay)
		}
	}

	text, err := w.streamer.Stream(ctx, Request{Messages: job.Messages, Images: job.Images}, paced)
	close(probeDone)

	res := Result{Elapsed: time.Since(w.startedAt)}
	switch {
	case err != nil && w.cancel.Load():
		res.Cancelled = true
		log.Printf("🚫 LLM request cancelled after %.1fs", res.Elapsed.Seconds())
	case err != nil:
		log.Printf("❌ LLM error: %v", err)
	default:
		res.Text = text
		res.OK = true
	}

	w.result = res
	w.processing.Store(0)
}

// Collect returns the finished result and joins the worker goroutine. Must
// only be called after Processing has returned false following a started
// job.
func (w *Worker) Collect() Result {
	w.wg.Wait()
	return w.result
}

// Join waits for any in-flight job to finish, up to the grace period.
// Returns false if the worker did not finish in time.
func (w *Worker) Join(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		return false
	}
}
