// Package downloader coordinates concurrent, cancellable package downloads
// with de-duplication, batch progress, and serialized post-completion
// handling.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/starford/fehu/internal/events"
)

// Config configures a Coordinator. Transport is required; everything else
// has a usable zero value.
type Config struct {
	Transport     Transport
	MaxConcurrent int64

	// Events receives task and batch lifecycle events (optional).
	Events *events.Broker

	// OnCompleted runs inside the coordinator loop after a successful
	// transfer and before the completed event is published. Completions are
	// serialized: no two tasks ever interleave their OnCompleted, so index
	// rebuild and retention for one download finish before the next begins.
	OnCompleted func(Task)

	// OnFinished runs inside the loop for every task reaching a terminal
	// state, after its terminal event is published.
	OnFinished func(Task)

	// OnEvent runs inside the loop after a non-terminal change (queued,
	// started, progress).
	OnEvent func(Task)

	Logger *slog.Logger
}

// Coordinator owns the download task table.
//
// Concurrency model: transfers run as independent goroutines, but all state
// (task table, batches, completion sequencing) is owned by one event-loop
// goroutine; public methods and transfer callbacks communicate with it
// through channels. No public method blocks on I/O.
type Coordinator struct {
	cfg Config
	sem *semaphore.Weighted

	enqueueCh   chan enqueueMsg
	startCh     chan startMsg
	progressCh  chan progressMsg
	doneCh      chan doneMsg
	cancelCh    chan cancelMsg
	cancelAllCh chan chan struct{}
	taskReqCh   chan taskMsg
	listReqCh   chan chan []Task
	batchNewCh  chan batchNewMsg
	batchGetCh  chan batchGetMsg

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

type enqueueMsg struct {
	req  Request
	resp chan Handle
}

type startMsg struct {
	id   string
	resp chan bool
}

type progressMsg struct {
	id    string
	bytes int64
}

type doneMsg struct {
	id  string
	err error
}

type cancelMsg struct {
	id string
}

type taskMsg struct {
	id   string
	resp chan taskResp
}

type taskResp struct {
	task Task
	ok   bool
}

type batchNewMsg struct {
	total int
	resp  chan string
}

type batchGetMsg struct {
	id   string
	resp chan batchResp
}

type batchResp struct {
	state BatchState
	ok    bool
}

// task is loop-owned mutable state for one download.
type task struct {
	key             string // lowercased canonical id
	req             Request
	status          Status
	bytes           int64
	message         string
	cancel          context.CancelFunc
	cancelRequested bool
}

type batch struct {
	id        string
	total     int
	completed int
	done      bool
}

// New creates a Coordinator and starts its event loop. It returns an error
// on invalid configuration.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("downloader: transport is required")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Coordinator{
		cfg:         cfg,
		sem:         semaphore.NewWeighted(cfg.MaxConcurrent),
		enqueueCh:   make(chan enqueueMsg),
		startCh:     make(chan startMsg),
		progressCh:  make(chan progressMsg, 256),
		doneCh:      make(chan doneMsg, 64),
		cancelCh:    make(chan cancelMsg),
		cancelAllCh: make(chan chan struct{}),
		taskReqCh:   make(chan taskMsg),
		listReqCh:   make(chan chan []Task),
		batchNewCh:  make(chan batchNewMsg),
		batchGetCh:  make(chan batchGetMsg),
		stopCh:      make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	go c.run()
	return c, nil
}

func (c *Coordinator) run() {
	defer close(c.stopped)

	tasks := make(map[string]*task)
	order := make([]string, 0, 16)
	batches := make(map[string]*batch)
	batchSeq := 0

	publish := func(typ events.Type, data any) {
		if c.cfg.Events != nil {
			c.cfg.Events.Publish(events.Event{Type: typ, Data: data})
		}
	}

	snapshot := func(t *task) Task {
		return Task{
			ID:               t.req.CanonicalID,
			SourceURL:        t.req.SourceURL,
			Destination:      t.req.Destination,
			ExpectedBytes:    t.req.ExpectedBytes,
			BytesTransferred: t.bytes,
			Status:           t.status,
			Message:          t.message,
			BatchID:          t.req.BatchID,
		}
	}

	notify := func(t *task) {
		if c.cfg.OnEvent != nil {
			c.cfg.OnEvent(snapshot(t))
		}
	}

	taskEvent := func(t *task) map[string]any {
		return map[string]any{
			"id":       t.req.CanonicalID,
			"bytes":    t.bytes,
			"expected": t.req.ExpectedBytes,
			"message":  t.message,
		}
	}

	// countBatch records one no-longer-pending task for a batch and fires
	// batch.complete exactly once when the last member finishes.
	countBatch := func(batchID string) {
		b, ok := batches[batchID]
		if !ok || b.done {
			return
		}
		b.completed++
		publish(events.BatchProgress, map[string]any{
			"id":        b.id,
			"completed": b.completed,
			"total":     b.total,
		})
		if b.completed >= b.total {
			b.done = true
			publish(events.BatchComplete, map[string]any{
				"id":        b.id,
				"completed": b.completed,
				"total":     b.total,
			})
		}
	}

	// finalize moves a task into a terminal state and runs the terminal
	// side effects. Calls on already-terminal tasks are dropped.
	finalize := func(t *task, status Status, message string) {
		if t.status.Terminal() {
			return
		}
		t.status = status
		t.message = message
		t.cancel()

		switch status {
		case StatusCompleted:
			// Serialized completion sequence: library index rebuild and
			// retention run via the hook before the completed event goes out.
			if c.cfg.OnCompleted != nil {
				c.cfg.OnCompleted(snapshot(t))
			}
			publish(events.TaskCompleted, taskEvent(t))
		case StatusFailed:
			publish(events.TaskFailed, taskEvent(t))
		case StatusCancelled:
			publish(events.TaskCancelled, taskEvent(t))
		}

		if c.cfg.OnFinished != nil {
			c.cfg.OnFinished(snapshot(t))
		}
		countBatch(t.req.BatchID)
	}

	cancelOne := func(t *task) {
		switch t.status {
		case StatusQueued:
			// Never started; finalize immediately.
			finalize(t, StatusCancelled, "cancelled before start")
		case StatusDownloading:
			// Cooperative: signal the transfer and finalize on its doneMsg.
			t.cancelRequested = true
			t.cancel()
		}
	}

	for {
		select {
		case <-c.stopCh:
			for _, t := range tasks {
				t.cancel()
			}
			return

		case msg := <-c.enqueueCh:
			key := strings.ToLower(msg.req.CanonicalID)
			if existing, ok := tasks[key]; ok && !existing.status.Terminal() {
				// De-duplication: the caller gets the active task's handle.
				// From the incoming batch's perspective this slot is already
				// no longer pending — even when it is the batch the active
				// task itself counts toward, since that task fills only one
				// of the batch's declared slots.
				if msg.req.BatchID != "" {
					countBatch(msg.req.BatchID)
				}
				msg.resp <- Handle{id: existing.req.CanonicalID, c: c}
				continue
			}

			ctx, cancel := context.WithCancel(context.Background())
			t := &task{
				key:    key,
				req:    msg.req,
				status: StatusQueued,
				cancel: cancel,
			}
			if _, seen := tasks[key]; !seen {
				order = append(order, key)
			}
			tasks[key] = t
			publish(events.TaskQueued, taskEvent(t))
			notify(t)
			go c.transfer(ctx, t.req)
			msg.resp <- Handle{id: t.req.CanonicalID, c: c}

		case msg := <-c.startCh:
			t, ok := tasks[msg.id]
			if !ok || t.status != StatusQueued {
				msg.resp <- false
				continue
			}
			t.status = StatusDownloading
			publish(events.TaskStarted, taskEvent(t))
			notify(t)
			msg.resp <- true

		case msg := <-c.progressCh:
			t, ok := tasks[msg.id]
			if !ok || t.status != StatusDownloading {
				continue // post-terminal progress is dropped silently
			}
			if msg.bytes <= t.bytes {
				continue // enforce monotonic non-decreasing progress
			}
			t.bytes = msg.bytes
			publish(events.TaskProgress, taskEvent(t))
			notify(t)

		case msg := <-c.doneCh:
			t, ok := tasks[msg.id]
			if !ok || t.status.Terminal() {
				continue
			}
			switch {
			case msg.err == nil:
				finalize(t, StatusCompleted, "")
			case t.cancelRequested || errors.Is(msg.err, context.Canceled):
				finalize(t, StatusCancelled, "cancelled")
			default:
				finalize(t, StatusFailed, msg.err.Error())
			}

		case msg := <-c.cancelCh:
			if t, ok := tasks[strings.ToLower(msg.id)]; ok {
				cancelOne(t)
			}

		case resp := <-c.cancelAllCh:
			for _, t := range tasks {
				cancelOne(t)
			}
			resp <- struct{}{}

		case msg := <-c.taskReqCh:
			if t, ok := tasks[strings.ToLower(msg.id)]; ok {
				msg.resp <- taskResp{task: snapshot(t), ok: true}
			} else {
				msg.resp <- taskResp{}
			}

		case resp := <-c.listReqCh:
			out := make([]Task, 0, len(order))
			for _, key := range order {
				out = append(out, snapshot(tasks[key]))
			}
			resp <- out

		case msg := <-c.batchNewCh:
			batchSeq++
			b := &batch{id: "batch-" + strconv.Itoa(batchSeq), total: msg.total}
			if b.total <= 0 {
				b.done = true
			}
			batches[b.id] = b
			msg.resp <- b.id

		case msg := <-c.batchGetCh:
			if b, ok := batches[msg.id]; ok {
				msg.resp <- batchResp{state: BatchState{
					ID:        b.id,
					Total:     b.total,
					Completed: b.completed,
					Done:      b.done,
				}, ok: true}
			} else {
				msg.resp <- batchResp{}
			}
		}
	}
}

// transfer runs outside the loop: it waits for a concurrency slot, asks the
// loop for permission to start, performs the fetch, and reports the result.
// All shared state stays loop-owned.
func (c *Coordinator) transfer(ctx context.Context, req Request) {
	key := strings.ToLower(req.CanonicalID)

	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.sendDone(key, err)
		return
	}
	defer c.sem.Release(1)

	if !c.requestStart(key) {
		// Cancelled while queued; the loop already finalized the task.
		return
	}

	err := c.cfg.Transport.Fetch(ctx, req.SourceURL, req.Destination, req.SHA256, func(bytes int64) {
		select {
		case c.progressCh <- progressMsg{id: key, bytes: bytes}:
		default:
			// Progress channel full: drop. The next callback carries a
			// larger cumulative count, so nothing is lost.
		}
	})

	c.sendDone(key, err)
}

func (c *Coordinator) requestStart(id string) bool {
	resp := make(chan bool, 1)
	select {
	case c.startCh <- startMsg{id: id, resp: resp}:
	case <-c.stopped:
		return false
	}
	select {
	case ok := <-resp:
		return ok
	case <-c.stopped:
		return false
	}
}

func (c *Coordinator) sendDone(id string, err error) {
	select {
	case c.doneCh <- doneMsg{id: id, err: err}:
	case <-c.stopped:
	}
}

// Enqueue registers a download. If a task with the same canonical id is
// already queued or downloading, the existing task's handle is returned and
// no second transfer starts.
func (c *Coordinator) Enqueue(req Request) Handle {
	if c.closed.Load() {
		return Handle{id: req.CanonicalID, c: c}
	}
	resp := make(chan Handle, 1)
	select {
	case c.enqueueCh <- enqueueMsg{req: req, resp: resp}:
	case <-c.stopped:
		return Handle{id: req.CanonicalID, c: c}
	}
	select {
	case h := <-resp:
		return h
	case <-c.stopped:
		return Handle{id: req.CanonicalID, c: c}
	}
}

// Cancel requests cancellation of the task with the given canonical id.
// A queued task is cancelled immediately; a downloading task finalizes once
// the transfer observes its cancellation signal.
func (c *Coordinator) Cancel(id string) {
	if c.closed.Load() {
		return
	}
	select {
	case c.cancelCh <- cancelMsg{id: id}:
	case <-c.stopped:
	}
}

// CancelAll cancels every non-terminal task.
func (c *Coordinator) CancelAll() {
	if c.closed.Load() {
		return
	}
	resp := make(chan struct{}, 1)
	select {
	case c.cancelAllCh <- resp:
	case <-c.stopped:
		return
	}
	select {
	case <-resp:
	case <-c.stopped:
	}
}

// Task returns a snapshot of the task with the given canonical id.
func (c *Coordinator) Task(id string) (Task, bool) {
	if c.closed.Load() {
		return Task{}, false
	}
	resp := make(chan taskResp, 1)
	select {
	case c.taskReqCh <- taskMsg{id: id, resp: resp}:
	case <-c.stopped:
		return Task{}, false
	}
	select {
	case r := <-resp:
		return r.task, r.ok
	case <-c.stopped:
		return Task{}, false
	}
}

// Tasks returns snapshots of all tasks in enqueue order.
func (c *Coordinator) Tasks() []Task {
	if c.closed.Load() {
		return nil
	}
	resp := make(chan []Task, 1)
	select {
	case c.listReqCh <- resp:
	case <-c.stopped:
		return nil
	}
	select {
	case out := <-resp:
		return out
	case <-c.stopped:
		return nil
	}
}

// NewBatch registers a batch of the given declared size and returns its id.
func (c *Coordinator) NewBatch(total int) string {
	if c.closed.Load() {
		return ""
	}
	resp := make(chan string, 1)
	select {
	case c.batchNewCh <- batchNewMsg{total: total, resp: resp}:
	case <-c.stopped:
		return ""
	}
	select {
	case id := <-resp:
		return id
	case <-c.stopped:
		return ""
	}
}

// Batch returns the state of a batch.
func (c *Coordinator) Batch(id string) (BatchState, bool) {
	if c.closed.Load() {
		return BatchState{}, false
	}
	resp := make(chan batchResp, 1)
	select {
	case c.batchGetCh <- batchGetMsg{id: id, resp: resp}:
	case <-c.stopped:
		return BatchState{}, false
	}
	select {
	case r := <-resp:
		return r.state, r.ok
	case <-c.stopped:
		return BatchState{}, false
	}
}

// Close stops the event loop and signals cancellation to in-flight
// transfers. It does not wait for them to unwind.
func (c *Coordinator) Close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.stopCh)
	}
	<-c.stopped
}
