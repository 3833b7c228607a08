// Package worker runs playlist parsing off the caller's goroutine. Callers
// talk to it only through Do: every request gets a correlation id, and the
// dispatcher goroutine, which alone owns the pending table, routes each
// result back to the caller that is waiting for it.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"github.com/voyagen/vaulttv/internal/metrics"
	"github.com/voyagen/vaulttv/internal/models"
	"github.com/voyagen/vaulttv/internal/parser"
)

var (
	// ErrWorkerUnavailable is returned when the task was never started or
	// has been closed. There is no synchronous fallback.
	ErrWorkerUnavailable = errors.New("parse worker unavailable")
	// ErrTimeout is returned when a request outlives Options.Timeout.
	ErrTimeout = errors.New("parse request timed out")
)

// Kind selects the parser a request runs.
type Kind int

const (
	KindM3U Kind = iota + 1
	KindXtreamLive
	KindXtreamVOD
)

func (k Kind) String() string {
	switch k {
	case KindM3U:
		return "m3u"
	case KindXtreamLive:
		return "xtream_live"
	case KindXtreamVOD:
		return "xtream_vod"
	default:
		return "unknown"
	}
}

// Request is one parse job. Text is used by KindM3U; Streams, StreamBaseURL
// and CategoryNames by the xtream kinds.
type Request struct {
	Kind          Kind
	ProviderID    string
	Text          string
	Streams       []parser.XtreamStream
	StreamBaseURL string
	CategoryNames map[string]string
	Now           time.Time
}

// Result is the parsed output of one request.
type Result struct {
	Channels []models.Channel
	Issues   []parser.ParseError
}

// Options tunes a Task.
type Options struct {
	Workers   int           // parallel parse goroutines, default 2
	QueueSize int           // buffered requests before Do blocks, default 64
	Timeout   time.Duration // per request, default 60s
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	return o
}

type envelope struct {
	id    uint64
	req   Request
	reply chan response
}

type response struct {
	id     uint64
	result Result
	err    error
}

// Task is the parsing worker. The zero value is unavailable; use New.
type Task struct {
	opts      Options
	pool      *ants.Pool
	requests  chan envelope
	results   chan response
	discards  chan uint64
	done      chan struct{}
	stopped   chan struct{}
	nextID    atomic.Uint64
	closeOnce sync.Once
	exec      func(Request) (Result, error)
}

// New starts a Task with its dispatcher and worker pool.
func New(opts Options) (*Task, error) {
	opts = opts.withDefaults()
	pool, err := ants.NewPool(opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("ants.NewPool: %w", err)
	}
	t := &Task{
		opts:     opts,
		pool:     pool,
		requests: make(chan envelope, opts.QueueSize),
		results:  make(chan response, opts.Workers),
		discards: make(chan uint64, opts.QueueSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		exec:     execute,
	}
	go t.run()
	return t, nil
}

// Close stops the dispatcher. Waiting callers get ErrWorkerUnavailable.
func (t *Task) Close() {
	if t == nil || t.done == nil {
		return
	}
	t.closeOnce.Do(func() {
		close(t.done)
		<-t.stopped
		t.pool.Release()
	})
}

func (t *Task) available() bool {
	if t == nil || t.done == nil {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Do sends req to the worker and waits for its result, the caller's
// context, or the request timeout, whichever comes first. An abandoned
// request is discarded by the dispatcher.
func (t *Task) Do(ctx context.Context, req Request) (Result, error) {
	if !t.available() {
		metrics.RecordParse(req.Kind.String(), "unavailable")
		return Result{}, ErrWorkerUnavailable
	}
	id := t.nextID.Add(1)
	reply := make(chan response, 1)

	select {
	case t.requests <- envelope{id: id, req: req, reply: reply}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case <-t.done:
		return Result{}, ErrWorkerUnavailable
	}

	timer := time.NewTimer(t.opts.Timeout)
	defer timer.Stop()
	select {
	case res := <-reply:
		if res.err != nil {
			metrics.RecordParse(req.Kind.String(), "error")
			return Result{}, res.err
		}
		metrics.RecordParse(req.Kind.String(), "ok")
		return res.result, nil
	case <-ctx.Done():
		t.discard(id)
		return Result{}, ctx.Err()
	case <-timer.C:
		t.discard(id)
		metrics.RecordParse(req.Kind.String(), "timeout")
		return Result{}, ErrTimeout
	case <-t.done:
		return Result{}, ErrWorkerUnavailable
	}
}

// ParseM3U parses an M3U playlist in the worker.
func (t *Task) ParseM3U(ctx context.Context, providerID, text string, now time.Time) (Result, error) {
	return t.Do(ctx, Request{Kind: KindM3U, ProviderID: providerID, Text: text, Now: now})
}

// ParseXtreamLive maps get_live_streams entries in the worker.
func (t *Task) ParseXtreamLive(ctx context.Context, providerID string, streams []parser.XtreamStream, baseURL string, names map[string]string, now time.Time) (Result, error) {
	return t.Do(ctx, Request{Kind: KindXtreamLive, ProviderID: providerID, Streams: streams, StreamBaseURL: baseURL, CategoryNames: names, Now: now})
}

// ParseXtreamVOD maps get_vod_streams entries in the worker.
func (t *Task) ParseXtreamVOD(ctx context.Context, providerID string, streams []parser.XtreamStream, baseURL string, names map[string]string, now time.Time) (Result, error) {
	return t.Do(ctx, Request{Kind: KindXtreamVOD, ProviderID: providerID, Streams: streams, StreamBaseURL: baseURL, CategoryNames: names, Now: now})
}

func (t *Task) discard(id uint64) {
	select {
	case t.discards <- id:
	case <-t.done:
	}
}

func (t *Task) run() {
	defer close(t.stopped)
	pending := make(map[uint64]chan response)
	var backlog []envelope
	inflight := 0

	for {
		select {
		case env := <-t.requests:
			pending[env.id] = env.reply
			backlog = append(backlog, env)
		case res := <-t.results:
			inflight--
			if reply, ok := pending[res.id]; ok {
				delete(pending, res.id)
				reply <- res
			}
		case id := <-t.discards:
			if _, ok := pending[id]; ok {
				logrus.WithField("request_id", id).Debug("worker: discarding abandoned request")
				delete(pending, id)
			}
		case <-t.done:
			for id, reply := range pending {
				reply <- response{id: id, err: ErrWorkerUnavailable}
			}
			return
		}
		backlog, inflight = t.submit(backlog, pending, inflight)
	}
}

// submit hands queued jobs to the pool while fewer than Workers results are
// outstanding, so a finishing job never blocks on the results channel. Jobs
// whose caller already went away are dropped without running.
func (t *Task) submit(backlog []envelope, pending map[uint64]chan response, inflight int) ([]envelope, int) {
	for len(backlog) > 0 && inflight < t.opts.Workers {
		env := backlog[0]
		backlog = backlog[1:]
		if _, ok := pending[env.id]; !ok {
			continue
		}
		err := t.pool.Submit(func() {
			result, err := safeExec(t.exec, env.req)
			t.results <- response{id: env.id, result: result, err: err}
		})
		if err != nil {
			delete(pending, env.id)
			env.reply <- response{id: env.id, err: fmt.Errorf("%w: %v", ErrWorkerUnavailable, err)}
			continue
		}
		inflight++
	}
	if len(backlog) == 0 {
		backlog = nil
	}
	return backlog, inflight
}

func safeExec(exec func(Request) (Result, error), req Request) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse %s panicked: %v", req.Kind, r)
		}
	}()
	return exec(req)
}

func execute(req Request) (res Result, err error) {
	switch req.Kind {
	case KindM3U:
		res.Channels, res.Issues = parser.ParseM3UReport(req.Text, req.ProviderID, req.Now)
	case KindXtreamLive:
		res.Channels = parser.ParseXtreamChannels(req.Streams, req.ProviderID, req.StreamBaseURL, req.CategoryNames, req.Now)
	case KindXtreamVOD:
		res.Channels = parser.ParseXtreamVOD(req.Streams, req.ProviderID, req.StreamBaseURL, req.CategoryNames, req.Now)
	default:
		return Result{}, fmt.Errorf("unknown parse kind %d", req.Kind)
	}
	return res, nil
}
