// Package playback keeps a selected stream playing: it retries the current
// source with a fixed delay and fails over to backup sources in priority
// order before giving up.
package playback

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/voyagen/vaulttv/internal/metrics"
	"github.com/voyagen/vaulttv/internal/models"
)

const (
	// MaxRetries is the number of reloads of one source before failover.
	MaxRetries = 3
	// RetryDelay separates reloads of the same source.
	RetryDelay = 1500 * time.Millisecond
)

// State is the failover state of a session.
type State int

const (
	StateIdle State = iota
	StatePlaying
	StateRetrying
	StateSwitchingSource
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StateRetrying:
		return "retrying"
	case StateSwitchingSource:
		return "switching_source"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Loader starts playback of src. It is called without the session lock
// held, so it may call back into the session.
type Loader interface {
	Load(sessionID string, src models.StreamSource)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(sessionID string, src models.StreamSource)

func (f LoaderFunc) Load(sessionID string, src models.StreamSource) { f(sessionID, src) }

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type wallScheduler struct{}

func (wallScheduler) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Snapshot is a copy of the session state.
type Snapshot struct {
	SessionID   string                `json:"session_id"`
	ChannelID   string                `json:"channel_id,omitempty"`
	State       State                 `json:"state"`
	RetryCount  int                   `json:"retry_count"`
	SourceIndex int                   `json:"source_index"`
	Sources     []models.StreamSource `json:"sources"`
	LastError   *models.PlaybackError `json:"last_error,omitempty"`
	Failure     *StreamFailedError    `json:"-"`
	Failed      string                `json:"failure,omitempty"`
}

// Current returns the active source, or false when none is selected.
func (s Snapshot) Current() (models.StreamSource, bool) {
	if s.SourceIndex < 0 || s.SourceIndex >= len(s.Sources) {
		return models.StreamSource{}, false
	}
	return s.Sources[s.SourceIndex], true
}

// Session is the failover state machine of one player. Every channel
// switch and manual retry starts a new generation; retry timers of older
// generations do nothing when they fire.
type Session struct {
	id     string
	loader Loader
	sched  Scheduler
	now    func() time.Time

	mu      sync.Mutex
	channel *models.Channel
	sources []models.StreamSource
	index   int
	retries int
	state   State
	lastErr *models.PlaybackError
	failure *StreamFailedError
	gen     uint64
	timer   Timer
	closed  bool

	log *logrus.Entry
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithScheduler replaces time.AfterFunc.
func WithScheduler(s Scheduler) SessionOption {
	return func(sess *Session) { sess.sched = s }
}

// WithNow replaces the clock used for error timestamps.
func WithNow(now func() time.Time) SessionOption {
	return func(sess *Session) { sess.now = now }
}

// NewSession returns an idle session that loads sources through loader.
func NewSession(id string, loader Loader, opts ...SessionOption) *Session {
	s := &Session{
		id:     id,
		loader: loader,
		sched:  wallScheduler{},
		now:    time.Now,
		log:    logrus.WithFields(logrus.Fields{"component": "playback", "session_id": id}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Sources builds the ranked source list of ch: its own stream URL as the
// primary, then backups ordered by priority.
func Sources(ch models.Channel, backups []models.StreamSource) []models.StreamSource {
	out := make([]models.StreamSource, 0, len(backups)+1)
	out = append(out, models.StreamSource{URL: ch.StreamURL, Priority: 0, Kind: models.SourcePrimary})
	rest := make([]models.StreamSource, 0, len(backups))
	for _, b := range backups {
		if b.URL == "" || b.URL == ch.StreamURL {
			continue
		}
		if b.Priority <= 0 {
			b.Priority = 1
		}
		if b.Kind == "" {
			b.Kind = models.SourceBackup
		}
		b.ErrorCount, b.LastError = 0, nil
		rest = append(rest, b)
	}
	sort.SliceStable(rest, func(i, j int) bool { return rest[i].Priority < rest[j].Priority })
	return append(out, rest...)
}

// SelectChannel switches to ch and loads its primary source. Any pending
// retry of the previous channel is cancelled.
func (s *Session) SelectChannel(ch models.Channel, backups []models.StreamSource) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	c := ch
	s.channel = &c
	s.sources = Sources(ch, backups)
	src := s.restartLocked()
	s.mu.Unlock()

	s.log.WithField("channel_id", ch.ID).Debug("channel selected")
	s.loader.Load(s.id, src)
}

// ManualRetry resets to the primary source and reloads it, from any state.
func (s *Session) ManualRetry() error {
	s.mu.Lock()
	if s.channel == nil || s.closed {
		s.mu.Unlock()
		return ErrNoChannel
	}
	src := s.restartLocked()
	s.mu.Unlock()

	s.log.Debug("manual retry")
	s.loader.Load(s.id, src)
	return nil
}

// restartLocked starts a new generation at Retrying(0) on source 0.
func (s *Session) restartLocked() models.StreamSource {
	s.stopTimerLocked()
	s.gen++
	s.index = 0
	s.retries = 0
	s.state = StateRetrying
	s.lastErr = nil
	s.failure = nil
	return s.sources[0]
}

// ReportPlaying marks the current source as playing. The retry count is
// kept, so a flapping source still escalates.
func (s *Session) ReportPlaying() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel == nil || s.state == StateFailed {
		return
	}
	s.state = StatePlaying
}

// HandleError feeds a stream error into the state machine. It retries the
// current source up to MaxRetries times, then advances to the next source,
// then fails. Errors in the failed state are ignored.
func (s *Session) HandleError(code, message string) {
	s.mu.Lock()
	if s.channel == nil || s.closed || s.state == StateFailed {
		s.mu.Unlock()
		return
	}
	now := s.now().UTC()
	cur := &s.sources[s.index]
	cur.ErrorCount++
	cur.LastError = &now

	log := s.log.WithFields(logrus.Fields{"channel_id": s.channel.ID, "source": s.index, "code": code})
	var load *models.StreamSource

	switch {
	case s.retries < MaxRetries:
		s.retries++
		s.state = StateRetrying
		gen := s.gen
		s.stopTimerLocked()
		s.timer = s.sched.AfterFunc(RetryDelay, func() { s.fireRetry(gen) })
		metrics.RecordPlaybackRetry()
		log.WithField("retry", s.retries).Debug("retrying source")
	case s.index+1 < len(s.sources):
		s.stopTimerLocked()
		s.retries = 0
		s.index++
		s.state = StateSwitchingSource
		next := s.sources[s.index]
		load = &next
		metrics.RecordPlaybackFailover()
		log.WithField("next", s.index).Info("switching source")
	default:
		s.stopTimerLocked()
		s.state = StateFailed
		s.failure = &StreamFailedError{Message: message, RetryCount: s.retries}
		metrics.RecordPlaybackFailure()
		log.Warn("all sources failed")
	}
	s.lastErr = &models.PlaybackError{Code: code, Message: message, RetryCount: s.retries, Timestamp: now}
	s.mu.Unlock()

	if load != nil {
		s.loader.Load(s.id, *load)
	}
}

func (s *Session) fireRetry(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.closed || s.state != StateRetrying {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	src := s.sources[s.index]
	s.mu.Unlock()

	s.loader.Load(s.id, src)
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Close stops pending retries; the session ignores all further input.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.gen++
	s.closed = true
}

// Err returns the terminal error once the session has failed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure == nil {
		return nil
	}
	return s.failure
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		SessionID:   s.id,
		State:       s.state,
		RetryCount:  s.retries,
		SourceIndex: s.index,
		Sources:     append([]models.StreamSource(nil), s.sources...),
	}
	if s.channel != nil {
		snap.ChannelID = s.channel.ID
	}
	if s.lastErr != nil {
		e := *s.lastErr
		snap.LastError = &e
	}
	if s.failure != nil {
		f := *s.failure
		snap.Failure = &f
		snap.Failed = f.Error()
	}
	if snap.Sources == nil {
		snap.Sources = []models.StreamSource{}
	}
	return snap
}
