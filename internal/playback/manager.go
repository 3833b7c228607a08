package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/voyagen/vaulttv/internal/events"
	"github.com/voyagen/vaulttv/internal/metrics"
	"github.com/voyagen/vaulttv/internal/models"
)

// ChannelStore is the store subset sessions need.
type ChannelStore interface {
	GetChannel(ctx context.Context, id string) (*models.Channel, error)
	TouchLastWatched(ctx context.Context, id string, at time.Time) error
}

// Manager owns independent playback sessions keyed by id.
type Manager struct {
	store  ChannelStore
	loader Loader
	opts   []SessionOption
	now    func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	log      *logrus.Entry
}

// NewManager returns a Manager whose sessions load through loader.
func NewManager(s ChannelStore, loader Loader, opts ...SessionOption) *Manager {
	return &Manager{
		store:    s,
		loader:   loader,
		opts:     opts,
		now:      time.Now,
		sessions: make(map[string]*Session),
		log:      logrus.WithField("component", "playback"),
	}
}

// Open creates a session playing channelID.
func (m *Manager) Open(ctx context.Context, channelID string, backups []models.StreamSource) (*Session, error) {
	ch, err := m.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", channelID, err)
	}
	sess := NewSession(uuid.NewString(), m.loader, m.opts...)

	m.mu.Lock()
	m.sessions[sess.ID()] = sess
	n := len(m.sessions)
	m.mu.Unlock()
	metrics.SetPlaybackSessions(n)

	sess.SelectChannel(*ch, backups)
	m.touch(ctx, ch.ID)
	return sess, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// SelectChannel switches session id to channelID.
func (m *Manager) SelectChannel(ctx context.Context, id, channelID string, backups []models.StreamSource) (*Session, error) {
	sess, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	ch, err := m.store.GetChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", channelID, err)
	}
	sess.SelectChannel(*ch, backups)
	m.touch(ctx, ch.ID)
	return sess, nil
}

// Close stops and forgets session id.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	sess, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.Close()
	metrics.SetPlaybackSessions(n)
	return nil
}

// CloseAll stops every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, sess := range sessions {
		sess.Close()
	}
	metrics.SetPlaybackSessions(0)
}

func (m *Manager) touch(ctx context.Context, channelID string) {
	if err := m.store.TouchLastWatched(ctx, channelID, m.now().UTC()); err != nil {
		m.log.WithError(err).WithField("channel_id", channelID).Warn("could not record last watched")
	}
}

// EventLoader forwards load requests to event stream clients, whose players
// do the actual loading.
type EventLoader struct {
	Publisher events.Publisher
}

func (l EventLoader) Load(sessionID string, src models.StreamSource) {
	l.Publisher.Publish(events.Event{
		Type:      events.PlaybackLoad,
		SessionID: sessionID,
		Data:      src,
		Time:      time.Now().UTC(),
	})
}
