package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voyagen/vaulttv/internal/events"
	"github.com/voyagen/vaulttv/internal/models"
)

var errMissing = errors.New("missing")

type channelStub struct {
	mu      sync.Mutex
	touched []string
}

func (c *channelStub) GetChannel(_ context.Context, id string) (*models.Channel, error) {
	if id == "missing" {
		return nil, errMissing
	}
	return &models.Channel{ID: id, StreamURL: "http://s/" + id}, nil
}

func (c *channelStub) TouchLastWatched(_ context.Context, id string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touched = append(c.touched, id)
	return nil
}

type pubStub struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *pubStub) Publish(e events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func TestManager(t *testing.T) {
	ctx := context.Background()
	cs := &channelStub{}
	pub := &pubStub{}
	m := NewManager(cs, EventLoader{Publisher: pub}, WithScheduler(&manualScheduler{}))

	sess, err := m.Open(ctx, "c1", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := m.Get(sess.ID()); err != nil || got != sess {
		t.Fatalf("Get = %v, %v", got, err)
	}
	if len(pub.events) != 1 || pub.events[0].Type != events.PlaybackLoad || pub.events[0].SessionID != sess.ID() {
		t.Errorf("events = %+v", pub.events)
	}

	if _, err := m.SelectChannel(ctx, sess.ID(), "c2", nil); err != nil {
		t.Fatal(err)
	}
	if snap := sess.Snapshot(); snap.ChannelID != "c2" {
		t.Errorf("channel = %s", snap.ChannelID)
	}
	if len(cs.touched) != 2 || cs.touched[1] != "c2" {
		t.Errorf("touched = %v", cs.touched)
	}

	if _, err := m.Open(ctx, "missing", nil); !errors.Is(err, errMissing) {
		t.Errorf("Open(missing) = %v", err)
	}
	if err := m.Close(sess.ID()); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get after close = %v", err)
	}
	if err := m.Close(sess.ID()); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("second Close = %v", err)
	}
}
