package service

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/voyagen/vaulttv/internal/cache"
	"github.com/voyagen/vaulttv/internal/events"
	"github.com/voyagen/vaulttv/internal/fetcher"
	"github.com/voyagen/vaulttv/internal/models"
	"github.com/voyagen/vaulttv/internal/store"
)

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) store.Store {
	t.Helper()
	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "sync.db")
	if err := store.RunMigrations(dbURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s, err := store.Open(context.Background(), dbURL)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// fakeAdapters serves listings from fetch, regardless of config.
type fakeAdapters struct {
	fetch func(ctx context.Context, providerID string) (*fetcher.Result, error)
}

func (f *fakeAdapters) For(models.ProviderConfig) (fetcher.Adapter, error) { return f, nil }

func (f *fakeAdapters) Fetch(ctx context.Context, providerID string) (*fetcher.Result, error) {
	return f.fetch(ctx, providerID)
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) statuses(id string) []models.ProviderStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ProviderStatus
	for _, e := range r.events {
		if e.Type == events.ProviderStatus && e.ProviderID == id {
			out = append(out, e.Data.(map[string]any)["status"].(models.ProviderStatus))
		}
	}
	return out
}

func listing(providerID string, names ...string) *fetcher.Result {
	res := &fetcher.Result{}
	for _, n := range names {
		res.Channels = append(res.Channels, models.Channel{
			ID:         providerID + "_" + n,
			ProviderID: providerID,
			Name:       n,
			GroupTitle: "News",
			StreamURL:  "http://x/" + n + ".m3u8",
			StreamType: models.StreamLive,
			AddedAt:    t0,
		})
	}
	res.Categories = []models.Category{{
		ID: providerID + "_cat_News", ProviderID: providerID, Name: "News", Type: models.StreamLive, ChannelCount: len(names),
	}}
	return res
}

func channelIDs(ctx context.Context, s store.Store, id string) []string {
	chs, err := s.GetChannelsByProvider(ctx, id)
	So(err, ShouldBeNil)
	ids := make([]string, 0, len(chs))
	for _, ch := range chs {
		ids = append(ids, ch.ID)
	}
	sort.Strings(ids)
	return ids
}

func TestCoordinator(t *testing.T) {
	Convey("Given a coordinator over a sqlite store", t, func() {
		ctx := context.Background()
		s := newStore(t)
		rec := &recorder{}
		var next func(ctx context.Context, id string) (*fetcher.Result, error)
		adapters := &fakeAdapters{fetch: func(ctx context.Context, id string) (*fetcher.Result, error) { return next(ctx, id) }}
		c := NewCoordinator(s, adapters, rec, WithClock(func() time.Time { return t0 }))

		p, err := c.AddProvider(ctx, "", models.M3UConfig{URL: "http://example.com/list.m3u"})
		So(err, ShouldBeNil)
		So(p.Name, ShouldEqual, "M3U Playlist")
		So(p.Status, ShouldEqual, models.StatusSyncing)

		Convey("A full sync stores the listing and marks the provider active", func() {
			next = func(context.Context, string) (*fetcher.Result, error) { return listing(p.ID, "a", "b"), nil }
			res, err := c.FullSync(ctx, p.ID)
			So(err, ShouldBeNil)
			So(res.ChannelCount, ShouldEqual, 2)

			got, err := s.GetProvider(ctx, p.ID)
			So(err, ShouldBeNil)
			So(got.Status, ShouldEqual, models.StatusActive)
			So(got.ChannelCount, ShouldEqual, 2)
			So(got.LastSync, ShouldNotBeNil)
			So(channelIDs(ctx, s, p.ID), ShouldResemble, []string{p.ID + "_a", p.ID + "_b"})
			So(rec.statuses(p.ID), ShouldResemble, []models.ProviderStatus{models.StatusSyncing, models.StatusSyncing, models.StatusActive})

			Convey("A failing fetch leaves the stored data untouched", func() {
				before, err := s.GetChannelsByProvider(ctx, p.ID)
				So(err, ShouldBeNil)
				catsBefore, err := s.ListCategories(ctx, p.ID, nil)
				So(err, ShouldBeNil)

				next = func(context.Context, string) (*fetcher.Result, error) {
					return nil, &fetcher.FetchError{URL: "http://example.com/list.m3u", StatusCode: 503}
				}
				_, err = c.FullSync(ctx, p.ID)
				var fe *fetcher.FetchError
				So(errors.As(err, &fe), ShouldBeTrue)

				after, err := s.GetChannelsByProvider(ctx, p.ID)
				So(err, ShouldBeNil)
				So(after, ShouldResemble, before)
				catsAfter, err := s.ListCategories(ctx, p.ID, nil)
				So(err, ShouldBeNil)
				So(catsAfter, ShouldResemble, catsBefore)

				got, err := s.GetProvider(ctx, p.ID)
				So(err, ShouldBeNil)
				So(got.Status, ShouldEqual, models.StatusError)
				So(got.LastError, ShouldNotBeNil)
				So(*got.LastError, ShouldContainSubstring, "503")
			})

			Convey("A delta sync adds and removes by id only", func() {
				fresh := listing(p.ID, "b", "c")
				fresh.Channels[0].Name = "renamed"
				next = func(context.Context, string) (*fetcher.Result, error) { return fresh, nil }

				res, err := c.DeltaSync(ctx, p.ID)
				So(err, ShouldBeNil)
				So(res.Added, ShouldEqual, 1)
				So(res.Removed, ShouldEqual, 1)
				So(res.ChannelCount, ShouldEqual, 2)
				So(channelIDs(ctx, s, p.ID), ShouldResemble, []string{p.ID + "_b", p.ID + "_c"})

				b, err := s.GetChannel(ctx, p.ID+"_b")
				So(err, ShouldBeNil)
				So(b.Name, ShouldEqual, "b")
			})
		})

		Convey("Removing a provider mid-sync discards the sync's result", func() {
			started := make(chan struct{})
			release := make(chan struct{})
			next = func(context.Context, string) (*fetcher.Result, error) {
				close(started)
				<-release
				return listing(p.ID, "a"), nil
			}
			errc := make(chan error, 1)
			go func() {
				_, err := c.FullSync(ctx, p.ID)
				errc <- err
			}()
			<-started

			Convey("and a second sync is rejected while the first is running", func() {
				_, err := c.FullSync(ctx, p.ID)
				So(err, ShouldEqual, ErrSyncInProgress)
				close(release)
				So(<-errc, ShouldBeNil)
			})

			Convey("and the late completion commits nothing", func() {
				So(c.RemoveProvider(ctx, p.ID), ShouldBeNil)
				close(release)
				err := <-errc
				var nf *ProviderNotFoundError
				So(errors.As(err, &nf), ShouldBeTrue)
				So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)

				_, err = s.GetProvider(ctx, p.ID)
				So(errors.Is(err, store.ErrNotFound), ShouldBeTrue)
				So(channelIDs(ctx, s, p.ID), ShouldBeEmpty)
				cats, err := s.ListCategories(ctx, p.ID, nil)
				So(err, ShouldBeNil)
				So(cats, ShouldBeEmpty)
			})
		})

		Convey("A sync locked by another process is rejected", func() {
			locked := NewCoordinator(s, adapters, nil, WithLocker(lockerFunc(func(context.Context, string) (func(), error) {
				return nil, cache.ErrLocked
			})))
			_, err := locked.FullSync(ctx, p.ID)
			So(err, ShouldEqual, ErrSyncInProgress)
		})

		Convey("Unknown ids report ProviderNotFoundError", func() {
			_, err := c.FullSync(ctx, "missing")
			var nf *ProviderNotFoundError
			So(errors.As(err, &nf), ShouldBeTrue)
			So(nf.ID, ShouldEqual, "missing")
			So(errors.Is(c.RemoveProvider(ctx, "missing"), store.ErrNotFound), ShouldBeTrue)
		})

		Convey("SyncAll syncs every provider and joins failures", func() {
			q, err := c.AddProvider(ctx, "second", models.M3UConfig{URL: "http://example.com/two.m3u"})
			So(err, ShouldBeNil)
			next = func(_ context.Context, id string) (*fetcher.Result, error) {
				if id == q.ID {
					return nil, errors.New("boom")
				}
				return listing(id, "a"), nil
			}
			results, err := c.SyncAll(ctx, ModeFull, 2)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, q.ID)
			So(results, ShouldHaveLength, 1)
			So(results[0].ProviderID, ShouldEqual, p.ID)
		})
	})

	Convey("AddProvider rejects an invalid config", t, func() {
		c := NewCoordinator(newStore(t), &fakeAdapters{}, nil)
		_, err := c.AddProvider(context.Background(), "x", models.XtreamConfig{ServerURL: "ftp://h"})
		So(errors.Is(err, models.ErrInvalidConfig), ShouldBeTrue)
		_, err = c.AddProvider(context.Background(), "x", nil)
		So(errors.Is(err, models.ErrInvalidConfig), ShouldBeTrue)
	})
}

type lockerFunc func(ctx context.Context, id string) (func(), error)

func (f lockerFunc) Lock(ctx context.Context, id string) (func(), error) { return f(ctx, id) }

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeFull, "full": ModeFull, "DELTA": ModeDelta} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("partial"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
