package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/voyagen/vaulttv/internal/config"
	"github.com/voyagen/vaulttv/internal/events"
	"github.com/voyagen/vaulttv/internal/fetcher"
	"github.com/voyagen/vaulttv/internal/models"
	"github.com/voyagen/vaulttv/internal/playback"
	"github.com/voyagen/vaulttv/internal/service"
	"github.com/voyagen/vaulttv/internal/store"
	"github.com/voyagen/vaulttv/internal/worker"
)

type staticAdapters struct{ fail error }

func (a staticAdapters) For(models.ProviderConfig) (fetcher.Adapter, error) { return a, nil }

func (a staticAdapters) Fetch(_ context.Context, id string) (*fetcher.Result, error) {
	if a.fail != nil {
		return nil, a.fail
	}
	epg := "news.1"
	return &fetcher.Result{
		Channels: []models.Channel{
			{ID: id + "_1", ProviderID: id, Name: "News", GroupTitle: "News", StreamURL: "http://x/1.m3u8", StreamType: models.StreamLive, EPGID: &epg, AddedAt: time.Now().UTC()},
			{ID: id + "_2", ProviderID: id, Name: "Film", GroupTitle: "Films", StreamURL: "http://x/2.mp4", StreamType: models.StreamMovie, AddedAt: time.Now().UTC()},
		},
		Categories: []models.Category{
			{ID: id + "_cat_News", ProviderID: id, Name: "News", Type: models.StreamLive, ChannelCount: 1},
			{ID: id + "_cat_Films", ProviderID: id, Name: "Films", Type: models.StreamMovie, ChannelCount: 1},
		},
		Programs: []models.Program{{
			ID: id + "_news", ProviderID: id, ChannelEPG: epg, Title: "Headlines",
			Start: time.Now().Add(-time.Minute).UTC(), End: time.Now().Add(time.Hour).UTC(),
		}},
	}, nil
}

type queued struct {
	mu  sync.Mutex
	ids []string
}

func (q *queued) Enqueue(_ context.Context, id string, mode service.Mode) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id+":"+string(mode))
	return nil
}

type noTimers struct{}

type noTimer struct{}

func (noTimer) Stop() bool { return true }

func (noTimers) AfterFunc(time.Duration, func()) playback.Timer { return noTimer{} }

func newTestServer(t *testing.T) (*Server, store.Store, *queued) {
	t.Helper()
	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "api.db")
	if err := store.RunMigrations(dbURL); err != nil {
		t.Fatal(err)
	}
	st, err := store.Open(context.Background(), dbURL)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })

	q := &queued{}
	coord := service.NewCoordinator(st, staticAdapters{}, nil)
	mgr := playback.NewManager(st, playback.LoaderFunc(func(string, models.StreamSource) {}), playback.WithScheduler(noTimers{}))
	srv := New(config.Default(), Deps{Store: st, Sync: coord, Jobs: q, Playback: mgr})
	return srv, st, q
}

func do(h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](rec *httptest.ResponseRecorder) T {
	var v T
	So(json.Unmarshal(rec.Body.Bytes(), &v), ShouldBeNil)
	return v
}

func TestProviderLifecycle(t *testing.T) {
	Convey("Given an API server backed by sqlite", t, func() {
		srv, _, q := newTestServer(t)
		h := srv.Handler()

		So(do(h, "GET", "/api/health", nil).Code, ShouldEqual, http.StatusOK)

		Convey("An invalid provider is rejected with 400", func() {
			rec := do(h, "POST", "/api/providers", map[string]string{"type": "m3u", "url": "ftp://nope"})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
			So(decode[APIError](rec).Detail, ShouldContainSubstring, "url")
			So(do(h, "POST", "/api/providers", map[string]string{"type": "dvb"}).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Adding a provider queues its first sync", func() {
			rec := do(h, "POST", "/api/providers", map[string]string{"type": "m3u", "url": "http://example.com/a.m3u", "name": "Home"})
			So(rec.Code, ShouldEqual, http.StatusCreated)
			p := decode[map[string]any](rec)
			id := p["id"].(string)
			So(p["name"], ShouldEqual, "Home")
			So(p["type"], ShouldEqual, "m3u")
			So(q.ids, ShouldResemble, []string{id + ":full"})

			Convey("A synchronous sync stores channels, categories and guide", func() {
				rec := do(h, "POST", "/api/providers/"+id+"/sync?mode=full", nil)
				So(rec.Code, ShouldEqual, http.StatusOK)
				res := decode[service.SyncResult](rec)
				So(res.ChannelCount, ShouldEqual, 2)
				So(res.Programs, ShouldEqual, 1)

				list := decode[struct {
					Channels []models.Channel `json:"channels"`
					Total    int              `json:"total"`
					Limit    int              `json:"limit"`
				}](do(h, "GET", "/api/channels?provider_id="+id+"&type=live", nil))
				So(list.Total, ShouldEqual, 1)
				So(list.Limit, ShouldEqual, 50)
				So(list.Channels[0].Name, ShouldEqual, "News")

				cats := decode[[]models.Category](do(h, "GET", "/api/categories?provider_id="+id, nil))
				So(cats, ShouldHaveLength, 2)

				fav := decode[map[string]any](do(h, "PATCH", "/api/channels/"+id+"_1/favorite", nil))
				So(fav["is_favorite"], ShouldEqual, true)
				fav = decode[map[string]any](do(h, "PATCH", "/api/channels/"+id+"_1/favorite", map[string]bool{"favorite": false}))
				So(fav["is_favorite"], ShouldEqual, false)

				epg := decode[map[string]any](do(h, "GET", "/api/channels/"+id+"_1/epg", nil))
				So(epg["current"], ShouldNotBeNil)

				stats := decode[store.Stats](do(h, "GET", "/api/stats", nil))
				So(stats.Providers, ShouldEqual, 1)
				So(stats.Channels, ShouldEqual, 2)

				Convey("Deleting the provider removes it", func() {
					So(do(h, "DELETE", "/api/providers/"+id, nil).Code, ShouldEqual, http.StatusNoContent)
					So(do(h, "GET", "/api/providers/"+id, nil).Code, ShouldEqual, http.StatusNotFound)
					So(do(h, "GET", "/api/channels/"+id+"_1", nil).Code, ShouldEqual, http.StatusNotFound)
				})
			})

			Convey("An async sync is queued", func() {
				rec := do(h, "POST", "/api/providers/"+id+"/sync?mode=delta&async=true", nil)
				So(rec.Code, ShouldEqual, http.StatusAccepted)
				So(q.ids, ShouldResemble, []string{id + ":full", id + ":delta"})
			})

			Convey("An unknown mode is rejected", func() {
				So(do(h, "POST", "/api/providers/"+id+"/sync?mode=partial", nil).Code, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("Unknown providers are reported as 404", func() {
			So(do(h, "POST", "/api/providers/nope/sync", nil).Code, ShouldEqual, http.StatusNotFound)
			So(do(h, "DELETE", "/api/providers/nope", nil).Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("Invalid query values are rejected", func() {
			So(do(h, "GET", "/api/channels?limit=many", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, "GET", "/api/channels?favorite=maybe", nil).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, "GET", "/api/categories?type=radio", nil).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Preferences merge onto defaults", func() {
			rec := do(h, "PUT", "/api/preferences", map[string]any{"theme": "light"})
			So(rec.Code, ShouldEqual, http.StatusOK)
			p := decode[models.Preferences](do(h, "GET", "/api/preferences", nil))
			So(p.Theme, ShouldEqual, "light")
			So(p.Language, ShouldEqual, "en")
		})
	})
}

func TestPlaybackEndpoints(t *testing.T) {
	Convey("Given a synced provider", t, func() {
		srv, st, _ := newTestServer(t)
		h := srv.Handler()
		ctx := context.Background()
		p, err := srv.deps.Sync.AddProvider(ctx, "", models.M3UConfig{URL: "http://example.com/a.m3u"})
		So(err, ShouldBeNil)
		_, err = srv.deps.Sync.Sync(ctx, p.ID, service.ModeFull)
		So(err, ShouldBeNil)

		rec := do(h, "POST", "/api/playback/sessions", map[string]any{
			"channel_id": p.ID + "_1",
			"backups":    []models.StreamSource{{URL: "http://backup/1.m3u8", Priority: 1}},
		})
		So(rec.Code, ShouldEqual, http.StatusCreated)
		snap := decode[map[string]any](rec)
		sid := snap["session_id"].(string)
		So(snap["state"], ShouldEqual, "retrying")
		So(snap["sources"], ShouldHaveLength, 2)

		ch, err := st.GetChannel(ctx, p.ID+"_1")
		So(err, ShouldBeNil)
		So(ch.LastWatched, ShouldNotBeNil)

		Convey("Errors escalate to the backup and then fail", func() {
			path := "/api/playback/sessions/" + sid
			for i := 0; i < 4; i++ {
				do(h, "POST", path+"/error", map[string]string{"code": "network", "message": "down"})
			}
			snap := decode[map[string]any](do(h, "GET", path, nil))
			So(snap["state"], ShouldEqual, "switching_source")
			So(snap["source_index"], ShouldEqual, float64(1))

			var last *httptest.ResponseRecorder
			for i := 0; i < 4; i++ {
				last = do(h, "POST", path+"/error", map[string]string{"code": "network", "message": "down"})
			}
			So(last.Header().Get("X-Stream-Failed"), ShouldEqual, "true")
			snap = decode[map[string]any](last)
			So(snap["state"], ShouldEqual, "failed")
			So(snap["failure"], ShouldContainSubstring, "3 retries")

			snap = decode[map[string]any](do(h, "POST", path+"/retry", nil))
			So(snap["state"], ShouldEqual, "retrying")
			So(snap["source_index"], ShouldEqual, float64(0))

			snap = decode[map[string]any](do(h, "POST", path+"/playing", nil))
			So(snap["state"], ShouldEqual, "playing")
		})

		Convey("Sessions switch channel and close", func() {
			path := "/api/playback/sessions/" + sid
			snap := decode[map[string]any](do(h, "PUT", path+"/channel", map[string]string{"channel_id": p.ID + "_2"}))
			So(snap["channel_id"], ShouldEqual, p.ID+"_2")
			So(do(h, "PUT", path+"/channel", map[string]string{"channel_id": "missing"}).Code, ShouldEqual, http.StatusNotFound)
			So(do(h, "DELETE", path, nil).Code, ShouldEqual, http.StatusNoContent)
			So(do(h, "GET", path, nil).Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&service.ProviderNotFoundError{ID: "x"}, http.StatusNotFound},
		{fmt.Errorf("get: %w", store.ErrNotFound), http.StatusNotFound},
		{playback.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("%w: bad", models.ErrInvalidConfig), http.StatusBadRequest},
		{badRequest("nope"), http.StatusBadRequest},
		{service.ErrSyncInProgress, http.StatusConflict},
		{&fetcher.FetchError{URL: "u", StatusCode: 500}, http.StatusBadGateway},
		{&fetcher.AuthenticationError{Err: errors.New("x")}, http.StatusBadGateway},
		{&fetcher.InvalidCredentialsError{}, http.StatusBadGateway},
		{worker.ErrWorkerUnavailable, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestDocsAndMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.Handler()
	for path, ctype := range map[string]string{
		"/api/docs":              "text/html",
		"/api/docs/openapi.yaml": "application/yaml",
		"/metrics":               "text/plain",
	} {
		rec := do(h, "GET", path, nil)
		if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), ctype) {
			t.Errorf("%s: %d %s", path, rec.Code, rec.Header().Get("Content-Type"))
		}
	}
	if rec := do(h, "OPTIONS", "/api/providers", nil); rec.Code != http.StatusNoContent || rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Errorf("preflight: %d", rec.Code)
	}
	if rec := do(h, "GET", "/api/events", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("events without hub: %d", rec.Code)
	}
}

func TestEventsThroughMiddleware(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := events.NewHub()
	go hub.Run(ctx)

	srv := New(config.Default(), Deps{Events: hub})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/events", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	go func() {
		for time.Now().Before(deadline) && ctx.Err() == nil {
			hub.Publish(events.Event{Type: events.SyncCompleted, ProviderID: "p"})
			time.Sleep(20 * time.Millisecond)
		}
	}()
	if _, msg, err := conn.ReadMessage(); err != nil || !strings.Contains(string(msg), events.SyncCompleted) {
		t.Fatalf("read %q, %v", msg, err)
	}
}
