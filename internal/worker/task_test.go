package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/voyagen/vaulttv/internal/parser"
)

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

const playlist = "#EXTINF:-1 group-title=\"News\",News One\nhttp://x/1.m3u8\n"

func TestTaskUnavailable(t *testing.T) {
	Convey("Given a task that was never started", t, func() {
		var task Task
		_, err := task.ParseM3U(context.Background(), "p", playlist, testNow)
		So(errors.Is(err, ErrWorkerUnavailable), ShouldBeTrue)

		var nilTask *Task
		_, err = nilTask.ParseM3U(context.Background(), "p", playlist, testNow)
		So(errors.Is(err, ErrWorkerUnavailable), ShouldBeTrue)
	})

	Convey("Given a closed task", t, func() {
		task, err := New(Options{})
		So(err, ShouldBeNil)
		task.Close()
		task.Close()

		_, err = task.ParseM3U(context.Background(), "p", playlist, testNow)
		So(errors.Is(err, ErrWorkerUnavailable), ShouldBeTrue)
	})
}

func TestTaskParse(t *testing.T) {
	Convey("Given a running task", t, func() {
		task, err := New(Options{Workers: 2})
		So(err, ShouldBeNil)
		defer task.Close()

		Convey("M3U text is parsed in the worker", func() {
			res, err := task.ParseM3U(context.Background(), "p", playlist, testNow)
			So(err, ShouldBeNil)
			So(res.Channels, ShouldResemble, parser.ParseM3U(playlist, "p", testNow))
		})

		Convey("Xtream live and VOD streams are mapped", func() {
			streams := []parser.XtreamStream{{StreamID: "7", Name: "Seven"}}
			live, err := task.ParseXtreamLive(context.Background(), "p", streams, "http://h:80/u/pw", nil, testNow)
			So(err, ShouldBeNil)
			So(live.Channels[0].ID, ShouldEqual, "p_7")

			vod, err := task.ParseXtreamVOD(context.Background(), "p", streams, "http://h:80/u/pw", nil, testNow)
			So(err, ShouldBeNil)
			So(vod.Channels[0].ID, ShouldEqual, "p_vod_7")
		})

		Convey("An unknown kind is an error for that request only", func() {
			_, err := task.Do(context.Background(), Request{Kind: Kind(99)})
			So(err, ShouldNotBeNil)
			_, err = task.ParseM3U(context.Background(), "p", playlist, testNow)
			So(err, ShouldBeNil)
		})
	})
}

func TestTaskMultiplexing(t *testing.T) {
	Convey("Given more concurrent requests than workers", t, func() {
		task, err := New(Options{Workers: 1, QueueSize: 4})
		So(err, ShouldBeNil)
		defer task.Close()

		const n = 25
		var wg sync.WaitGroup
		got := make([]string, n)
		errs := make([]error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				pid := fmt.Sprintf("p%d", i)
				res, err := task.ParseM3U(context.Background(), pid, playlist, testNow)
				errs[i] = err
				if err == nil && len(res.Channels) == 1 {
					got[i] = res.Channels[0].ProviderID
				}
			}(i)
		}
		wg.Wait()

		Convey("Each caller receives its own result", func() {
			for i := 0; i < n; i++ {
				So(errs[i], ShouldBeNil)
				So(got[i], ShouldEqual, fmt.Sprintf("p%d", i))
			}
		})
	})
}

func TestTaskAbandonedRequests(t *testing.T) {
	Convey("Given a worker whose jobs block until released", t, func() {
		task, err := New(Options{Workers: 1, Timeout: 50 * time.Millisecond})
		So(err, ShouldBeNil)
		defer task.Close()

		release := make(chan struct{})
		task.exec = func(req Request) (Result, error) {
			if req.ProviderID == "slow" {
				<-release
			}
			return execute(req)
		}

		Convey("A cancelled caller gets its context error", func() {
			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				time.Sleep(10 * time.Millisecond)
				cancel()
			}()
			_, err := task.ParseM3U(ctx, "slow", playlist, testNow)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
			close(release)

			Convey("And the task keeps serving later requests", func() {
				res, err := task.ParseM3U(context.Background(), "fast", playlist, testNow)
				So(err, ShouldBeNil)
				So(res.Channels, ShouldHaveLength, 1)
			})
		})

		Convey("A request that outlives the timeout fails with ErrTimeout", func() {
			_, err := task.ParseM3U(context.Background(), "slow", playlist, testNow)
			So(errors.Is(err, ErrTimeout), ShouldBeTrue)
			close(release)
		})
	})

	Convey("Given a parser that panics", t, func() {
		task, err := New(Options{})
		So(err, ShouldBeNil)
		defer task.Close()
		task.exec = func(Request) (Result, error) { panic("boom") }

		_, err = task.ParseM3U(context.Background(), "p", playlist, testNow)
		So(err, ShouldNotBeNil)
		So(err.Error(), ShouldContainSubstring, "panicked")
	})
}
