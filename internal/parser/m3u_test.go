package parser

import (
	"reflect"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/voyagen/vaulttv/internal/models"
)

var testNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestParseM3U(t *testing.T) {
	Convey("Given a one-entry playlist", t, func() {
		text := "#EXTINF:-1 tvg-name=\"News 1\" group-title=\"News\",News One\nhttp://x/1.m3u8"

		Convey("When it is parsed", func() {
			channels := ParseM3U(text, "p1", testNow)

			Convey("Then one live channel is produced", func() {
				So(channels, ShouldHaveLength, 1)
				ch := channels[0]
				So(ch.Name, ShouldEqual, "News 1")
				So(ch.GroupTitle, ShouldEqual, "News")
				So(ch.StreamType, ShouldEqual, models.StreamLive)
				So(ch.StreamURL, ShouldEqual, "http://x/1.m3u8")
				So(ch.ProviderID, ShouldEqual, "p1")
				So(ch.ID, ShouldEqual, M3UChannelID("p1", "http://x/1.m3u8"))
			})

			Convey("Then parsing again yields identical channels", func() {
				again := ParseM3U(text, "p1", testNow)
				So(reflect.DeepEqual(channels, again), ShouldBeTrue)
			})
		})
	})

	Convey("Given a playlist with missing and malformed fields", t, func() {
		text := "#EXTM3U\r\n" +
			"http://orphan/stream\r\n" +
			"#EXTINF:abc tvg-logo=\"http://logo/a.png\",Plain Title\r\n" +
			"#EXTVLCOPT:http-user-agent=foo\r\n" +
			"\r\n" +
			"http://a/vod/1.mp4\r\n" +
			"#EXTINF:-1 tvg-id=\"s.1\" group-title=\"Series Hub\",Episode Guide\r\n" +
			"http://b/2.ts\r\n" +
			"#EXTINF:-1\r\n"

		channels, issues := ParseM3UReport(text, "p", testNow)

		Convey("Then orphan URL lines are ignored", func() {
			So(channels, ShouldHaveLength, 2)
		})

		Convey("Then defaults are applied field by field", func() {
			first := channels[0]
			So(first.Name, ShouldEqual, "Plain Title")
			So(first.GroupTitle, ShouldEqual, models.DefaultGroupTitle)
			So(*first.LogoURL, ShouldEqual, "http://logo/a.png")
			So(first.StreamType, ShouldEqual, models.StreamMovie)
			So(first.EPGID, ShouldBeNil)
		})

		Convey("Then stream types are detected from url and group", func() {
			So(channels[1].StreamType, ShouldEqual, models.StreamSeries)
			So(*channels[1].EPGID, ShouldEqual, "s.1")
		})

		Convey("Then degradations are reported", func() {
			fields := map[string]bool{}
			for _, is := range issues {
				fields[is.Field] = true
			}
			So(fields["duration"], ShouldBeTrue)
			So(fields["url"], ShouldBeTrue)
		})
	})

	Convey("Given duplicate stream URLs", t, func() {
		text := "#EXTINF:-1,A\nhttp://dup\n#EXTINF:-1,B\nhttp://dup\n"
		channels := ParseM3U(text, "p", testNow)
		Convey("Then the first entry wins", func() {
			So(channels, ShouldHaveLength, 1)
			So(channels[0].Name, ShouldEqual, "A")
		})
	})
}

func TestParseM3UEntries_duration(t *testing.T) {
	tests := []struct {
		line string
		want int
	}{
		{"#EXTINF:-1,x", -1},
		{"#EXTINF:120 tvg-id=\"a\",x", 120},
		{"#EXTINF:10.5,x", 10},
		{"#EXTINF:NaN,x", -1},
		{"#EXTINF:inf,x", -1},
		{"#EXTINF:-Inf,x", -1},
		{"#EXTINF:1e30,x", -1},
		{"#EXTINF:99999999999999999999,x", -1},
		{"#EXTINF:oops,x", -1},
		{"#extinf:7,x", 7},
	}
	for _, tt := range tests {
		entries, _ := ParseM3UEntries(tt.line + "\nhttp://u\n")
		if len(entries) != 1 {
			t.Fatalf("%q: got %d entries", tt.line, len(entries))
		}
		if entries[0].Duration != tt.want {
			t.Errorf("%q: duration = %d, want %d", tt.line, entries[0].Duration, tt.want)
		}
	}
}

func TestParseM3UEntries_nonFiniteDurationReported(t *testing.T) {
	for _, d := range []string{"NaN", "inf", "1e30"} {
		_, issues := ParseM3UEntries("#EXTINF:" + d + ",x\nhttp://u\n")
		if len(issues) != 1 || issues[0].Field != "duration" {
			t.Errorf("%s: issues = %+v, want one duration issue", d, issues)
		}
	}
}

func TestDetectStreamType(t *testing.T) {
	tests := []struct {
		url, group string
		want       models.StreamType
	}{
		{"http://a/live/1.ts", "Sports", models.StreamLive},
		{"http://a/1.ts", "Films HD", models.StreamMovie},
		{"http://a/VOD/1", "", models.StreamMovie},
		{"http://a/1", "TV Series", models.StreamSeries},
		{"http://a/episode/3", "", models.StreamSeries},
		{"http://a/movie-series", "", models.StreamMovie},
	}
	for _, tt := range tests {
		if got := DetectStreamType(tt.url, tt.group); got != tt.want {
			t.Errorf("DetectStreamType(%q, %q) = %q, want %q", tt.url, tt.group, got, tt.want)
		}
	}
}

func TestM3UCategories(t *testing.T) {
	channels := ParseM3U("#EXTINF:-1 group-title=\"Kids TV\",A\nhttp://1\n#EXTINF:-1 group-title=\"News\",B\nhttp://2\n#EXTINF:-1 group-title=\"Kids TV\",C\nhttp://3\n", "p", testNow)
	cats := M3UCategories("p", channels)
	if len(cats) != 2 {
		t.Fatalf("got %d categories, want 2", len(cats))
	}
	if cats[0].ID != "p_cat_Kids_TV" || cats[0].ChannelCount != 2 {
		t.Errorf("cats[0] = %+v", cats[0])
	}
	if cats[1].Name != "News" || cats[1].ChannelCount != 1 {
		t.Errorf("cats[1] = %+v", cats[1])
	}
}

func TestM3UCategories_whitespaceVariantsMerge(t *testing.T) {
	channels := ParseM3U("#EXTINF:-1 group-title=\"A B\",1\nhttp://1\n#EXTINF:-1 group-title=\"A  B\",2\nhttp://2\n", "p", testNow)
	cats := M3UCategories("p", channels)
	if len(cats) != 1 {
		t.Fatalf("got %d categories, want 1: %+v", len(cats), cats)
	}
	if cats[0].ID != "p_cat_A_B" || cats[0].Name != "A B" || cats[0].ChannelCount != 2 {
		t.Errorf("cats[0] = %+v", cats[0])
	}
}
