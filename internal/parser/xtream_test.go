package parser

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/voyagen/vaulttv/internal/models"
)

const liveStreamsJSON = `[
	{"num": 1, "name": "BBC One", "stream_type": "live", "stream_id": 101, "stream_icon": "http://logo/bbc.png", "epg_channel_id": "bbc1.uk", "category_id": "7"},
	{"num": "2", "name": "ITV", "stream_type": "live", "stream_id": "102", "stream_icon": "", "epg_channel_id": null, "category_id": 9},
	{"num": 3, "name": "Broken", "stream_type": "live", "stream_id": null, "category_id": "7"},
	{"num": 4, "name": "Clip", "stream_type": "created_live", "stream_id": 103}
]`

func TestParseXtreamChannels(t *testing.T) {
	var raw []XtreamStream
	if err := json.Unmarshal([]byte(liveStreamsJSON), &raw); err != nil {
		t.Fatal(err)
	}
	names := CategoryNames([]XtreamCategory{{CategoryID: "7", CategoryName: "UK"}})

	got := ParseXtreamChannels(raw, "p", "http://host:8080/u/pw/", names, testNow)
	if len(got) != 3 {
		t.Fatalf("got %d channels, want 3 (entry without stream_id is skipped)", len(got))
	}

	bbc := got[0]
	if bbc.ID != "p_101" || bbc.StreamURL != "http://host:8080/u/pw/101.m3u8" {
		t.Errorf("bbc = id %q url %q", bbc.ID, bbc.StreamURL)
	}
	if bbc.GroupTitle != "UK" || bbc.StreamType != models.StreamLive {
		t.Errorf("bbc group %q type %q", bbc.GroupTitle, bbc.StreamType)
	}
	if bbc.EPGID == nil || *bbc.EPGID != "bbc1.uk" || bbc.Number == nil || *bbc.Number != 1 {
		t.Errorf("bbc epg/number = %v/%v", bbc.EPGID, bbc.Number)
	}

	itv := got[1]
	if itv.GroupTitle != "9" {
		t.Errorf("unknown category should fall back to id, got %q", itv.GroupTitle)
	}
	if itv.LogoURL != nil || itv.EPGID != nil {
		t.Errorf("empty upstream fields should be nil: logo %v epg %v", itv.LogoURL, itv.EPGID)
	}
	if itv.Number == nil || *itv.Number != 2 {
		t.Errorf("quoted num should decode, got %v", itv.Number)
	}

	if got[2].GroupTitle != models.DefaultGroupTitle {
		t.Errorf("missing category: group %q", got[2].GroupTitle)
	}
}

func TestParseXtreamVOD(t *testing.T) {
	raw := []XtreamStream{{StreamID: "55", Name: "Heat", StreamType: "movie"}}
	got := ParseXtreamVOD(raw, "p", "https://h:443/u/pw", nil, testNow)
	if len(got) != 1 {
		t.Fatalf("got %d", len(got))
	}
	if got[0].ID != "p_vod_55" || got[0].StreamURL != "https://h:443/u/pw/movie/55.mp4" {
		t.Errorf("vod = %+v", got[0])
	}
	if got[0].StreamType != models.StreamMovie || got[0].GroupTitle != "Movies" {
		t.Errorf("vod type %q group %q", got[0].StreamType, got[0].GroupTitle)
	}
}

func TestXtreamStreamType(t *testing.T) {
	for tag, want := range map[string]models.StreamType{
		"live":   models.StreamLive,
		"movie":  models.StreamMovie,
		"series": models.StreamSeries,
		"":       models.StreamSeries,
	} {
		if got := XtreamStreamType(tag); got != want {
			t.Errorf("XtreamStreamType(%q) = %q, want %q", tag, got, want)
		}
	}
}

func TestXtreamAuthDecode(t *testing.T) {
	tests := []struct {
		body string
		ok   bool
		port string
	}{
		{`{"user_info":{"auth":1},"server_info":{"port":"8080","server_protocol":"http"}}`, true, "8080"},
		{`{"user_info":{"auth":"1"},"server_info":{"port":80}}`, true, "80"},
		{`{"user_info":{"auth":0}}`, false, ""},
		{`{"user_info":{"auth":true}}`, true, ""},
	}
	for _, tt := range tests {
		var a XtreamAuth
		if err := json.Unmarshal([]byte(tt.body), &a); err != nil {
			t.Fatalf("%s: %v", tt.body, err)
		}
		if a.Authenticated() != tt.ok || string(a.ServerInfo.Port) != tt.port {
			t.Errorf("%s: auth=%v port=%q", tt.body, a.Authenticated(), a.ServerInfo.Port)
		}
	}
}

func TestXtreamCategories(t *testing.T) {
	live := []XtreamCategory{{CategoryID: "1", CategoryName: "News"}, {CategoryID: "2", CategoryName: "Sport"}}
	vod := []XtreamCategory{{CategoryID: "1", CategoryName: "Action"}}
	liveStreams := []XtreamStream{{StreamID: "a", CategoryID: "1"}, {StreamID: "b", CategoryID: "1"}}
	vodStreams := []XtreamStream{{StreamID: "c", CategoryID: "1"}}

	cats := XtreamCategories("p", live, vod, liveStreams, vodStreams)
	if len(cats) != 3 {
		t.Fatalf("got %d categories", len(cats))
	}
	if cats[0].ID != "p_live_1" || cats[0].ChannelCount != 2 || cats[1].ChannelCount != 0 {
		t.Errorf("live categories = %+v", cats[:2])
	}
	if cats[2].ID != "p_vod_1" || cats[2].Type != models.StreamMovie || cats[2].ChannelCount != 1 {
		t.Errorf("vod category = %+v", cats[2])
	}
}

func TestParseXMLTV(t *testing.T) {
	doc := `<?xml version="1.0"?>
<tv>
  <programme start="20260101120000 +0000" stop="20260101130000 +0000" channel="bbc1.uk">
    <title>News at Noon</title><desc>Headlines</desc>
  </programme>
  <programme start="bad" stop="20260101130000 +0000" channel="bbc1.uk"><title>x</title></programme>
</tv>`
	progs, issues, err := ParseXMLTV(strings.NewReader(doc), "p")
	if err != nil {
		t.Fatal(err)
	}
	if len(progs) != 1 || len(issues) != 1 {
		t.Fatalf("programs=%d issues=%d", len(progs), len(issues))
	}
	if progs[0].Title != "News at Noon" || progs[0].End.Sub(progs[0].Start).Hours() != 1 {
		t.Errorf("program = %+v", progs[0])
	}
}

func TestParseAddonManifest(t *testing.T) {
	m, err := ParseAddonManifest([]byte(`{"id":"org.demo","name":" Demo ","version":"1.0.0"}`))
	if err != nil || m.Name != "Demo" {
		t.Fatalf("manifest = %+v, err %v", m, err)
	}
	if _, err := ParseAddonManifest([]byte(`{"id":"x"}`)); err == nil {
		t.Error("expected error for manifest without name")
	}
}
