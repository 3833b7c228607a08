package parser

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/voyagen/vaulttv/internal/models"
)

// FlexString decodes a JSON string, number or bool into a string. Panels are
// inconsistent about quoting ids and ports.
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(strings.TrimSpace(s))
		return nil
	}
	*f = FlexString(string(b))
	return nil
}

// FlexInt decodes a JSON number, numeric string or bool. Anything else
// decodes to 0.
type FlexInt int

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	var s FlexString
	if err := s.UnmarshalJSON(b); err != nil {
		*f = 0
		return nil
	}
	switch str := string(s); str {
	case "true":
		*f = 1
	case "false", "":
		*f = 0
	default:
		n, err := strconv.ParseFloat(str, 64)
		if err != nil {
			*f = 0
			return nil
		}
		*f = FlexInt(n)
	}
	return nil
}

// XtreamAuth is the player_api.php response without an action.
type XtreamAuth struct {
	UserInfo struct {
		Username       string     `json:"username"`
		Auth           FlexInt    `json:"auth"`
		Status         string     `json:"status"`
		Message        string     `json:"message"`
		ExpDate        FlexString `json:"exp_date"`
		MaxConnections FlexString `json:"max_connections"`
		ActiveCons     FlexString `json:"active_cons"`
	} `json:"user_info"`
	ServerInfo struct {
		URL            string     `json:"url"`
		Port           FlexString `json:"port"`
		HTTPSPort      FlexString `json:"https_port"`
		ServerProtocol string     `json:"server_protocol"`
		Timezone       string     `json:"timezone"`
	} `json:"server_info"`
}

// Authenticated reports whether the panel accepted the credentials.
func (a XtreamAuth) Authenticated() bool {
	return a.UserInfo.Auth == 1
}

// XtreamCategory is one entry of get_live_categories / get_vod_categories.
type XtreamCategory struct {
	CategoryID   FlexString `json:"category_id"`
	CategoryName FlexString `json:"category_name"`
	ParentID     FlexInt    `json:"parent_id"`
}

// XtreamStream is one entry of get_live_streams / get_vod_streams.
type XtreamStream struct {
	Num                FlexInt    `json:"num"`
	Name               FlexString `json:"name"`
	StreamType         string     `json:"stream_type"`
	StreamID           FlexString `json:"stream_id"`
	StreamIcon         string     `json:"stream_icon"`
	EPGChannelID       FlexString `json:"epg_channel_id"`
	CategoryID         FlexString `json:"category_id"`
	ContainerExtension string     `json:"container_extension"`
}

// XtreamStreamType maps the upstream stream_type tag.
func XtreamStreamType(tag string) models.StreamType {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "live", "created_live", "radio_streams":
		return models.StreamLive
	case "movie":
		return models.StreamMovie
	default:
		return models.StreamSeries
	}
}

// CategoryNames indexes categories by id for group-title lookup.
func CategoryNames(cats ...[]XtreamCategory) map[string]string {
	out := make(map[string]string)
	for _, list := range cats {
		for _, c := range list {
			if c.CategoryID != "" && c.CategoryName != "" {
				out[string(c.CategoryID)] = string(c.CategoryName)
			}
		}
	}
	return out
}

// ParseXtreamChannels converts get_live_streams entries. The playable URL is
// {streamBaseURL}/{stream_id}.m3u8; the type comes from the upstream tag.
func ParseXtreamChannels(raw []XtreamStream, providerID, streamBaseURL string, categoryNames map[string]string, now time.Time) []models.Channel {
	base := strings.TrimSuffix(streamBaseURL, "/")
	return mapStreams(raw, categoryNames, models.DefaultGroupTitle, func(s XtreamStream) models.Channel {
		sid := string(s.StreamID)
		return models.Channel{
			ID:         XtreamLiveID(providerID, sid),
			ProviderID: providerID,
			StreamURL:  base + "/" + sid + ".m3u8",
			StreamType: XtreamStreamType(s.StreamType),
			AddedAt:    now,
		}
	})
}

// ParseXtreamVOD converts get_vod_streams entries into movies played from
// {streamBaseURL}/movie/{stream_id}.mp4.
func ParseXtreamVOD(raw []XtreamStream, providerID, streamBaseURL string, categoryNames map[string]string, now time.Time) []models.Channel {
	base := strings.TrimSuffix(streamBaseURL, "/")
	return mapStreams(raw, categoryNames, "Movies", func(s XtreamStream) models.Channel {
		sid := string(s.StreamID)
		return models.Channel{
			ID:         XtreamVODID(providerID, sid),
			ProviderID: providerID,
			StreamURL:  base + "/movie/" + sid + ".mp4",
			StreamType: models.StreamMovie,
			AddedAt:    now,
		}
	})
}

func mapStreams(raw []XtreamStream, categoryNames map[string]string, defaultGroup string, build func(XtreamStream) models.Channel) []models.Channel {
	out := make([]models.Channel, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, s := range raw {
		if s.StreamID == "" {
			continue
		}
		ch := build(s)
		if _, dup := seen[ch.ID]; dup {
			continue
		}
		seen[ch.ID] = struct{}{}

		ch.Name = strings.TrimSpace(string(s.Name))
		if ch.Name == "" {
			ch.Name = "Channel " + string(s.StreamID)
		}
		ch.LogoURL = optional(strings.TrimSpace(s.StreamIcon))
		ch.EPGID = optional(string(s.EPGChannelID))
		if s.Num > 0 {
			n := int(s.Num)
			ch.Number = &n
		}
		switch {
		case categoryNames[string(s.CategoryID)] != "":
			ch.GroupTitle = categoryNames[string(s.CategoryID)]
		case s.CategoryID != "":
			ch.GroupTitle = string(s.CategoryID)
		default:
			ch.GroupTitle = defaultGroup
		}
		out = append(out, ch)
	}
	return out
}
