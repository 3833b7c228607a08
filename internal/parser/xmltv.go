package parser

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/voyagen/vaulttv/internal/models"
)

type tvXML struct {
	XMLName    xml.Name     `xml:"tv"`
	Programmes []programXML `xml:"programme"`
}

type programXML struct {
	Start    string   `xml:"start,attr"`
	Stop     string   `xml:"stop,attr"`
	Channel  string   `xml:"channel,attr"`
	Titles   []string `xml:"title"`
	Descs    []string `xml:"desc"`
	Category []string `xml:"category"`
}

var xmltvLayouts = []string{"20060102150405 -0700", "20060102150405", "200601021504 -0700", "200601021504"}

// ParseXMLTV reads programmes from an XMLTV document. Programmes with an
// unreadable time range or no channel are skipped and reported.
func ParseXMLTV(r io.Reader, providerID string) ([]models.Program, []ParseError, error) {
	var tv tvXML
	dec := xml.NewDecoder(r)
	dec.Strict = false
	if err := dec.Decode(&tv); err != nil {
		return nil, nil, ParseError{Field: "xmltv", Msg: err.Error()}
	}
	var issues []ParseError
	programs := make([]models.Program, 0, len(tv.Programmes))
	for i, p := range tv.Programmes {
		start, okStart := parseXMLTVTime(p.Start)
		end, okEnd := parseXMLTVTime(p.Stop)
		if p.Channel == "" || !okStart || !okEnd || !end.After(start) {
			issues = append(issues, ParseError{Field: "programme", Msg: "skipped entry " + strconv.Itoa(i)})
			continue
		}
		prog := models.Program{
			ID:         providerID + "_" + p.Channel + "_" + strconv.FormatInt(start.Unix(), 10),
			ProviderID: providerID,
			ChannelEPG: p.Channel,
			Title:      "Untitled",
			Start:      start,
			End:        end,
		}
		if len(p.Titles) > 0 && strings.TrimSpace(p.Titles[0]) != "" {
			prog.Title = strings.TrimSpace(p.Titles[0])
		}
		if len(p.Descs) > 0 {
			prog.Description = optional(strings.TrimSpace(p.Descs[0]))
		}
		if len(p.Category) > 0 {
			prog.Category = optional(strings.TrimSpace(p.Category[0]))
		}
		programs = append(programs, prog)
	}
	return programs, issues, nil
}

func parseXMLTVTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range xmltvLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
