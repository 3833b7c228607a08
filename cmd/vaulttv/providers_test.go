package main

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/voyagen/vaulttv/internal/models"
)

func TestConfigFromFlags(t *testing.T) {
	Convey("Given add flags", t, func() {
		Reset(func() { addFlags = providerFlags{} })

		Convey("When an m3u provider has a guide", func() {
			addFlags.typ, addFlags.url, addFlags.epgURL = "m3u", "http://example.com/list.m3u", "http://example.com/guide.xml"
			cfg, err := configFromFlags()
			So(err, ShouldBeNil)
			m, ok := cfg.(models.M3UConfig)
			So(ok, ShouldBeTrue)
			So(*m.EPGURL, ShouldEqual, "http://example.com/guide.xml")
		})

		Convey("When an xtream provider lacks a password", func() {
			addFlags.typ, addFlags.url, addFlags.username = "xtream", "http://panel.example.com", "u"
			_, err := configFromFlags()
			So(errors.Is(err, models.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("When the type is unknown", func() {
			addFlags.typ, addFlags.url = "ftp", "http://example.com"
			_, err := configFromFlags()
			So(errors.Is(err, models.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestSyncArgs(t *testing.T) {
	defer func() { syncAll = false }()

	syncAll = true
	if err := syncCmd.Args(syncCmd, []string{"p1"}); err == nil {
		t.Error("--all with an id should be rejected")
	}
	syncAll = false
	if err := syncCmd.Args(syncCmd, nil); err == nil {
		t.Error("missing id should be rejected")
	}
	if err := syncCmd.Args(syncCmd, []string{"p1"}); err != nil {
		t.Errorf("single id: %v", err)
	}
}
