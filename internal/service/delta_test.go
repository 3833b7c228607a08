package service

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/voyagen/vaulttv/internal/models"
)

func chans(ids ...string) []models.Channel {
	out := make([]models.Channel, len(ids))
	for i, id := range ids {
		out[i] = models.Channel{ID: id, Name: id}
	}
	return out
}

func TestReconcile(t *testing.T) {
	Convey("Given existing and fresh channel sets", t, func() {
		existing := chans("a", "b", "c", "d")
		fresh := chans("e", "c", "a", "f")
		fresh[1].Name = "changed"

		d := Reconcile(existing, fresh)

		Convey("Added is fresh minus existing, in fresh order", func() {
			So(d.Added, ShouldResemble, chans("e", "f"))
		})
		Convey("Removed is existing minus fresh, in existing order", func() {
			So(d.RemovedIDs(), ShouldResemble, []string{"b", "d"})
		})
		Convey("Same-id channels with changed attributes are not reported", func() {
			for _, ch := range d.Added {
				So(ch.ID, ShouldNotEqual, "c")
			}
		})
	})

	Convey("Empty inputs yield an empty delta", t, func() {
		d := Reconcile(nil, nil)
		So(d.Added, ShouldBeEmpty)
		So(d.Removed, ShouldBeEmpty)
		So(Reconcile(nil, chans("x")).Added, ShouldHaveLength, 1)
		So(Reconcile(chans("x"), nil).RemovedIDs(), ShouldResemble, []string{"x"})
	})
}
