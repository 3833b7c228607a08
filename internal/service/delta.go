package service

import (
	"github.com/samber/lo"

	"github.com/voyagen/vaulttv/internal/models"
)

// Delta is the id-level difference between two channel sets.
type Delta struct {
	Added   []models.Channel
	Removed []models.Channel
}

// RemovedIDs returns the ids of Removed in order.
func (d Delta) RemovedIDs() []string {
	return lo.Map(d.Removed, func(ch models.Channel, _ int) string { return ch.ID })
}

// Reconcile compares existing and fresh by channel id. Added keeps the order
// of fresh and Removed the order of existing. A channel whose id is present
// in both is treated as unchanged even when its attributes differ.
func Reconcile(existing, fresh []models.Channel) Delta {
	have := idSet(existing)
	next := idSet(fresh)
	return Delta{
		Added: lo.Filter(fresh, func(ch models.Channel, _ int) bool {
			_, ok := have[ch.ID]
			return !ok
		}),
		Removed: lo.Filter(existing, func(ch models.Channel, _ int) bool {
			_, ok := next[ch.ID]
			return !ok
		}),
	}
}

func idSet(channels []models.Channel) map[string]struct{} {
	set := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		set[ch.ID] = struct{}{}
	}
	return set
}
