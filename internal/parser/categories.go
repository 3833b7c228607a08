package parser

import "github.com/voyagen/vaulttv/internal/models"

// M3UCategories derives one category per distinct category id, in order of
// first appearance. Group titles differing only in whitespace share an id,
// so their channels are counted together under the first title seen. The
// category type is that of the group's first channel.
func M3UCategories(providerID string, channels []models.Channel) []models.Category {
	index := make(map[string]int)
	var out []models.Category
	for _, ch := range channels {
		id := M3UCategoryID(providerID, ch.GroupTitle)
		if i, ok := index[id]; ok {
			out[i].ChannelCount++
			continue
		}
		index[id] = len(out)
		out = append(out, models.Category{
			ID:           id,
			ProviderID:   providerID,
			Name:         ch.GroupTitle,
			Type:         ch.StreamType,
			ChannelCount: 1,
		})
	}
	return out
}

// XtreamCategories builds live and VOD categories with the number of streams
// referencing each.
func XtreamCategories(providerID string, liveCats, vodCats []XtreamCategory, live, vod []XtreamStream) []models.Category {
	out := make([]models.Category, 0, len(liveCats)+len(vodCats))
	out = appendXtreamCategories(out, providerID, "live", models.StreamLive, liveCats, countByCategory(live))
	out = appendXtreamCategories(out, providerID, "vod", models.StreamMovie, vodCats, countByCategory(vod))
	return out
}

func appendXtreamCategories(out []models.Category, providerID, kind string, typ models.StreamType, cats []XtreamCategory, counts map[string]int) []models.Category {
	seen := make(map[string]struct{}, len(cats))
	for _, c := range cats {
		cid := string(c.CategoryID)
		if cid == "" {
			continue
		}
		if _, dup := seen[cid]; dup {
			continue
		}
		seen[cid] = struct{}{}
		name := string(c.CategoryName)
		if name == "" {
			name = cid
		}
		out = append(out, models.Category{
			ID:           XtreamCategoryID(providerID, kind, cid),
			ProviderID:   providerID,
			Name:         name,
			Type:         typ,
			ChannelCount: counts[cid],
		})
	}
	return out
}

func countByCategory(streams []XtreamStream) map[string]int {
	counts := make(map[string]int)
	for _, s := range streams {
		counts[string(s.CategoryID)]++
	}
	return counts
}
