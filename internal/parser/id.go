package parser

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// M3UChannelID derives a stable id for a playlist entry. M3U has no native
// identifier, so the stream URL stands in for one.
func M3UChannelID(providerID, streamURL string) string {
	sum := sha256.Sum256([]byte(streamURL))
	return providerID + "_m3u_" + hex.EncodeToString(sum[:8])
}

// XtreamLiveID derives a live channel id from the upstream stream_id.
func XtreamLiveID(providerID, streamID string) string {
	return providerID + "_" + streamID
}

// XtreamVODID derives a movie id from the upstream stream_id.
func XtreamVODID(providerID, streamID string) string {
	return providerID + "_vod_" + streamID
}

var reWhitespace = regexp.MustCompile(`\s+`)

// M3UCategoryID derives a category id from a group title.
func M3UCategoryID(providerID, name string) string {
	return providerID + "_cat_" + reWhitespace.ReplaceAllString(name, "_")
}

// XtreamCategoryID derives a category id; kind is "live" or "vod".
func XtreamCategoryID(providerID, kind, categoryID string) string {
	return providerID + "_" + kind + "_" + categoryID
}
