package mux

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mantonx/remuxer/internal/modules/jobmodule/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const identification = `{
  "file_name": "movie.mkv",
  "container": {
    "type": "Matroska",
    "recognized": true,
    "supported": true,
    "properties": {"title": "Movie", "duration": 5400000000000}
  },
  "tracks": [
    {"id": 2, "type": "subtitles", "codec": "SubRip/SRT", "properties": {"language": "eng", "forced_track": true}},
    {"id": 0, "type": "video", "codec": "AVC/H.264/MPEG-4p10", "properties": {"language": "und", "default_track": true}},
    {"id": 1, "type": "audio", "codec": "AC-3", "properties": {"language": "ger", "language_ietf": "de", "track_name": "Deutsch"}},
    {"id": 3, "type": "audio", "codec": "DTS", "properties": {"language": "eng"}}
  ],
  "attachments": [{"id": 1, "file_name": "cover.jpg", "content_type": "image/jpeg", "size": 1024}],
  "global_tags": [{"num_entries": 0}],
  "track_tags": [{"num_entries": 3, "track_id": 1}],
  "errors": [],
  "warnings": []
}`

func TestFileInfo_Decode(t *testing.T) {
	var info FileInfo
	require.NoError(t, json.Unmarshal([]byte(identification), &info))

	assert.Equal(t, "Movie", info.Title())
	assert.Equal(t, 90*time.Minute, info.Duration())
	assert.True(t, info.HasTags())
	require.Len(t, info.Attachments, 1)
	assert.Equal(t, "image/jpeg", info.Attachments[0].ContentType)
}

func TestFileInfo_TrackList(t *testing.T) {
	var info FileInfo
	require.NoError(t, json.Unmarshal([]byte(identification), &info))

	tracks := info.TrackList()
	require.Len(t, tracks, 4)

	assert.Equal(t, 0, tracks[0].ID)
	assert.Equal(t, types.TrackTypeVideo, tracks[0].Type)
	assert.True(t, tracks[0].Default)

	assert.Equal(t, "de", tracks[1].Language)
	assert.Equal(t, "Deutsch", tracks[1].Name)
	assert.Equal(t, 0, tracks[1].Index)

	assert.Equal(t, types.TrackTypeSubtitle, tracks[2].Type)
	assert.True(t, tracks[2].Forced)

	assert.Equal(t, 1, tracks[3].Index)
	for _, tr := range tracks {
		assert.True(t, tr.Copy)
	}
}

func TestFileInfo_TitleFallsBackToTags(t *testing.T) {
	info := FileInfo{Tags: &EmbeddedTags{Title: "Tagged"}}
	assert.Equal(t, "Tagged", info.Title())
	assert.False(t, info.HasTags())
}
