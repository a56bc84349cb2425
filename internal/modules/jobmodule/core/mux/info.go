package mux

import (
	"sort"
	"strings"
	"time"

	"github.com/mantonx/remuxer/internal/modules/jobmodule/types"
)

// FileInfo is the identification document written by `mkvmerge -J`.
type FileInfo struct {
	FileName    string       `json:"file_name"`
	Container   Container    `json:"container"`
	Tracks      []TrackInfo  `json:"tracks"`
	Attachments []Attachment `json:"attachments"`
	Chapters    []EntryCount `json:"chapters"`
	GlobalTags  []EntryCount `json:"global_tags"`
	TrackTags   []TrackTags  `json:"track_tags"`
	Errors      []string     `json:"errors"`
	Warnings    []string     `json:"warnings"`

	// Tags holds metadata read directly from the file for formats the
	// identification document does not cover (MP4/MP3/FLAC/OGG tags).
	Tags *EmbeddedTags `json:"embedded_tags,omitempty"`
}

// Container describes the container itself.
type Container struct {
	Type       string              `json:"type"`
	Recognized bool                `json:"recognized"`
	Supported  bool                `json:"supported"`
	Properties ContainerProperties `json:"properties"`
}

// ContainerProperties are the container-level properties.
type ContainerProperties struct {
	Title    string `json:"title,omitempty"`
	Duration int64  `json:"duration,omitempty"` // nanoseconds
	Muxing   string `json:"muxing_application,omitempty"`
	Writing  string `json:"writing_application,omitempty"`
}

// TrackInfo is one identified track.
type TrackInfo struct {
	ID         int             `json:"id"`
	Type       string          `json:"type"`
	Codec      string          `json:"codec"`
	Properties TrackProperties `json:"properties"`
}

// TrackProperties are per-track properties.
type TrackProperties struct {
	CodecID        string `json:"codec_id,omitempty"`
	Language       string `json:"language,omitempty"`
	LanguageIETF   string `json:"language_ietf,omitempty"`
	TrackName      string `json:"track_name,omitempty"`
	DefaultTrack   bool   `json:"default_track"`
	ForcedTrack    bool   `json:"forced_track"`
	Number         int    `json:"number,omitempty"`
	PixelDims      string `json:"pixel_dimensions,omitempty"`
	AudioChannels  int    `json:"audio_channels,omitempty"`
	SamplingFreq   int    `json:"audio_sampling_frequency,omitempty"`
	DefaultDurNS   int64  `json:"default_duration,omitempty"`
	NumberOfBytes  string `json:"tag_number_of_bytes,omitempty"`
	BitsPerSecond  string `json:"tag_bps,omitempty"`
	TextSubtitles  bool   `json:"text_subtitles,omitempty"`
	EncodingFormat string `json:"encoding,omitempty"`
}

// Attachment is an attached file in the container.
type Attachment struct {
	ID          int    `json:"id"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	Description string `json:"description,omitempty"`
	Size        int64  `json:"size"`
}

// EntryCount is the summary form used for chapters and global tags.
type EntryCount struct {
	NumEntries int `json:"num_entries"`
}

// TrackTags is the tag summary of one track.
type TrackTags struct {
	NumEntries int `json:"num_entries"`
	TrackID    int `json:"track_id"`
}

// EmbeddedTags are tags read with a format-specific tag reader.
type EmbeddedTags struct {
	Format  string `json:"format"`
	Title   string `json:"title,omitempty"`
	Artist  string `json:"artist,omitempty"`
	Album   string `json:"album,omitempty"`
	Genre   string `json:"genre,omitempty"`
	Year    int    `json:"year,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// Duration returns the container duration, zero when unknown.
func (f *FileInfo) Duration() time.Duration {
	return time.Duration(f.Container.Properties.Duration)
}

// Title returns the container title, falling back to embedded tags.
func (f *FileInfo) Title() string {
	if f.Container.Properties.Title != "" {
		return f.Container.Properties.Title
	}
	if f.Tags != nil {
		return f.Tags.Title
	}
	return ""
}

// HasTags reports whether the file carries global or track tags.
func (f *FileInfo) HasTags() bool {
	for _, t := range f.GlobalTags {
		if t.NumEntries > 0 {
			return true
		}
	}
	for _, t := range f.TrackTags {
		if t.NumEntries > 0 {
			return true
		}
	}
	return false
}

// Language returns the preferred language code of the track.
func (t TrackInfo) Language() string {
	if t.Properties.LanguageIETF != "" && t.Properties.LanguageIETF != "und" {
		return t.Properties.LanguageIETF
	}
	return t.Properties.Language
}

// TrackList converts the identified tracks into the drivers' track model.
// Every track starts out copied without re-encoding; Index counts tracks of
// the same type in id order.
func (f *FileInfo) TrackList() []types.Track {
	infos := append([]TrackInfo(nil), f.Tracks...)
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	counters := make(map[types.TrackType]int)
	tracks := make([]types.Track, 0, len(infos))
	for _, info := range infos {
		trackType := types.TrackType(strings.ToLower(info.Type))
		tracks = append(tracks, types.Track{
			ID:       info.ID,
			Index:    counters[trackType],
			Type:     trackType,
			Codec:    info.Codec,
			Language: info.Language(),
			Name:     info.Properties.TrackName,
			Default:  info.Properties.DefaultTrack,
			Forced:   info.Properties.ForcedTrack,
			Copy:     true,
		})
		counters[trackType]++
	}
	return tracks
}
