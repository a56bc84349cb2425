package mux

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	joberrors "github.com/mantonx/remuxer/internal/modules/jobmodule/errors"
	"github.com/mantonx/remuxer/internal/modules/jobmodule/types"
)

// Changes is the prepared set of property changes applied by a remux.
type Changes struct {
	// Title replaces the container title when set.
	Title *string
	// StripTags removes global and track tags.
	StripTags bool
	// RemoveAttachments drops all existing attachments.
	RemoveAttachments bool
	// Attach adds files as new attachments.
	Attach []NewAttachment
	// Tracks holds per-track changes keyed by track id.
	Tracks map[int]TrackChange
}

// NewAttachment is a file to attach.
type NewAttachment struct {
	Path        string
	Name        string
	Description string
	MimeType    string
}

// TrackChange lists the properties to set on one track. Nil fields are left as is.
type TrackChange struct {
	Name     *string
	Language *string
	Default  *bool
	Forced   *bool
}

// RemuxRequest describes one remux.
type RemuxRequest struct {
	Source  string
	Output  string
	Changes Changes
	// Tracks is the current track list; tracks with Copy=false are excluded.
	Tracks []types.Track
}

var exclusionFlags = map[types.TrackType]string{
	types.TrackTypeVideo:    "--video-tracks",
	types.TrackTypeAudio:    "--audio-tracks",
	types.TrackTypeSubtitle: "--subtitle-tracks",
}

// BuildRemuxArgs synthesizes the mkvmerge arguments for req.
func BuildRemuxArgs(req RemuxRequest, uiLanguage string) ([]string, error) {
	if req.Source == "" || req.Output == "" {
		return nil, joberrors.Validation("remux", "source and output paths are required")
	}
	c := req.Changes

	args := []string{"--ui-language", uiLanguage, "--output", req.Output}

	if c.Title != nil {
		args = append(args, "--title", *c.Title)
	}
	if c.StripTags {
		args = append(args, "--no-global-tags", "--no-track-tags")
	}
	if c.RemoveAttachments {
		args = append(args, "--no-attachments")
	}
	for _, a := range c.Attach {
		if a.Path == "" {
			return nil, joberrors.Validation("remux", "attachment path is required")
		}
		if a.Name != "" {
			args = append(args, "--attachment-name", a.Name)
		}
		if a.Description != "" {
			args = append(args, "--attachment-description", a.Description)
		}
		if a.MimeType != "" {
			args = append(args, "--attachment-mime-type", a.MimeType)
		}
		args = append(args, "--attach-file", a.Path)
	}

	byID := make(map[int]types.Track, len(req.Tracks))
	for _, t := range req.Tracks {
		byID[t.ID] = t
	}
	ids := trackIDs(req)

	var languages, names, defaults, forced []string
	for _, id := range ids {
		track, known := byID[id]
		if known && !track.Copy {
			continue
		}
		change := c.Tracks[id]

		switch {
		case change.Language != nil:
			languages = append(languages, "--language", fmt.Sprintf("%d:%s", id, *change.Language))
		case known && track.Reencoded() && hasLanguage(track.Language):
			// Re-encoded tracks lose their language tag in the transcode step.
			languages = append(languages, "--language", fmt.Sprintf("%d:%s", id, track.Language))
		}
		if change.Name != nil {
			names = append(names, "--track-name", fmt.Sprintf("%d:%s", id, *change.Name))
		}
		if change.Default != nil {
			defaults = append(defaults, "--default-track", fmt.Sprintf("%d:%s", id, yesNo(*change.Default)))
		}
		if change.Forced != nil {
			forced = append(forced, "--forced-track", fmt.Sprintf("%d:%s", id, yesNo(*change.Forced)))
		}
	}
	args = append(args, languages...)
	args = append(args, names...)
	args = append(args, defaults...)
	args = append(args, forced...)

	args = append(args, exclusionArgs(req.Tracks)...)
	args = append(args, "(", req.Source, ")")
	return args, nil
}

// exclusionArgs lists tracks not marked for copy, per track type.
func exclusionArgs(tracks []types.Track) []string {
	excluded := make(map[types.TrackType][]int)
	for _, t := range tracks {
		if !t.Copy {
			excluded[t.Type] = append(excluded[t.Type], t.ID)
		}
	}

	var args []string
	for _, trackType := range []types.TrackType{types.TrackTypeVideo, types.TrackTypeAudio, types.TrackTypeSubtitle} {
		ids := excluded[trackType]
		if len(ids) == 0 {
			continue
		}
		sort.Ints(ids)
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.Itoa(id)
		}
		args = append(args, exclusionFlags[trackType], "!"+strings.Join(parts, ","))
	}
	return args
}

func trackIDs(req RemuxRequest) []int {
	seen := make(map[int]bool)
	var ids []int
	for _, t := range req.Tracks {
		if !seen[t.ID] {
			seen[t.ID] = true
			ids = append(ids, t.ID)
		}
	}
	for id := range req.Changes.Tracks {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

func hasLanguage(lang string) bool {
	return lang != "" && lang != "und"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
