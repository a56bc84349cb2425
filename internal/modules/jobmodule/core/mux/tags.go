package mux

import (
	"errors"
	"os"

	"github.com/dhowden/tag"
)

// readEmbeddedTags reads MP4/MP3/FLAC/OGG metadata. Files without a
// supported tag block return nil, nil.
func readEmbeddedTags(path string) (*EmbeddedTags, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		if errors.Is(err, tag.ErrNoTagsFound) {
			return nil, nil
		}
		return nil, err
	}
	return &EmbeddedTags{
		Format:  string(m.Format()),
		Title:   m.Title(),
		Artist:  m.Artist(),
		Album:   m.Album(),
		Genre:   m.Genre(),
		Year:    m.Year(),
		Comment: m.Comment(),
	}, nil
}
