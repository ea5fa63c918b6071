package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/dashx/internal/formatter"
	"github.com/desertthunder/dashx/internal/models"
)

var _ list.Item = recentItem{}

// recentItem wraps [models.RecentTrack] to implement [list.Item].
type recentItem struct {
	recent models.RecentTrack
}

func (i recentItem) FilterValue() string { return i.recent.Track.Name }
func (i recentItem) Title() string       { return i.recent.Track.Name }
func (i recentItem) Description() string {
	desc := formatter.Artists(i.recent.Track)
	if i.recent.Track.Album != "" {
		desc = fmt.Sprintf("%s • %s", desc, i.recent.Track.Album)
	}
	if !i.recent.PlayedAt.IsZero() {
		desc = fmt.Sprintf("%s • %s", desc, i.recent.PlayedAt.Local().Format("Jan 2 15:04"))
	}
	return desc
}

func recentItems(tracks []models.RecentTrack) []list.Item {
	items := make([]list.Item, len(tracks))
	for i, rt := range tracks {
		items[i] = recentItem{recent: rt}
	}
	return items
}
