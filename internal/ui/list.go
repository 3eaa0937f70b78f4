package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/dlpanel/internal/models"
)

var (
	_ list.Item = entryItem{}
)

// entryItem wraps [models.QueueEntry] to implement [list.Item].
type entryItem struct {
	entry models.QueueEntry
}

func (i entryItem) FilterValue() string { return i.entry.DisplayName }
func (i entryItem) Title() string {
	if i.entry.DisplayName == "" {
		return i.entry.Key
	}
	return i.entry.DisplayName
}
func (i entryItem) Description() string {
	desc := fmt.Sprintf("%d%%", i.entry.Progress)
	if status := i.entry.StatusText(); status != "" {
		desc = fmt.Sprintf("%s • %s", status, desc)
	}
	if i.entry.ErrorMessage != nil {
		desc = fmt.Sprintf("%s • %s", desc, styles.err.Render(*i.entry.ErrorMessage))
	}
	return desc
}

func entryItems(entries []models.QueueEntry) []list.Item {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = entryItem{entry: e}
	}
	return items
}
