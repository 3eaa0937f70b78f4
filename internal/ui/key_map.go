package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the progress panel.
type keyMap struct {
	hide        key.Binding
	show        key.Binding
	peek        key.Binding
	cancel      key.Binding
	resubscribe key.Binding
	quit        key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		hide:        key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "hide")),
		show:        key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "show")),
		peek:        key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "peek")),
		cancel:      key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "cancel")),
		resubscribe: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reconnect")),
		quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.hide, k.peek, k.cancel, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.hide, k.show, k.peek},
		{k.cancel, k.resubscribe, k.quit},
	}
}

// hiddenHelp is shown while the panel is collapsed.
func (k keyMap) hiddenHelp() []key.Binding {
	return []key.Binding{k.show, k.peek, k.quit}
}
