package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the [key.Binding] mapping for the TUI.
type keyMap struct {
	toggle     key.Binding
	next       key.Binding
	previous   key.Binding
	seekBack   key.Binding
	seekFwd    key.Binding
	volumeUp   key.Binding
	volumeDown key.Binding
	transfer   key.Binding
	shuffle    key.Binding
	repeat     key.Binding
	history    key.Binding
	help       key.Binding
	quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		toggle:     key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "play/pause")),
		next:       key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "next")),
		previous:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous")),
		seekBack:   key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "-10s")),
		seekFwd:    key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "+10s")),
		volumeUp:   key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "volume up")),
		volumeDown: key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "volume down")),
		transfer:   key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "play here")),
		shuffle:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "shuffle")),
		repeat:     key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "repeat")),
		history:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "history")),
		help:       key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "more keys")),
		quit:       key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.toggle, k.next, k.previous, k.history, k.help, k.quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.toggle, k.next, k.previous},
		{k.seekBack, k.seekFwd, k.volumeUp, k.volumeDown},
		{k.transfer, k.shuffle, k.repeat},
		{k.history, k.help, k.quit},
	}
}
