package app

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// Command is an action bound to one or more keys.
type Command struct {
	ID         string
	Name       string
	Category   string
	Keybinding string // comma separated, no padding
	// Screens limits the command to the listed screens; empty means global.
	Screens []screen
	Handler func(m *Model) (Model, tea.Cmd)
}

// keys splits the binding list. Keys are not trimmed: " " is space.
func (c Command) keys() []string {
	return strings.Split(c.Keybinding, ",")
}

// keyHelp is the binding list as shown in help.
func (c Command) keyHelp() string {
	keys := c.keys()
	for i, k := range keys {
		if k == " " {
			keys[i] = "space"
		}
	}
	return strings.Join(keys, "/")
}

func (c Command) activeOn(s screen) bool {
	if len(c.Screens) == 0 {
		return true
	}
	for _, x := range c.Screens {
		if x == s {
			return true
		}
	}
	return false
}

// CommandRegistry holds all available commands.
type CommandRegistry struct {
	commands []Command
}

func NewCommandRegistry() *CommandRegistry {
	r := &CommandRegistry{}

	r.register(Command{ID: "nav.down", Name: "Move down", Category: "Navigation", Keybinding: "j,down",
		Handler: (*Model).moveDown})
	r.register(Command{ID: "nav.up", Name: "Move up", Category: "Navigation", Keybinding: "k,up",
		Handler: (*Model).moveUp})
	r.register(Command{ID: "nav.next_screen", Name: "Switch screen", Category: "Navigation", Keybinding: "tab",
		Handler: (*Model).nextScreen})
	r.register(Command{ID: "nav.back", Name: "Back to library", Category: "Navigation", Keybinding: "esc,backspace,h,left",
		Screens: []screen{screenResults, screenSettings},
		Handler: (*Model).back})

	r.register(Command{ID: "library.search", Name: "Search lyrics for track", Category: "Library", Keybinding: "enter,l,right",
		Screens: []screen{screenLibrary},
		Handler: (*Model).searchSelected})
	r.register(Command{ID: "library.filter", Name: "Filter tracks", Category: "Library", Keybinding: "/",
		Screens: []screen{screenLibrary},
		Handler: (*Model).startFilter})
	r.register(Command{ID: "library.clear_filter", Name: "Clear filter", Category: "Library", Keybinding: "esc",
		Screens: []screen{screenLibrary},
		Handler: (*Model).clearFilter})
	r.register(Command{ID: "library.rescan", Name: "Rescan library", Category: "Library", Keybinding: "r",
		Screens: []screen{screenLibrary},
		Handler: (*Model).rescan})
	r.register(Command{ID: "library.fetch_missing", Name: "Download lyrics for tracks without any", Category: "Library", Keybinding: "a",
		Screens: []screen{screenLibrary},
		Handler: (*Model).fetchMissing})
	r.register(Command{ID: "library.view_lyrics", Name: "View saved lyrics", Category: "Library", Keybinding: "v",
		Screens: []screen{screenLibrary},
		Handler: (*Model).viewLyrics})
	r.register(Command{ID: "library.delete_lyrics", Name: "Remove lyrics file", Category: "Library", Keybinding: "D",
		Screens: []screen{screenLibrary},
		Handler: (*Model).deleteLyrics})
	r.register(Command{ID: "library.cancel", Name: "Cancel searches and auto-download", Category: "Library", Keybinding: "x",
		Handler: (*Model).cancelAll})

	r.register(Command{ID: "results.download", Name: "Save selected lyrics", Category: "Results", Keybinding: "enter,d",
		Screens: []screen{screenResults},
		Handler: (*Model).downloadSelected})
	r.register(Command{ID: "results.retry", Name: "Search again", Category: "Results", Keybinding: "r",
		Screens: []screen{screenResults},
		Handler: (*Model).retrySearch})

	r.register(Command{ID: "settings.change", Name: "Change setting", Category: "Settings", Keybinding: "enter, ",
		Screens: []screen{screenSettings},
		Handler: (*Model).changeSetting})
	r.register(Command{ID: "settings.reset", Name: "Reset all settings", Category: "Settings", Keybinding: "R",
		Screens: []screen{screenSettings},
		Handler: (*Model).resetSettings})

	r.register(Command{ID: "ui.settings", Name: "Open settings", Category: "General", Keybinding: "s",
		Screens: []screen{screenLibrary, screenResults},
		Handler: (*Model).openSettings})
	r.register(Command{ID: "ui.help", Name: "Toggle help", Category: "General", Keybinding: "?",
		Handler: (*Model).toggleHelp})
	r.register(Command{ID: "ui.diagnostics", Name: "Toggle diagnostics", Category: "General", Keybinding: "ctrl+d",
		Handler: (*Model).toggleDiagnostics})
	r.register(Command{ID: "ui.quit", Name: "Quit", Category: "General", Keybinding: "q,ctrl+c",
		Handler: func(m *Model) (Model, tea.Cmd) { return *m, tea.Quit }})

	return r
}

func (r *CommandRegistry) register(cmd Command) {
	r.commands = append(r.commands, cmd)
}

// Commands returns all registered commands.
func (r *CommandRegistry) Commands() []Command {
	return r.commands
}

// Lookup finds the command bound to key on screen s. Screen-specific
// bindings win over global ones.
func (r *CommandRegistry) Lookup(s screen, key string) (Command, bool) {
	var global *Command
	for i := range r.commands {
		c := &r.commands[i]
		for _, k := range c.keys() {
			if k != key {
				continue
			}
			if len(c.Screens) > 0 && c.activeOn(s) {
				return *c, true
			}
			if len(c.Screens) == 0 && global == nil {
				global = c
			}
		}
	}
	if global != nil {
		return *global, true
	}
	return Command{}, false
}
