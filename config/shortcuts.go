package config

import "strings"

// Action is an editor command that can be bound to a key chord.
type Action string

const (
	ActionUndo           Action = "undo"
	ActionRedo           Action = "redo"
	ActionDeleteSelected Action = "delete_selected"
	ActionDeselect       Action = "deselect"
	ActionResetChanges   Action = "reset_changes"
	ActionSave           Action = "save"
	ActionZoomIn         Action = "zoom_in"
	ActionZoomOut        Action = "zoom_out"
	ActionZoomReset      Action = "zoom_reset"
	ActionModePan        Action = "mode_pan"
	ActionModeSelect     Action = "mode_select"
	ActionModeDraw       Action = "mode_draw"
)

// Shortcut binds one action to the chords that trigger it. "mod" is Ctrl on
// Linux and Windows and Cmd on macOS.
type Shortcut struct {
	Action      Action   `json:"action" yaml:"action"`
	Keys        []string `json:"keys" yaml:"keys"`
	Description string   `json:"description" yaml:"description"`
}

var defaultShortcuts = []Shortcut{
	{ActionUndo, []string{"mod+z"}, "Undo the last change"},
	{ActionRedo, []string{"mod+shift+z", "mod+y"}, "Redo the last undone change"},
	{ActionDeleteSelected, []string{"delete", "backspace"}, "Delete the selected detection"},
	{ActionDeselect, []string{"escape"}, "Clear the selection"},
	{ActionResetChanges, []string{"mod+shift+backspace"}, "Discard all unsaved changes"},
	{ActionSave, []string{"mod+s"}, "Save changes"},
	{ActionZoomIn, []string{"+", "="}, "Zoom in"},
	{ActionZoomOut, []string{"-"}, "Zoom out"},
	{ActionZoomReset, []string{"0"}, "Fit the image to the viewport"},
	{ActionModePan, []string{"h", "space"}, "Pan mode"},
	{ActionModeSelect, []string{"v"}, "Select mode"},
	{ActionModeDraw, []string{"b"}, "Draw mode"},
}

// DefaultShortcuts returns a copy of the built-in shortcut table.
func DefaultShortcuts() []Shortcut {
	out := make([]Shortcut, len(defaultShortcuts))
	for i, s := range defaultShortcuts {
		s.Keys = append([]string(nil), s.Keys...)
		out[i] = s
	}
	return out
}

// ActionForChord finds the action bound to chord. Matching ignores case and
// surrounding whitespace.
func ActionForChord(chord string) (Action, bool) {
	chord = strings.ToLower(strings.TrimSpace(chord))
	for _, s := range defaultShortcuts {
		for _, k := range s.Keys {
			if k == chord {
				return s.Action, true
			}
		}
	}
	return "", false
}
