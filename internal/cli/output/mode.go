// Package output renders command results for terminals, pipes and
// machines. In auto mode a terminal gets styled text and anything else
// gets markdown.
package output

import (
	"fmt"
	"strings"
)

// Mode selects how a command renders its result.
type Mode string

// Output modes.
const (
	ModeAuto     Mode = "auto"
	ModeText     Mode = "text"
	ModeMarkdown Mode = "markdown"
	ModeJSON     Mode = "json"
	ModeYAML     Mode = "yaml"
)

// Modes lists the modes accepted by --format.
func Modes() []string {
	return []string{string(ModeAuto), string(ModeText), string(ModeMarkdown), string(ModeJSON), string(ModeYAML)}
}

// ParseMode validates a --format value. Empty means auto.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case "md":
		return ModeMarkdown, nil
	case ModeAuto, ModeText, ModeMarkdown, ModeJSON, ModeYAML:
		return m, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want one of %s)", s, strings.Join(Modes(), ", "))
	}
}
