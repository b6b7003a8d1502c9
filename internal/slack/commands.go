package slack

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Slash command actions.
const (
	ActionStatus  = "status"
	ActionStop    = "stop"
	ActionManual  = "manual"
	ActionSmart   = "smart"
	ActionRestart = "restart"
)

// Usage is the help text of the /garden command.
const Usage = "Usage: `/garden status` | `/garden stop <id>` | `/garden manual <id> <minutes>` | `/garden smart <id>` | `/garden restart <id>`"

var ErrBadCommand = errors.New("bad slash command")

// Command is a parsed /garden slash command.
type Command struct {
	Action  string
	PlantID int64
	Minutes float64
}

// ParseCommand parses the text following /garden.
func ParseCommand(text string) (Command, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{Action: ActionStatus}, nil
	}
	cmd := Command{Action: strings.ToLower(fields[0])}
	args := fields[1:]

	want := 1
	switch cmd.Action {
	case ActionStatus:
		want = 0
	case ActionStop, ActionSmart, ActionRestart:
	case ActionManual:
		want = 2
	default:
		return Command{}, fmt.Errorf("%w: unknown action %q", ErrBadCommand, fields[0])
	}
	if len(args) != want {
		return Command{}, fmt.Errorf("%w: %s takes %d argument(s)", ErrBadCommand, cmd.Action, want)
	}
	if want == 0 {
		return cmd, nil
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil || id <= 0 {
		return Command{}, fmt.Errorf("%w: invalid plant id %q", ErrBadCommand, args[0])
	}
	cmd.PlantID = id

	if cmd.Action == ActionManual {
		minutes, err := strconv.ParseFloat(args[1], 64)
		if err != nil || minutes <= 0 {
			return Command{}, fmt.Errorf("%w: invalid minutes %q", ErrBadCommand, args[1])
		}
		cmd.Minutes = minutes
	}
	return cmd, nil
}
