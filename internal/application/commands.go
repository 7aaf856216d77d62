package application

import (
	"encoding/json"
	"strings"
)

// Commands understood by the dummy sensor. The payload is the bare word.
const (
	CommandStop    = "stop"
	CommandRestart = "restart"
)

// Switch actions.
const (
	ActionSwitchOpen  = "switch_open"
	ActionSwitchClose = "switch_close"
)

type switchCommand struct {
	Action string `json:"action"`
}

// parseSwitchAction returns the action of a {"action":"..."} payload, or ""
// when the payload is not a switch command.
func parseSwitchAction(payload []byte) string {
	var cmd switchCommand
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return ""
	}
	switch cmd.Action {
	case ActionSwitchOpen, ActionSwitchClose:
		return cmd.Action
	default:
		return ""
	}
}

// parseSensorCommand returns CommandStop or CommandRestart, or "".
func parseSensorCommand(payload []byte) string {
	switch cmd := strings.TrimSpace(string(payload)); cmd {
	case CommandStop, CommandRestart:
		return cmd
	default:
		return ""
	}
}
