package agents

import (
	"strings"

	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
)

// PBX device state vocabulary, both the constant form and the display form
var deviceStates = map[string]types.AgentStatus{
	"not_inuse":   types.AgentIdle,
	"not in use":  types.AgentIdle,
	"inuse":       types.AgentInUse,
	"in use":      types.AgentInUse,
	"onhold":      types.AgentInUse,
	"on hold":     types.AgentInUse,
	"busy":        types.AgentBusy,
	"ringing":     types.AgentRinging,
	"ringinuse":   types.AgentRinging,
	"unavailable": types.AgentUnavailable,
	"invalid":     types.AgentUnavailable,
}

// StatusForDeviceState maps a device state string to an agent status
func StatusForDeviceState(state string) types.AgentStatus {
	if s, ok := deviceStates[strings.ToLower(strings.TrimSpace(state))]; ok {
		return s
	}
	return types.AgentUnknown
}
