package event

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dennisdiepolder/monti/pbxlive/internal/ami"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
)

var (
	// ErrIgnored marks manager messages that carry nothing the engine tracks
	ErrIgnored = errors.New("event ignored")
	// ErrMissingField marks events dropped for lacking a mandatory field
	ErrMissingField = errors.New("missing mandatory field")
)

func missing(name, field string) error {
	return fmt.Errorf("%s: %w %q", name, ErrMissingField, field)
}

// Normalize projects a raw manager event into its typed form
func Normalize(raw ami.Event) (Event, error) {
	name := raw.Type()
	switch name {
	case "DialBegin":
		corr := raw.First("DestLinkedid", "Linkedid")
		if corr == "" {
			return nil, missing(name, "Linkedid")
		}
		channel := raw.Get("DestChannel")
		if channel == "" {
			return nil, missing(name, "DestChannel")
		}
		return RingStart{
			CorrelationID: corr,
			Channel:       channel,
			Caller:        party(raw, "CallerIDNum", "CallerIDName"),
			Destination:   raw.First("DestExten", "DialString", "DestCallerIDNum"),
		}, nil

	case "BridgeEnter":
		bridgeID := raw.Get("BridgeUniqueid")
		if bridgeID == "" {
			return nil, missing(name, "BridgeUniqueid")
		}
		corr := raw.Get("Linkedid")
		if corr == "" {
			return nil, missing(name, "Linkedid")
		}
		channel := raw.Get("Channel")
		if channel == "" {
			return nil, missing(name, "Channel")
		}
		return BridgeEnter{
			BridgeID:      bridgeID,
			CorrelationID: corr,
			Channel:       channel,
			Caller:        party(raw, "CallerIDNum", "CallerIDName"),
			Connected:     party(raw, "ConnectedLineNum", "ConnectedLineName"),
		}, nil

	case "BridgeDestroy":
		bridgeID := raw.Get("BridgeUniqueid")
		if bridgeID == "" {
			return nil, missing(name, "BridgeUniqueid")
		}
		return BridgeDestroy{BridgeID: bridgeID}, nil

	case "Hangup":
		corr := raw.Get("Linkedid")
		if corr == "" {
			return nil, missing(name, "Linkedid")
		}
		channel := raw.Get("Channel")
		if channel == "" {
			return nil, missing(name, "Channel")
		}
		return Hangup{
			CorrelationID: corr,
			Channel:       channel,
			Cause:         raw.GetInt("Cause"),
			CauseText:     raw.Get("Cause-txt"),
		}, nil

	case "Hold", "Unhold":
		corr := raw.Get("Linkedid")
		if corr == "" {
			return nil, missing(name, "Linkedid")
		}
		if name == "Hold" {
			return Hold{CorrelationID: corr, Channel: raw.Get("Channel")}, nil
		}
		return Unhold{CorrelationID: corr, Channel: raw.Get("Channel")}, nil

	case "QueueCallerJoin", "QueueCallerLeave", "QueueCallerAbandon":
		return normalizeQueueCaller(name, raw)

	case "QueueMember", "QueueMemberStatus", "QueueMemberAdded":
		queue := raw.Get("Queue")
		if queue == "" {
			return nil, missing(name, "Queue")
		}
		location := raw.First("Location", "Interface")
		if location == "" {
			return nil, missing(name, "Interface")
		}
		return QueueMember{
			QueueID:        queue,
			Location:       location,
			Name:           raw.First("MemberName", "Name"),
			StateInterface: raw.Get("StateInterface"),
			Status:         memberStatus(raw.Get("Status")),
			Paused:         flag(raw.Get("Paused")),
			PausedReason:   raw.Get("PausedReason"),
			InCall:         flag(raw.Get("InCall")),
			CallsTaken:     raw.GetInt("CallsTaken"),
			LastCall:       int64(raw.GetInt("LastCall")),
			Penalty:        raw.GetInt("Penalty"),
		}, nil

	case "QueueMemberRemoved":
		queue := raw.Get("Queue")
		if queue == "" {
			return nil, missing(name, "Queue")
		}
		location := raw.First("Location", "Interface")
		if location == "" {
			return nil, missing(name, "Interface")
		}
		return QueueMemberRemoved{QueueID: queue, Location: location}, nil

	case "AgentCalled", "AgentConnect", "AgentComplete", "AgentRingNoAnswer":
		return normalizeAgent(name, raw)

	case "DeviceStateChange":
		device := raw.Get("Device")
		if device == "" {
			return nil, missing(name, "Device")
		}
		if !isEndpointDevice(device) {
			return nil, ErrIgnored
		}
		ext := ExtensionFromInterface(device)
		if ext == "" {
			return nil, missing(name, "Device")
		}
		return Presence{Extension: ext, Device: device, DeviceState: raw.Get("State")}, nil

	case "EndpointList":
		ext := raw.Get("ObjectName")
		if ext == "" {
			return nil, missing(name, "ObjectName")
		}
		return Presence{Extension: ext, Device: "PJSIP/" + ext, DeviceState: raw.Get("DeviceState")}, nil
	}

	return nil, ErrIgnored
}

func normalizeQueueCaller(name string, raw ami.Event) (Event, error) {
	queue := raw.Get("Queue")
	if queue == "" {
		return nil, missing(name, "Queue")
	}
	callID := raw.Get("Uniqueid")
	if callID == "" {
		return nil, missing(name, "Uniqueid")
	}
	corr := raw.First("Linkedid", "Uniqueid")

	switch name {
	case "QueueCallerJoin":
		return QueueJoin{
			QueueID:       queue,
			CallID:        callID,
			CorrelationID: corr,
			Position:      raw.GetInt("Position"),
			Caller:        party(raw, "CallerIDNum", "CallerIDName"),
		}, nil
	case "QueueCallerLeave":
		return QueueLeave{QueueID: queue, CallID: callID, CorrelationID: corr, Position: raw.GetInt("Position")}, nil
	default:
		return QueueAbandon{
			QueueID:          queue,
			CallID:           callID,
			CorrelationID:    corr,
			Position:         raw.GetInt("Position"),
			OriginalPosition: raw.GetInt("OriginalPosition"),
			HoldTime:         raw.GetFloat("HoldTime"),
		}, nil
	}
}

func normalizeAgent(name string, raw ami.Event) (Event, error) {
	iface := raw.First("Interface", "MemberName", "AgentName")
	if iface == "" {
		return nil, missing(name, "Interface")
	}
	ext := ExtensionFromInterface(iface)
	if ext == "" {
		return nil, missing(name, "Interface")
	}
	queue := raw.Get("Queue")
	corr := raw.First("Linkedid", "DestLinkedid")

	switch name {
	case "AgentCalled":
		return AgentCalled{Extension: ext, Interface: iface, QueueID: queue, CorrelationID: corr}, nil
	case "AgentConnect":
		return AgentConnect{
			Extension:     ext,
			Interface:     iface,
			QueueID:       queue,
			CorrelationID: corr,
			HoldTime:      raw.GetFloat("HoldTime"),
			RingTime:      raw.GetFloat("RingTime"),
		}, nil
	case "AgentComplete":
		return AgentComplete{
			Extension:     ext,
			Interface:     iface,
			QueueID:       queue,
			CorrelationID: corr,
			HoldTime:      raw.GetFloat("HoldTime"),
			TalkTime:      raw.GetFloat("TalkTime"),
			Reason:        raw.Get("Reason"),
		}, nil
	default:
		// AgentRingNoAnswer reports RingTime in milliseconds
		return AgentRingNoAnswer{
			Extension:     ext,
			Interface:     iface,
			QueueID:       queue,
			CorrelationID: corr,
			RingTime:      raw.GetFloat("RingTime") / 1000,
		}, nil
	}
}

// ExtensionFromInterface extracts the extension from an interface or
// channel name: "PJSIP/1001", "Local/1001@from-queue/n" and
// "PJSIP/1001-0000002a" all yield "1001".
func ExtensionFromInterface(iface string) string {
	s := iface
	if _, rest, ok := strings.Cut(s, "/"); ok {
		s = rest
	}
	if i := strings.IndexAny(s, "@/"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "-"); i > 0 && isHex(s[i+1:]) && len(s)-i-1 >= 8 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", r) {
			return false
		}
	}
	return true
}

func isEndpointDevice(device string) bool {
	tech, _, ok := strings.Cut(device, "/")
	if !ok {
		return false
	}
	switch strings.ToUpper(tech) {
	case "PJSIP", "SIP", "IAX2", "AGENT":
		return true
	}
	return false
}

func party(raw ami.Event, numKey, nameKey string) types.Party {
	p := types.Party{Number: raw.Get(numKey), Name: raw.Get(nameKey)}
	if p.Number == "<unknown>" {
		p.Number = ""
	}
	if p.Name == "<unknown>" {
		p.Name = ""
	}
	return p
}

func flag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "yes", "true":
		return true
	}
	return false
}

// memberStatus maps the numeric AST_DEVICE_* status of queue members
func memberStatus(v string) string {
	switch strings.TrimSpace(v) {
	case "1":
		return "NOT_INUSE"
	case "2":
		return "INUSE"
	case "3":
		return "BUSY"
	case "4":
		return "INVALID"
	case "5":
		return "UNAVAILABLE"
	case "6":
		return "RINGING"
	case "7":
		return "RINGINUSE"
	case "8":
		return "ONHOLD"
	case "", "0":
		return "UNKNOWN"
	}
	return v
}
