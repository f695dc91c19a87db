package calls

import "github.com/dennisdiepolder/monti/pbxlive/internal/types"

// Q.850 cause descriptions for logs and call records
var causeText = map[int]string{
	0:   "Unknown",
	1:   "Unallocated number",
	3:   "No route to destination",
	16:  "Normal clearing",
	17:  "User busy",
	18:  "No user responding",
	19:  "No answer",
	20:  "Subscriber absent",
	21:  "Call rejected",
	26:  "Answered elsewhere",
	27:  "Destination out of order",
	28:  "Invalid number format",
	31:  "Normal, unspecified",
	34:  "No circuit available",
	38:  "Network out of order",
	41:  "Temporary failure",
	42:  "Switching equipment congestion",
	127: "Interworking, unspecified",
}

// StatusForCause maps a hangup cause to the terminal status of an answered call
func StatusForCause(cause int) types.CallStatus {
	switch cause {
	case 17:
		return types.CallStatusBusy
	case 18, 19:
		return types.CallStatusUnanswered
	case 1, 3, 21, 27, 34, 38, 41, 42, 127:
		return types.CallStatusFailed
	default:
		return types.CallStatusCompleted
	}
}

// CauseText describes a hangup cause. Empty when the code is not in the table.
func CauseText(cause int) string {
	return causeText[cause]
}
