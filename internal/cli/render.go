package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
)

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetBorder(true)
	table.SetRowLine(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func renderCalls(w io.Writer, calls []types.CallView) {
	table := newTable(w, []string{"Correlation", "Status", "Caller", "Connected", "Queue", "Agent", "Duration", "Recording"})
	for _, c := range calls {
		connected := "-"
		if c.Connected != nil {
			connected = partyText(*c.Connected)
		}
		table.Append([]string{
			c.CorrelationID,
			callStatusText(c.Status),
			partyText(c.Caller),
			connected,
			dash(c.QueueID),
			dash(c.Agent),
			formatSeconds(c.DurationSeconds),
			dash(c.RecordingPath),
		})
	}
	table.Render()
}

func renderCallRecords(w io.Writer, records []types.CallRecord) {
	table := newTable(w, []string{"Correlation", "Started", "Status", "Caller", "Destination", "Queue", "Outcome", "Agent", "Wait", "Duration"})
	for _, r := range records {
		table.Append([]string{
			r.CorrelationID,
			formatTime(r.StartedAt),
			callStatusText(r.Status),
			partyText(types.Party{Number: r.CallerNumber, Name: r.CallerName}),
			dash(r.Destination),
			dash(r.QueueID),
			dash(r.QueueOutcome),
			dash(r.Agent),
			formatSeconds(r.WaitSeconds),
			formatSeconds(r.DurationSeconds),
		})
	}
	table.Render()
}

func renderCallers(w io.Writer, callers []types.QueueCaller) {
	table := newTable(w, []string{"Queue", "Position", "Caller", "Waiting"})
	for _, c := range callers {
		table.Append([]string{
			c.QueueName,
			fmt.Sprintf("%d", c.Position),
			partyText(c.Caller),
			formatSeconds(c.WaitSeconds),
		})
	}
	table.Render()
}

func renderAgents(w io.Writer, agents []types.AgentView) {
	table := newTable(w, []string{"Extension", "Name", "Status", "Queues", "Calls", "Answered", "Missed", "Avg Talk"})
	for _, a := range agents {
		table.Append([]string{
			a.Extension,
			dash(a.Name),
			agentStatusText(a.Status),
			dash(strings.Join(a.Queues, ",")),
			fmt.Sprintf("%d", a.Today.TotalCalls),
			fmt.Sprintf("%d", a.Today.Answered),
			fmt.Sprintf("%d", a.Today.Missed),
			formatSeconds(a.Today.AvgTalkTime),
		})
	}
	table.Render()
}

func renderAgentRecords(w io.Writer, agents []types.AgentRecord) {
	table := newTable(w, []string{"Extension", "Name", "Status", "Queues", "Last Activity", "Calls Today", "Calls Overall"})
	for _, a := range agents {
		table.Append([]string{
			a.Extension,
			dash(a.Name),
			agentStatusText(a.Status),
			dash(strings.Join(a.Queues, ",")),
			formatTime(a.LastActivity),
			fmt.Sprintf("%d", a.Today.TotalCalls),
			fmt.Sprintf("%d", a.Overall.TotalCalls),
		})
	}
	table.Render()
}

func renderQueueStats(w io.Writer, stats []types.QueueStats) {
	table := newTable(w, []string{"Date", "Queue", "Total", "Answered", "Abandoned", "Missed", "SL %", "Answer %", "Avg Wait", "Avg Talk"})
	for _, s := range stats {
		table.Append([]string{
			s.Date,
			s.QueueName,
			fmt.Sprintf("%d", s.Total),
			fmt.Sprintf("%d", s.Answered),
			fmt.Sprintf("%d", s.Abandoned),
			fmt.Sprintf("%d", s.Missed),
			serviceLevelText(s.ServiceLevel),
			fmt.Sprintf("%.1f", s.AnswerRate),
			formatSeconds(s.AvgWaitTime),
			formatSeconds(s.AvgTalkTime),
		})
	}
	table.Render()
}

func renderShifts(w io.Writer, shifts []types.ShiftRecord) {
	table := newTable(w, []string{"Shift", "Start", "End", "Duration", "Reason"})
	for _, s := range shifts {
		end := color.GreenString("open")
		if s.EndTime != nil {
			end = formatTime(*s.EndTime)
		} else if s.PendingEndUntil != nil {
			end = color.YellowString("pending until %s", formatTime(*s.PendingEndUntil))
		}
		table.Append([]string{
			s.ShiftID,
			formatTime(s.StartTime),
			end,
			formatSeconds(s.DurationSeconds),
			dash(s.OfflineReason),
		})
	}
	table.Render()
}

func agentStatusText(s types.AgentStatus) string {
	switch s {
	case types.AgentIdle:
		return color.GreenString(string(s))
	case types.AgentInUse, types.AgentBusy, types.AgentRinging:
		return color.YellowString(string(s))
	case types.AgentUnavailable:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}

func callStatusText(s types.CallStatus) string {
	switch s {
	case types.CallStatusTalking, types.CallStatusAnswered, types.CallStatusCompleted:
		return color.GreenString(string(s))
	case types.CallStatusRinging, types.CallStatusOnHold:
		return color.YellowString(string(s))
	case types.CallStatusMissed, types.CallStatusBusy, types.CallStatusUnanswered, types.CallStatusFailed:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}

// serviceLevelText colours the day's service level against its target
func serviceLevelText(sl types.ServiceLevel) string {
	text := fmt.Sprintf("%.1f", sl.CurrentSL)
	if sl.TotalOffered == 0 {
		return text
	}
	if sl.CurrentSL >= float64(sl.Target) {
		return color.GreenString(text)
	}
	return color.RedString(text)
}

func partyText(p types.Party) string {
	switch {
	case p.Name != "" && p.Number != "":
		return fmt.Sprintf("%s <%s>", p.Name, p.Number)
	case p.Number != "":
		return p.Number
	default:
		return dash(p.Name)
	}
}

func formatSeconds(s float64) string {
	return (time.Duration(s * float64(time.Second))).Round(time.Second).String()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
