// Package calls reconciles ringing, bridged and ongoing calls from the
// normalized event stream. All methods must be called from the engine worker.
package calls

import (
	"sort"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/broadcast"
	"github.com/dennisdiepolder/monti/pbxlive/internal/event"
	"github.com/dennisdiepolder/monti/pbxlive/internal/sched"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/rs/zerolog"
)

// Persister is the subset of the persistence gateway used for call records
type Persister interface {
	CreateCall(record types.CallRecord)
	UpdateCall(correlationID string, update types.CallUpdate)
}

type attribution struct {
	queueID string
	agent   string
	seen    time.Time
}

// Tracker owns RingingCall and OngoingCall entities keyed by correlation id.
// A correlation id lives in at most one of the two maps.
type Tracker struct {
	ringing   map[string]*types.RingingCall
	ongoing   map[string]*types.OngoingCall
	bridges   map[string]*types.Bridge
	recording map[string]bool // recording-started markers
	pending   map[string]*attribution

	now     sched.Clock
	persist Persister
	out     broadcast.Broadcaster
	logger  zerolog.Logger
}

// NewTracker creates an empty tracker
func NewTracker(clock sched.Clock, persist Persister, out broadcast.Broadcaster, logger zerolog.Logger) *Tracker {
	return &Tracker{
		ringing:   make(map[string]*types.RingingCall),
		ongoing:   make(map[string]*types.OngoingCall),
		bridges:   make(map[string]*types.Bridge),
		recording: make(map[string]bool),
		pending:   make(map[string]*attribution),
		now:       clock,
		persist:   persist,
		out:       out,
		logger:    logger.With().Str("component", "calls").Logger(),
	}
}

// OnRingStart records a ringing leg, creating the RingingCall on first sight
func (t *Tracker) OnRingStart(e event.RingStart) {
	if _, ok := t.ongoing[e.CorrelationID]; ok {
		// Extra legs offered after answer are not tracked
		return
	}

	now := t.now()
	rc, ok := t.ringing[e.CorrelationID]
	if !ok {
		rc = &types.RingingCall{
			CorrelationID: e.CorrelationID,
			Caller:        e.Caller,
			Destination:   e.Destination,
			Legs:          types.LegSet{},
			StartedAt:     now,
		}
		t.ringing[e.CorrelationID] = rc

		t.persist.CreateCall(types.CallRecord{
			CorrelationID: e.CorrelationID,
			DateKey:       now.Format(types.DateKeyFormat),
			Status:        types.CallStatusRinging,
			CallerNumber:  e.Caller.Number,
			CallerName:    e.Caller.Name,
			Destination:   e.Destination,
			StartedAt:     now,
			UpdatedAt:     now,
		})
	}
	rc.Legs.Add(e.Channel)

	t.logger.Debug().
		Str("correlation_id", e.CorrelationID).
		Str("channel", e.Channel).
		Int("legs", len(rc.Legs)).
		Msg("ringing")

	if !ok {
		t.out.Broadcast(broadcast.TopicCallEvent, ringingView(rc, now))
	}
}

// OnHangup removes a leg and finalizes the call when its leg set empties.
// It returns the terminal views of every call it finalized.
func (t *Tracker) OnHangup(e event.Hangup) []types.CallView {
	// A hung-up channel no longer counts towards any bridge
	for _, b := range t.bridges {
		b.Remove(e.Channel)
	}

	if rc, ok := t.ringing[e.CorrelationID]; ok {
		if !rc.Legs.Remove(e.Channel) || len(rc.Legs) > 0 {
			return nil
		}
		return []types.CallView{t.finalizeMissed(rc)}
	}

	if oc, ok := t.ongoing[e.CorrelationID]; ok {
		if !oc.Legs.Remove(e.Channel) || len(oc.Legs) > 0 {
			return nil
		}
		view := t.finalize(oc, e.Cause, e.CauseText)
		t.BroadcastOngoing()
		return []types.CallView{view}
	}

	// Neither map knows the correlation id: bridge events may have been
	// missed or duplicated, so drop any ongoing call holding this channel.
	var ended []types.CallView
	for _, oc := range t.ongoingByStart() {
		if !oc.Legs.Has(e.Channel) {
			continue
		}
		t.logger.Info().
			Str("correlation_id", oc.CorrelationID).
			Str("channel", e.Channel).
			Msg("sweeping ongoing call for unmatched hangup")
		ended = append(ended, t.finalize(oc, e.Cause, e.CauseText))
	}
	if len(ended) > 0 {
		t.BroadcastOngoing()
	}
	return ended
}

// OnHold puts the ongoing call on hold and starts hold accounting
func (t *Tracker) OnHold(correlationID string) {
	oc, ok := t.ongoing[correlationID]
	if !ok || oc.State == types.CallStatusOnHold {
		return
	}
	now := t.now()
	oc.State = types.CallStatusOnHold
	oc.HoldStartedAt = &now

	t.persist.UpdateCall(correlationID, types.CallUpdate{Status: types.Ptr(types.CallStatusOnHold)})
	t.BroadcastOngoing()
}

// OnUnhold resumes the call and accumulates the time spent on hold
func (t *Tracker) OnUnhold(correlationID string) {
	oc, ok := t.ongoing[correlationID]
	if !ok || oc.State != types.CallStatusOnHold {
		return
	}
	t.closeHold(oc, t.now())
	oc.State = types.CallStatusTalking

	t.persist.UpdateCall(correlationID, types.CallUpdate{
		Status:      types.Ptr(types.CallStatusTalking),
		HoldSeconds: types.Ptr(oc.HoldSeconds),
	})
	t.BroadcastOngoing()
}

// AttributeQueue tags the call with the queue it waited in
func (t *Tracker) AttributeQueue(correlationID, queueID string) {
	if oc, ok := t.ongoing[correlationID]; ok {
		oc.QueueID = queueID
		return
	}
	t.pendingFor(correlationID).queueID = queueID
}

// AttributeAgent tags the call with the agent that answered it
func (t *Tracker) AttributeAgent(correlationID, extension string) {
	if oc, ok := t.ongoing[correlationID]; ok {
		if oc.Agent == extension {
			return
		}
		oc.Agent = extension
		t.persist.UpdateCall(correlationID, types.CallUpdate{Agent: types.Ptr(extension)})
		t.BroadcastOngoing()
		return
	}
	t.pendingFor(correlationID).agent = extension
}

// PruneAttributions drops attributions for calls that were never answered
func (t *Tracker) PruneAttributions(maxAge time.Duration) int {
	cutoff := t.now().Add(-maxAge)
	n := 0
	for id, a := range t.pending {
		if a.seen.Before(cutoff) {
			delete(t.pending, id)
			n++
		}
	}
	return n
}

// Ongoing returns views of all ongoing calls, oldest first
func (t *Tracker) Ongoing() []types.CallView {
	now := t.now()
	calls := t.ongoingByStart()
	views := make([]types.CallView, 0, len(calls))
	for _, oc := range calls {
		views = append(views, ongoingView(oc, now))
	}
	return views
}

// Counts returns the number of ringing and ongoing calls
func (t *Tracker) Counts() (ringing, ongoing int) {
	return len(t.ringing), len(t.ongoing)
}

// IsRinging reports whether a RingingCall exists for the correlation id
func (t *Tracker) IsRinging(correlationID string) bool {
	_, ok := t.ringing[correlationID]
	return ok
}

// Call returns the ongoing call for the correlation id
func (t *Tracker) Call(correlationID string) (types.CallView, bool) {
	oc, ok := t.ongoing[correlationID]
	if !ok {
		return types.CallView{}, false
	}
	return ongoingView(oc, t.now()), true
}

// BroadcastOngoing publishes the full ongoing calls list
func (t *Tracker) BroadcastOngoing() {
	t.out.Broadcast(broadcast.TopicOngoingCalls, t.Ongoing())
}

// materialize turns an answered bridge into an OngoingCall. It is a no-op
// when one already exists for the correlation id.
func (t *Tracker) materialize(b *types.Bridge, recordingPath string) bool {
	if _, ok := t.ongoing[b.CorrelationID]; ok {
		return false
	}

	now := t.now()
	oc := &types.OngoingCall{
		CorrelationID: b.CorrelationID,
		Legs:          types.LegSet{},
		State:         types.CallStatusTalking,
		Caller:        b.Caller,
		Connected:     b.Connected,
		StartedAt:     now,
		AnsweredAt:    now,
		RecordingPath: recordingPath,
	}
	for _, ch := range b.Participants {
		oc.Legs.Add(ch)
	}

	if rc, ok := t.ringing[b.CorrelationID]; ok {
		oc.StartedAt = rc.StartedAt
		oc.Destination = rc.Destination
		if oc.Caller.Number == "" {
			oc.Caller = rc.Caller
		}
		delete(t.ringing, b.CorrelationID)
	}
	if a, ok := t.pending[b.CorrelationID]; ok {
		oc.QueueID = a.queueID
		oc.Agent = a.agent
		delete(t.pending, b.CorrelationID)
	}
	t.ongoing[b.CorrelationID] = oc

	// The ringing record may never have been written if no dial was seen
	t.persist.CreateCall(types.CallRecord{
		CorrelationID: oc.CorrelationID,
		DateKey:       oc.StartedAt.Format(types.DateKeyFormat),
		Status:        types.CallStatusAnswered,
		CallerNumber:  oc.Caller.Number,
		CallerName:    oc.Caller.Name,
		Destination:   oc.Destination,
		StartedAt:     oc.StartedAt,
		UpdatedAt:     now,
	})
	update := types.CallUpdate{
		Status:        types.Ptr(types.CallStatusAnswered),
		AnsweredAt:    types.Ptr(now),
		RecordingPath: types.Ptr(recordingPath),
	}
	if oc.QueueID != "" {
		update.QueueID = types.Ptr(oc.QueueID)
	}
	if oc.Agent != "" {
		update.Agent = types.Ptr(oc.Agent)
	}
	t.persist.UpdateCall(oc.CorrelationID, update)

	t.logger.Info().
		Str("correlation_id", oc.CorrelationID).
		Strs("legs", oc.Legs.Sorted()).
		Str("recording", recordingPath).
		Msg("call answered")

	answered := ongoingView(oc, now)
	answered.Status = types.CallStatusAnswered
	t.out.Broadcast(broadcast.TopicCallEvent, answered)
	t.BroadcastOngoing()
	return true
}

func (t *Tracker) finalizeMissed(rc *types.RingingCall) types.CallView {
	now := t.now()
	delete(t.ringing, rc.CorrelationID)
	delete(t.recording, rc.CorrelationID)

	view := ringingView(rc, now)
	view.Status = types.CallStatusMissed
	view.EndedAt = &now

	t.persist.UpdateCall(rc.CorrelationID, types.CallUpdate{
		Status:          types.Ptr(types.CallStatusMissed),
		EndedAt:         types.Ptr(now),
		DurationSeconds: types.Ptr(view.DurationSeconds),
	})

	t.logger.Info().Str("correlation_id", rc.CorrelationID).Msg("call missed")
	t.out.Broadcast(broadcast.TopicCallEvent, view)
	return view
}

func (t *Tracker) finalize(oc *types.OngoingCall, cause int, text string) types.CallView {
	now := t.now()
	t.closeHold(oc, now)

	delete(t.ongoing, oc.CorrelationID)
	delete(t.recording, oc.CorrelationID)
	delete(t.pending, oc.CorrelationID)
	for id, b := range t.bridges {
		if b.CorrelationID == oc.CorrelationID {
			delete(t.bridges, id)
		}
	}

	if text == "" {
		text = CauseText(cause)
	}
	view := ongoingView(oc, now)
	view.Status = StatusForCause(cause)
	view.EndedAt = &now
	view.Cause = cause
	view.CauseText = text

	t.persist.UpdateCall(oc.CorrelationID, types.CallUpdate{
		Status:          types.Ptr(view.Status),
		Cause:           types.Ptr(cause),
		CauseText:       types.Ptr(text),
		EndedAt:         types.Ptr(now),
		DurationSeconds: types.Ptr(view.DurationSeconds),
		HoldSeconds:     types.Ptr(oc.HoldSeconds),
	})

	t.logger.Info().
		Str("correlation_id", oc.CorrelationID).
		Str("status", string(view.Status)).
		Int("cause", cause).
		Msg("call ended")

	t.out.Broadcast(broadcast.TopicCallEvent, view)
	return view
}

func (t *Tracker) closeHold(oc *types.OngoingCall, now time.Time) {
	if oc.HoldStartedAt == nil {
		return
	}
	oc.HoldSeconds += now.Sub(*oc.HoldStartedAt).Seconds()
	oc.HoldStartedAt = nil
}

func (t *Tracker) pendingFor(correlationID string) *attribution {
	a, ok := t.pending[correlationID]
	if !ok {
		a = &attribution{}
		t.pending[correlationID] = a
	}
	a.seen = t.now()
	return a
}

func (t *Tracker) ongoingByStart() []*types.OngoingCall {
	out := make([]*types.OngoingCall, 0, len(t.ongoing))
	for _, oc := range t.ongoing {
		out = append(out, oc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].CorrelationID < out[j].CorrelationID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func ringingView(rc *types.RingingCall, now time.Time) types.CallView {
	return types.CallView{
		CorrelationID:   rc.CorrelationID,
		Status:          types.CallStatusRinging,
		Caller:          rc.Caller,
		Destination:     rc.Destination,
		Channels:        rc.Legs.Sorted(),
		StartedAt:       rc.StartedAt,
		DurationSeconds: now.Sub(rc.StartedAt).Seconds(),
	}
}

func ongoingView(oc *types.OngoingCall, now time.Time) types.CallView {
	v := types.CallView{
		CorrelationID:   oc.CorrelationID,
		Status:          oc.State,
		Caller:          oc.Caller,
		Destination:     oc.Destination,
		Channels:        oc.Legs.Sorted(),
		StartedAt:       oc.StartedAt,
		AnsweredAt:      types.Ptr(oc.AnsweredAt),
		DurationSeconds: now.Sub(oc.StartedAt).Seconds(),
		HoldSeconds:     oc.HoldSeconds,
		QueueID:         oc.QueueID,
		Agent:           oc.Agent,
		RecordingPath:   oc.RecordingPath,
	}
	if oc.HoldStartedAt != nil {
		v.HoldSeconds += now.Sub(*oc.HoldStartedAt).Seconds()
	}
	if oc.Connected.Number != "" || oc.Connected.Name != "" {
		v.Connected = types.Ptr(oc.Connected)
	}
	return v
}
