package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Event metrics
	EventsReceivedTotal  int64
	EventsProcessedTotal int64
	eventsDropped        map[string]int64 // reason -> count

	// Broadcast metrics
	broadcastsByTopic map[string]int64
	sinkDrops         map[string]int64

	// WebSocket metrics
	WebSocketConnectionsTotal    int64
	WebSocketDisconnectionsTotal int64
	WebSocketSlowClientsTotal    int64
	activeConnections            int64

	// Persistence metrics
	PersistWritesTotal   int64
	PersistFailuresTotal int64
	PersistDroppedTotal  int64

	// PBX metrics
	RecordingsStartedTotal int64
	RecordingFailuresTotal int64
	AMIReconnectsTotal     int64
	PollFailuresTotal      int64

	// Live gauges
	ongoingCalls int
	queueCallers int
	agentsOnline int

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			eventsDropped:     make(map[string]int64),
			broadcastsByTopic: make(map[string]int64),
			sinkDrops:         make(map[string]int64),
			startTime:         time.Now(),
		}
	})
	return instance
}

// RecordEventReceived increments the events received counter
func (m *Metrics) RecordEventReceived() {
	m.mu.Lock()
	m.EventsReceivedTotal++
	m.mu.Unlock()
}

// RecordEventProcessed increments the events processed counter
func (m *Metrics) RecordEventProcessed() {
	m.mu.Lock()
	m.EventsProcessedTotal++
	m.mu.Unlock()
}

// RecordEventDropped counts an event dropped for reason
func (m *Metrics) RecordEventDropped(reason string) {
	m.mu.Lock()
	m.eventsDropped[reason]++
	m.mu.Unlock()
}

// EventsDropped returns the drop count for reason
func (m *Metrics) EventsDropped(reason string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eventsDropped[reason]
}

// RecordBroadcast counts a published snapshot
func (m *Metrics) RecordBroadcast(topic string) {
	m.mu.Lock()
	m.broadcastsByTopic[topic]++
	m.mu.Unlock()
}

// RecordSinkDrop counts a message a sink could not accept
func (m *Metrics) RecordSinkDrop(sink string) {
	m.mu.Lock()
	m.sinkDrops[sink]++
	m.mu.Unlock()
}

// RecordWebSocketConnect increments connection counters
func (m *Metrics) RecordWebSocketConnect() {
	m.mu.Lock()
	m.WebSocketConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordWebSocketDisconnect increments disconnection counter
func (m *Metrics) RecordWebSocketDisconnect() {
	m.mu.Lock()
	m.WebSocketDisconnectionsTotal++
	m.activeConnections--
	m.mu.Unlock()
}

// RecordSlowClient counts a client dropped for a full send buffer
func (m *Metrics) RecordSlowClient() {
	m.mu.Lock()
	m.WebSocketSlowClientsTotal++
	m.mu.Unlock()
}

// RecordPersistWrite counts a completed storage write
func (m *Metrics) RecordPersistWrite() {
	m.mu.Lock()
	m.PersistWritesTotal++
	m.mu.Unlock()
}

// RecordPersistFailure counts a failed storage write
func (m *Metrics) RecordPersistFailure() {
	m.mu.Lock()
	m.PersistFailuresTotal++
	m.mu.Unlock()
}

// RecordPersistDropped counts a write dropped because the queue was full
func (m *Metrics) RecordPersistDropped() {
	m.mu.Lock()
	m.PersistDroppedTotal++
	m.mu.Unlock()
}

// RecordRecording counts a recording start attempt
func (m *Metrics) RecordRecording(err error) {
	m.mu.Lock()
	if err != nil {
		m.RecordingFailuresTotal++
	} else {
		m.RecordingsStartedTotal++
	}
	m.mu.Unlock()
}

// RecordAMIReconnect counts a manager reconnect
func (m *Metrics) RecordAMIReconnect() {
	m.mu.Lock()
	m.AMIReconnectsTotal++
	m.mu.Unlock()
}

// RecordPollFailure counts a failed status poll
func (m *Metrics) RecordPollFailure() {
	m.mu.Lock()
	m.PollFailuresTotal++
	m.mu.Unlock()
}

// UpdateLive sets the live entity gauges
func (m *Metrics) UpdateLive(ongoingCalls, queueCallers, agentsOnline int) {
	m.mu.Lock()
	m.ongoingCalls = ongoingCalls
	m.queueCallers = queueCallers
	m.agentsOnline = agentsOnline
	m.mu.Unlock()
}

// GetActiveConnections returns current WebSocket connections
func (m *Metrics) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConnections
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		write("pbxlive_uptime_seconds", time.Since(m.startTime).Seconds())

		write("pbxlive_events_received_total", m.EventsReceivedTotal)
		write("pbxlive_events_processed_total", m.EventsProcessedTotal)
		for reason, count := range m.eventsDropped {
			write("pbxlive_events_dropped_total", count, "reason", reason)
		}

		for topic, count := range m.broadcastsByTopic {
			write("pbxlive_broadcasts_total", count, "topic", topic)
		}
		for sink, count := range m.sinkDrops {
			write("pbxlive_sink_dropped_total", count, "sink", sink)
		}

		write("pbxlive_websocket_connections_total", m.WebSocketConnectionsTotal)
		write("pbxlive_websocket_disconnections_total", m.WebSocketDisconnectionsTotal)
		write("pbxlive_websocket_active_connections", m.activeConnections)
		write("pbxlive_websocket_slow_clients_total", m.WebSocketSlowClientsTotal)

		write("pbxlive_persist_writes_total", m.PersistWritesTotal)
		write("pbxlive_persist_failures_total", m.PersistFailuresTotal)
		write("pbxlive_persist_dropped_total", m.PersistDroppedTotal)

		write("pbxlive_recordings_started_total", m.RecordingsStartedTotal)
		write("pbxlive_recording_failures_total", m.RecordingFailuresTotal)
		write("pbxlive_ami_reconnects_total", m.AMIReconnectsTotal)
		write("pbxlive_poll_failures_total", m.PollFailuresTotal)

		write("pbxlive_ongoing_calls", m.ongoingCalls)
		write("pbxlive_queue_callers", m.queueCallers)
		write("pbxlive_agents_online", m.agentsOnline)
	}
}
