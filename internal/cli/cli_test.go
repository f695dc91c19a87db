package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dennisdiepolder/monti/pbxlive/internal/callqueue"
	"github.com/dennisdiepolder/monti/pbxlive/internal/storage"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

const capture = "Asterisk Call Manager/5.0.1\r\n" +
	"Response: Success\r\nMessage: Authentication accepted\r\n\r\n" +
	"Event: QueueCallerJoin\r\nQueue: support\r\nUniqueid: 1700000000.1\r\nLinkedid: 1700000000.1\r\n" +
	"CallerIDNum: 5551234\r\nCallerIDName: Alice\r\nPosition: 1\r\n\r\n" +
	"Event: PeerStatus\r\nPeer: PJSIP/1001\r\n\r\n" +
	"Event: Hangup\r\nChannel: PJSIP/1001-00000001\r\n\r\n"

func init() {
	color.NoColor = true
}

func TestReplay(t *testing.T) {
	catalog := callqueue.NewCatalog(60, 80, callqueue.QueueConfig{ID: "support", Name: "Support"})

	res, err := replay(context.Background(), strings.NewReader(capture), replayOptions{
		catalog:      catalog,
		recordingDir: t.TempDir(),
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	if res.Events != 4 {
		t.Errorf("expected 4 events, got %d", res.Events)
	}
	if res.Accepted != 1 {
		t.Errorf("expected 1 accepted, got %d", res.Accepted)
	}
	if res.Ignored != 2 {
		t.Errorf("expected 2 ignored, got %d", res.Ignored)
	}
	if res.Invalid != 1 {
		t.Errorf("expected 1 invalid, got %d", res.Invalid)
	}

	callers := res.Snapshot.QueueCallers
	if len(callers) != 1 {
		t.Fatalf("expected 1 queue caller, got %d", len(callers))
	}
	if callers[0].QueueName != "Support" {
		t.Errorf("expected queue name Support, got %s", callers[0].QueueName)
	}
	if res.Snapshot.QueueStats.Summary.Total != 1 {
		t.Errorf("expected 1 offered call, got %d", res.Snapshot.QueueStats.Summary.Total)
	}

	// The queue join is persisted even though no ringing record was written
	if len(res.Records) != 1 {
		t.Fatalf("expected 1 call record, got %d", len(res.Records))
	}
	if r := res.Records[0]; r.CorrelationID != "1700000000.1" || r.QueueID != "support" {
		t.Errorf("unexpected call record %+v", r)
	}
}

func TestReplayCommand(t *testing.T) {
	t.Setenv("STORE_MODE", "")
	path := filepath.Join(t.TempDir(), "capture.txt")
	if err := os.WriteFile(path, []byte(capture), 0o644); err != nil {
		t.Fatalf("failed to write capture: %v", err)
	}

	var out bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"replay", path})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("replay command failed: %v", err)
	}

	if !strings.Contains(out.String(), "Replayed 4 events: 1 accepted, 2 ignored") {
		t.Errorf("missing summary line in output:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "Alice <5551234>") {
		t.Errorf("expected waiting caller in output:\n%s", out.String())
	}
}

func TestHistoryCommandsRequireStore(t *testing.T) {
	t.Setenv("STORE_MODE", "")

	for _, args := range [][]string{
		{"shifts", "1001"},
		{"queue-stats", "support"},
		{"agents"},
	} {
		t.Run(args[0], func(t *testing.T) {
			cmd := NewRootCommand()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs(args)

			err := cmd.ExecuteContext(context.Background())
			if err == nil || !strings.Contains(err.Error(), "no store configured") {
				t.Errorf("expected missing store error, got %v", err)
			}
		})
	}
}

func TestStoreConfig(t *testing.T) {
	t.Setenv("STORE_MODE", "")

	tests := []struct {
		name    string
		set     map[string]string
		mode    storage.Mode
		wantErr bool
	}{
		{"none", nil, storage.ModeNone, true},
		{"postgres", map[string]string{"store.mode": "postgres", "store.database_url": "postgres://db/pbx"}, storage.ModePostgres, false},
		{"dynamo local", map[string]string{"store.mode": "dynamodb-local", "store.endpoint": "http://dynamo:8000"}, storage.ModeDynamoLocal, false},
		{"unknown", map[string]string{"store.mode": "sqlite"}, storage.Mode("sqlite"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			for k, val := range tt.set {
				v.Set(k, val)
			}

			cfg, err := storeConfig(v)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if cfg.Mode != tt.mode {
				t.Errorf("expected mode %s, got %s", tt.mode, cfg.Mode)
			}
			if url := tt.set["store.database_url"]; url != "" && cfg.DatabaseURL != url {
				t.Errorf("expected database url %s, got %s", url, cfg.DatabaseURL)
			}
			if ep := tt.set["store.endpoint"]; ep != "" && cfg.Endpoint != ep {
				t.Errorf("expected endpoint %s, got %s", ep, cfg.Endpoint)
			}
		})
	}
}

func TestStatsBetween(t *testing.T) {
	records := []types.QueueStats{
		{QueueID: "support", Date: "2026-03-03"},
		{QueueID: "support", Date: "2026-03-01"},
		{QueueID: "support", Date: "2026-03-02"},
	}

	tests := []struct {
		name     string
		from, to string
		expected []string
	}{
		{"open", "", "", []string{"2026-03-01", "2026-03-02", "2026-03-03"}},
		{"from", "2026-03-02", "", []string{"2026-03-02", "2026-03-03"}},
		{"to", "", "2026-03-01", []string{"2026-03-01"}},
		{"empty range", "2026-03-04", "2026-03-05", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := statsBetween(records, tt.from, tt.to)
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %d records, got %d", len(tt.expected), len(got))
			}
			for i, d := range tt.expected {
				if got[i].Date != d {
					t.Errorf("record %d: expected %s, got %s", i, d, got[i].Date)
				}
			}
		})
	}
}

func TestNewestShifts(t *testing.T) {
	base := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	shifts := []types.ShiftRecord{
		{ShiftID: "a", StartTime: base},
		{ShiftID: "c", StartTime: base.Add(48 * time.Hour)},
		{ShiftID: "b", StartTime: base.Add(24 * time.Hour)},
	}

	got := newestShifts(shifts, 2)
	if len(got) != 2 {
		t.Fatalf("expected 2 shifts, got %d", len(got))
	}
	if got[0].ShiftID != "c" || got[1].ShiftID != "b" {
		t.Errorf("expected c, b, got %s, %s", got[0].ShiftID, got[1].ShiftID)
	}
}

func TestRenderShifts(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)

	var buf bytes.Buffer
	renderShifts(&buf, []types.ShiftRecord{
		{ShiftID: "s1", StartTime: start, EndTime: &end, DurationSeconds: 5400, OfflineReason: "unavailable"},
		{ShiftID: "s2", StartTime: end.Add(time.Hour)},
	})

	out := buf.String()
	for _, want := range []string{"s1", "1h30m0s", "unavailable", "s2", "open"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestRenderAgents(t *testing.T) {
	var buf bytes.Buffer
	renderAgents(&buf, []types.AgentView{
		{Extension: "1001", Name: "Bob", Status: types.AgentIdle, Queues: []string{"support", "sales"},
			Today: types.AgentCounters{TotalCalls: 3, Answered: 2, Missed: 1, AvgTalkTime: 65}},
	})

	out := buf.String()
	for _, want := range []string{"1001", "Bob", "idle", "support,sales", "1m5s"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		in       float64
		expected string
	}{
		{0, "0s"},
		{12.4, "12s"},
		{65, "1m5s"},
		{3600, "1h0m0s"},
	}
	for _, tt := range tests {
		if got := formatSeconds(tt.in); got != tt.expected {
			t.Errorf("formatSeconds(%v) = %s, expected %s", tt.in, got, tt.expected)
		}
	}
}
