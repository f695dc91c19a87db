package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dennisdiepolder/monti/pbxlive/internal/ami"
	"github.com/dennisdiepolder/monti/pbxlive/internal/broadcast"
	"github.com/dennisdiepolder/monti/pbxlive/internal/callqueue"
	"github.com/dennisdiepolder/monti/pbxlive/internal/engine"
	"github.com/dennisdiepolder/monti/pbxlive/internal/event"
	"github.com/dennisdiepolder/monti/pbxlive/internal/storage"
	"github.com/dennisdiepolder/monti/pbxlive/internal/types"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newReplayCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <capture>",
		Short: "Replay a captured manager event stream and print the resulting live state",
		Long: `Replay feeds a raw manager interface capture ("Key: Value" blocks separated
by blank lines, "-" for stdin) through a local engine. Call records are kept in
memory and printed, and recordings are only reported, not started.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("opening capture: %w", err)
				}
				defer f.Close()
				in = f
			}

			catalog, err := callqueue.LoadCatalog(v.GetString("catalog"), v.GetInt("sl.threshold"), v.GetInt("sl.target"))
			if err != nil {
				return err
			}

			res, err := replay(cmd.Context(), in, replayOptions{
				catalog:      catalog,
				recordingDir: v.GetString("recording_dir"),
			}, newLogger(v))
			if err != nil {
				return err
			}

			printReplay(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().String("catalog", "", "Queue catalog file (yaml)")
	_ = v.BindPFlag("catalog", cmd.Flags().Lookup("catalog"))

	return cmd
}

type replayOptions struct {
	catalog      *callqueue.Catalog
	recordingDir string
}

type replayResult struct {
	Events     int
	Accepted   int
	Ignored    int
	Invalid    int
	Recordings []string
	Records    []types.CallRecord
	Snapshot   engine.Snapshot
}

// captureRecorder notes recording requests instead of sending them to a PBX
type captureRecorder struct {
	files []string
}

func (r *captureRecorder) StartRecording(_ context.Context, _, file string) error {
	r.files = append(r.files, file)
	return nil
}

// syncAsync completes recording work on the calling goroutine
type syncAsync struct{}

func (syncAsync) Run(work func() error, then func(error)) { then(work()) }

func replay(ctx context.Context, r io.Reader, opts replayOptions, logger zerolog.Logger) (replayResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store := storage.NewMemoryStore()
	gateway := storage.NewGateway(store, 256, logger)
	gatewayCtx, stopGateway := context.WithCancel(context.Background())
	defer stopGateway()
	go gateway.Run(gatewayCtx)

	recorder := &captureRecorder{}
	eng := engine.New(engine.Config{RecordingDir: opts.recordingDir}, engine.Deps{
		Persist:   gateway,
		Recorder:  recorder,
		Publisher: broadcast.NewPublisher(logger),
		Catalog:   opts.catalog,
		Async:     syncAsync{},
	}, logger)
	go eng.Run(ctx)

	var res replayResult
	parser := ami.NewParser(r)
	for {
		raw, err := parser.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("reading capture: %w", err)
		}
		res.Events++

		ev, err := event.Normalize(raw)
		switch {
		case errors.Is(err, event.ErrIgnored):
			res.Ignored++
			continue
		case err != nil:
			res.Invalid++
			logger.Debug().Err(err).Msg("skipping event")
			continue
		}

		if err := eng.Submit(ctx, ev); err != nil {
			return res, fmt.Errorf("submitting event: %w", err)
		}
		res.Accepted++
	}

	snap, err := eng.Snapshot(ctx)
	if err != nil {
		return res, fmt.Errorf("reading live state: %w", err)
	}
	res.Snapshot = snap
	res.Recordings = recorder.files

	stopGateway()
	<-gateway.Done()
	res.Records = store.CallRecords()

	return res, nil
}

func printReplay(w io.Writer, res replayResult) {
	fmt.Fprintln(w, color.CyanString("Call records"))
	renderCallRecords(w, res.Records)

	fmt.Fprintln(w, color.CyanString("Ongoing calls"))
	renderCalls(w, res.Snapshot.OngoingCalls)

	fmt.Fprintln(w, color.CyanString("Queue callers"))
	renderCallers(w, res.Snapshot.QueueCallers)

	fmt.Fprintln(w, color.CyanString("Agents"))
	renderAgents(w, res.Snapshot.Agents)

	fmt.Fprintln(w, color.CyanString("Queue statistics (%s)", res.Snapshot.QueueStats.Date))
	renderQueueStats(w, res.Snapshot.QueueStats.Queues)

	for _, f := range res.Recordings {
		fmt.Fprintf(w, "recording requested: %s\n", f)
	}

	fmt.Fprintln(w, color.GreenString("✓ Replayed %d events: %d accepted, %d ignored", res.Events, res.Accepted, res.Ignored))
	if res.Invalid > 0 {
		fmt.Fprintln(w, color.RedString("✗ %d events were missing mandatory fields", res.Invalid))
	}
}
