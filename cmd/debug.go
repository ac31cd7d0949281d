package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mouse-blink/storyteller/internal/adapter"
	m "github.com/mouse-blink/storyteller/internal/model"
)

const defaultDAPListen = "127.0.0.1:4711"

var debugListenFlag string
var debugAdapterFlag string
var debugAdapterCmdFlag string
var debugReplayFlag string
var debugRecordFlag string
var debugNameFlag string
var debugTrackFlags []string
var debugNoArchiveFlag bool

func newDebugCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Record a live or replayed Debug Adapter Protocol session",
		Long: `Debug sits between a DAP client (an editor) and a debug adapter. It
forwards all traffic unchanged while recording stack traces, variable values
and side effects. When the session ends the results are printed and archived.

  storyteller debug --adapter 127.0.0.1:9229 --listen 127.0.0.1:4711
  storyteller debug --adapter-cmd "python -m debugpy.adapter" --record run.jsonl
  storyteller debug --replay run.jsonl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			for _, name := range debugTrackFlags {
				if err := workspace.Variables.StartTracking(name, m.Document{}); err != nil {
					return err
				}
			}

			workspace.Dispatcher.Observe(ui)

			return startUI("debug", func() error {
				info, err := runDebugSession(ctx, cmd.ErrOrStderr())
				if err != nil {
					return err
				}

				return finishSession(ctx, cmd.OutOrStdout(), info)
			})
		},
	}
	cmd.Flags().StringVar(&debugListenFlag, "listen", defaultDAPListen, "address the DAP client connects to")
	cmd.Flags().StringVar(&debugAdapterFlag, "adapter", "", "address of a debug adapter listening on TCP")
	cmd.Flags().StringVar(&debugAdapterCmdFlag, "adapter-cmd", "", "command that starts a debug adapter speaking DAP on stdio")
	cmd.Flags().StringVar(&debugReplayFlag, "replay", "", "replay a recorded message log instead of proxying")
	cmd.Flags().StringVar(&debugRecordFlag, "record", "", "write every dispatched message to this JSONL file")
	cmd.Flags().StringVar(&debugNameFlag, "name", "debug", "session name")
	cmd.Flags().StringArrayVarP(&debugTrackFlags, "track", "t", nil, "variable to track (can be repeated)")
	cmd.Flags().BoolVar(&debugNoArchiveFlag, "no-archive", false, "do not archive the session")
	cmd.MarkFlagsMutuallyExclusive("adapter", "adapter-cmd", "replay")

	return cmd
}

func runDebugSession(ctx context.Context, status io.Writer) (m.SessionInfo, error) {
	if debugReplayFlag != "" {
		return replaySession(ctx)
	}

	return proxySession(ctx, status)
}

func replaySession(ctx context.Context) (m.SessionInfo, error) {
	f, err := os.Open(debugReplayFlag)
	if err != nil {
		return m.SessionInfo{}, fmt.Errorf("open replay log: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	session := adapter.NewReplaySession(debugNameFlag, f, workspace.Dispatcher, logger)

	count, err := session.Run(ctx)
	if err != nil {
		return m.SessionInfo{}, err
	}

	logger.Info("replay complete", "messages", count)

	return session.Info(), nil
}

func proxySession(ctx context.Context, status io.Writer) (m.SessionInfo, error) {
	adapterConn, err := connectAdapter(ctx)
	if err != nil {
		return m.SessionInfo{}, err
	}

	client, err := adapter.AcceptClient(ctx, debugListenFlag, func(addr net.Addr) {
		_, _ = fmt.Fprintf(status, "waiting for a DAP client on %s\n", addr)
	})
	if err != nil {
		_ = adapterConn.Close()

		return m.SessionInfo{}, err
	}

	options := []adapter.ProxyOption{adapter.WithProxyLogger(logger)}

	if debugRecordFlag != "" {
		record, err := os.Create(debugRecordFlag)
		if err != nil {
			_ = client.Close()
			_ = adapterConn.Close()

			return m.SessionInfo{}, fmt.Errorf("create record log: %w", err)
		}

		defer func() {
			_ = record.Close()
		}()

		options = append(options, adapter.WithRecorder(record))
	}

	proxy := adapter.NewProxySession(debugNameFlag, client, adapterConn, workspace.Dispatcher, options...)
	if err := proxy.Serve(ctx); err != nil {
		return proxy.Info(), err
	}

	return proxy.Info(), nil
}

func connectAdapter(ctx context.Context) (io.ReadWriteCloser, error) {
	switch {
	case debugAdapterCmdFlag != "":
		return adapter.StartAdapterProcess(ctx, strings.Fields(debugAdapterCmdFlag))
	case debugAdapterFlag != "":
		return adapter.DialAdapter(ctx, debugAdapterFlag)
	default:
		return nil, errors.New("one of --adapter, --adapter-cmd or --replay is required")
	}
}

// finishSession shows what the trackers recorded and archives it.
func finishSession(ctx context.Context, out io.Writer, info m.SessionInfo) error {
	endedAt := time.Now()

	if err := ui.UpdateCallGraph(workspace.CallGraph.Current()); err != nil {
		return err
	}

	if err := ui.UpdateSideEffects(workspace.SideEffects.Summary()); err != nil {
		return err
	}

	histories := workspace.Variables.All()

	names := make([]string, 0, len(histories))
	for name := range histories {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if err := ui.UpdateVariableHistory(histories[name]); err != nil {
			return err
		}
	}

	if debugNoArchiveFlag {
		return nil
	}

	err := withArchive(func(archive adapter.SessionArchive) error {
		return archive.Save(context.WithoutCancel(ctx), workspace.Snapshot(info, endedAt))
	})
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "\narchived session %s\n", info.ID)

	return nil
}

func init() {
	rootCmd.AddCommand(newDebugCmd())
}
