package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mouse-blink/storyteller/internal/adapter"
	"github.com/mouse-blink/storyteller/internal/controller"
	"github.com/mouse-blink/storyteller/internal/domain"
	m "github.com/mouse-blink/storyteller/internal/model"
)

const (
	shutdownTimeout = 5 * time.Second
	publishInterval = 250 * time.Millisecond
)

var visualizeAddrFlag string
var visualizeWatchFlag bool
var visualizeDAPListenFlag string
var visualizeDAPAdapterFlag string

// ErrUnsupportedFormat is returned by exportData for anything but json.
var ErrUnsupportedFormat = errors.New("unsupported export format")

func newVisualizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "visualize [FILE]",
		Short: "Serve live call graphs, effects and variables over a websocket",
		Long: `Visualize starts an HTTP server. Browsers connect to /ws and receive
every update as {"command", "data"} messages; /api/state returns the latest
of each and /metrics exposes Prometheus counters.

With FILE the static call graph and side effects of FILE are published and
what-if scenarios can be run against it; --watch republishes on every save.
With --dap-adapter a Debug Adapter Protocol proxy runs alongside and live
session data is streamed as it arrives.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if visualizeWatchFlag && len(args) == 0 {
				return errors.New("--watch needs a FILE")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			web := controller.NewWebUI(logger)
			defer web.Close()

			server := &visualizer{web: web, proxying: visualizeDAPAdapterFlag != ""}
			if len(args) == 1 {
				server.source = args[0]
			}

			server.registerHandlers()

			publisher := newLivePublisher(web, publishInterval)
			workspace.Dispatcher.Observe(publisher)

			if server.source != "" {
				if err := server.publishStatic(ctx); err != nil {
					return err
				}
			}

			addr := visualizeAddrFlag
			if addr == "" {
				addr = cfg.Server.Addr
			}

			listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", addr, err)
			}

			httpServer := &http.Server{
				Handler:           newRouter(web),
				ReadHeaderTimeout: 10 * time.Second,
			}

			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "serving on http://%s\n", listener.Addr())

			group, groupCtx := errgroup.WithContext(ctx)

			group.Go(func() error {
				if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}

				return nil
			})

			group.Go(func() error {
				<-groupCtx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(groupCtx), shutdownTimeout)
				defer cancel()

				web.Close()

				return httpServer.Shutdown(shutdownCtx)
			})

			if visualizeWatchFlag {
				group.Go(func() error {
					return server.watch(groupCtx)
				})
			}

			if server.proxying {
				group.Go(func() error {
					return server.proxy(groupCtx, cmd)
				})
			}

			return group.Wait()
		},
	}
	cmd.Flags().StringVar(&visualizeAddrFlag, "addr", "", "HTTP listen address (default server.addr from config)")
	cmd.Flags().BoolVarP(&visualizeWatchFlag, "watch", "w", false, "republish FILE whenever it changes")
	cmd.Flags().StringVar(&visualizeDAPListenFlag, "dap-listen", defaultDAPListen, "address the DAP client connects to")
	cmd.Flags().StringVar(&visualizeDAPAdapterFlag, "dap-adapter", "", "address of a debug adapter to proxy")

	return cmd
}

func newRouter(web *controller.WebUI) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	web.Register(router)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// visualizer answers inbound web commands against the shared workspace.
type visualizer struct {
	web      *controller.WebUI
	source   string
	proxying bool

	mu sync.Mutex
}

func (v *visualizer) registerHandlers() {
	v.web.Handle(controller.CommandRunWhatIfScenario, v.runWhatIfScenario)
	v.web.Handle(controller.CommandFilterData, v.filterData)
	v.web.Handle(controller.CommandExportData, v.exportData)
	v.web.Handle(controller.CommandJumpToSource, v.jumpToSource)
}

// publishStatic rebuilds the static graph and effects of the source and broadcasts them.
func (v *visualizer) publishStatic(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	doc, err := readDocument(v.source)
	if err != nil {
		return err
	}

	graph, err := workspace.CallGraph.BuildStatic(ctx, doc)
	if err != nil {
		return err
	}

	if !v.proxying {
		workspace.SideEffects.ClearAll()
	}

	workspace.SideEffects.AnalyzeSource(doc)

	if err := v.web.UpdateCallGraph(graph); err != nil {
		return err
	}

	return v.web.UpdateSideEffects(workspace.SideEffects.Summary())
}

func (v *visualizer) watch(ctx context.Context) error {
	watcher, err := adapter.NewSourceWatcher(m.Path(v.source), adapter.DefaultDebounce, logger)
	if err != nil {
		return err
	}

	return watcher.Run(ctx, func() {
		if err := v.publishStatic(ctx); err != nil {
			logger.Warn("republish failed", "path", v.source, "error", err)
			_ = v.web.Broadcast(controller.CommandError, gin.H{"message": err.Error()})
		}
	})
}

func (v *visualizer) proxy(ctx context.Context, cmd *cobra.Command) error {
	adapterConn, err := adapter.DialAdapter(ctx, visualizeDAPAdapterFlag)
	if err != nil {
		return err
	}

	client, err := adapter.AcceptClient(ctx, visualizeDAPListenFlag, func(addr net.Addr) {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "waiting for a DAP client on %s\n", addr)
	})
	if err != nil {
		_ = adapterConn.Close()

		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	}

	session := adapter.NewProxySession("visualize", client, adapterConn, workspace.Dispatcher, adapter.WithProxyLogger(logger))

	return session.Serve(ctx)
}

type whatIfRequest struct {
	Inputs json.RawMessage `json:"inputs"`
}

func (v *visualizer) runWhatIfScenario(ctx context.Context, data json.RawMessage) (*controller.Envelope, error) {
	if v.source == "" {
		return nil, errors.New("no source file is being visualized")
	}

	var req whatIfRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode scenario request: %w", err)
	}

	raw := string(req.Inputs)

	// Inputs may arrive as an object or as a JSON string holding one.
	var text string
	if err := json.Unmarshal(req.Inputs, &text); err == nil {
		raw = text
	}

	inputs, err := domain.ParseMockInputs(raw)
	if err != nil {
		return nil, err
	}

	doc, err := readDocument(v.source)
	if err != nil {
		return nil, err
	}

	result, err := workspace.Scenarios.Run(ctx, doc, inputs)
	if err != nil {
		return nil, err
	}

	return nil, v.web.UpdateWhatIfAnalysis(result)
}

type effectFilters struct {
	Type   m.SideEffectKind `json:"type"`
	Impact m.ImpactLevel    `json:"impact"`
	Since  *time.Time       `json:"since"`
	Until  *time.Time       `json:"until"`
}

func (v *visualizer) filterData(_ context.Context, data json.RawMessage) (*controller.Envelope, error) {
	var req struct {
		Filters effectFilters `json:"filters"`
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("decode filters: %w", err)
		}
	}

	return &controller.Envelope{Command: "filteredData", Data: applyEffectFilters(workspace.SideEffects, req.Filters)}, nil
}

func applyEffectFilters(effects domain.SideEffectModel, filters effectFilters) []m.SideEffect {
	var selected []m.SideEffect

	switch {
	case filters.Since != nil || filters.Until != nil:
		since, until := time.Time{}, time.Now()
		if filters.Since != nil {
			since = *filters.Since
		}

		if filters.Until != nil {
			until = *filters.Until
		}

		selected = effects.InTimeRange(since, until)
	case filters.Type != "":
		selected = effects.ByType(filters.Type)
	case filters.Impact != "":
		selected = effects.ByImpact(filters.Impact)
	default:
		selected = effects.All()
	}

	kept := make([]m.SideEffect, 0, len(selected))
	for _, effect := range selected {
		if filters.Type != "" && effect.Type != filters.Type {
			continue
		}

		if filters.Impact != "" && effect.Metadata.Impact != filters.Impact {
			continue
		}

		kept = append(kept, effect)
	}

	return kept
}

func (v *visualizer) exportData(_ context.Context, data json.RawMessage) (*controller.Envelope, error) {
	var req struct {
		Format string `json:"format"`
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			return nil, fmt.Errorf("decode export request: %w", err)
		}
	}

	if req.Format != "" && req.Format != "json" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	info := m.SessionInfo{Name: "export", StartedAt: time.Now()}

	return &controller.Envelope{Command: "exportedData", Data: workspace.Snapshot(info, time.Now())}, nil
}

func (v *visualizer) jumpToSource(_ context.Context, data json.RawMessage) (*controller.Envelope, error) {
	var req struct {
		File   string `json:"file"`
		Line   int    `json:"line"`
		Column int    `json:"column"`
	}

	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("decode source location: %w", err)
	}

	logger.Info("jump to source", "file", req.File, "line", req.Line, "column", req.Column)

	return nil, nil
}

// livePublisher pushes tracker state to the web UI while a debug session
// runs, at most once per interval, and always when the session ends.
type livePublisher struct {
	web      *controller.WebUI
	interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func newLivePublisher(web *controller.WebUI, interval time.Duration) *livePublisher {
	return &livePublisher{web: web, interval: interval}
}

func (p *livePublisher) DebugSessionStarted(info m.SessionInfo) {
	p.web.DebugSessionStarted(info)
}

func (p *livePublisher) DebugSessionEnded(info m.SessionInfo) {
	p.publish()
	p.web.DebugSessionEnded(info)
}

func (p *livePublisher) DebugMessageReceived(msg m.DebugMessage) {
	p.web.DebugMessageReceived(msg)

	p.mu.Lock()
	due := time.Since(p.last) >= p.interval
	if due {
		p.last = time.Now()
	}
	p.mu.Unlock()

	if due {
		p.publish()
	}
}

func (p *livePublisher) publish() {
	if err := p.web.UpdateCallGraph(workspace.CallGraph.Current()); err != nil {
		logger.Warn("publish call graph failed", "error", err)
	}

	if err := p.web.UpdateSideEffects(workspace.SideEffects.Summary()); err != nil {
		logger.Warn("publish side effects failed", "error", err)
	}

	for _, history := range workspace.Variables.All() {
		if err := p.web.UpdateVariableHistory(history); err != nil {
			logger.Warn("publish variable history failed", "variable", history.Variable, "error", err)
		}
	}
}

func init() {
	rootCmd.AddCommand(newVisualizeCmd())
}
