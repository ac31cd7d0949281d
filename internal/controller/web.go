package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mouse-blink/storyteller/internal/logging"
	m "github.com/mouse-blink/storyteller/internal/model"
)

// Inbound commands sent by a visualization client.
const (
	CommandRunWhatIfScenario = "runWhatIfScenario"
	CommandFilterData        = "filterData"
	CommandExportData        = "exportData"
	CommandJumpToSource      = "jumpToSource"
	CommandDebugMessage      = "debugMessage"
	CommandError             = "error"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
	maxInboundBytes  = 1 << 20
)

// ErrUnknownCommand is returned for inbound commands with no handler.
var ErrUnknownCommand = errors.New("unknown command")

// Envelope is the outbound message shape.
type Envelope struct {
	Command string `json:"command"`
	Data    any    `json:"data"`
}

// WebMessage is an inbound command from a client.
type WebMessage struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// CommandHandler answers one inbound command. A non-nil reply is sent back
// to the requesting client only.
type CommandHandler func(ctx context.Context, data json.RawMessage) (reply *Envelope, err error)

type webClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *webClient) close() {
	c.once.Do(func() { close(c.send) })
}

// WebUI implements UI by broadcasting every update to websocket clients.
// The last message of each command is kept and replayed to clients that
// connect later.
type WebUI struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*webClient]struct{}
	last     map[string][]byte
	order    []string
	handlers map[string]CommandHandler
	closed   bool
}

// NewWebUI creates a hub with no clients.
func NewWebUI(logger *slog.Logger) *WebUI {
	if logger == nil {
		logger = logging.Discard()
	}

	return &WebUI{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients:  make(map[*webClient]struct{}),
		last:     make(map[string][]byte),
		handlers: make(map[string]CommandHandler),
	}
}

// Handle registers the handler for an inbound command.
func (w *WebUI) Handle(command string, handler CommandHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.handlers[command] = handler
}

// Register mounts the websocket endpoint and REST routes on r.
func (w *WebUI) Register(r gin.IRouter) {
	r.GET("/ws", w.serveWebsocket)
	r.GET("/api/state", w.serveState)
	r.POST("/api/commands", w.serveCommand)
}

func (w *WebUI) Start(_ ...StartOption) error {
	return nil
}

// Close disconnects every client.
func (w *WebUI) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true

	for client := range w.clients {
		client.close()
		delete(w.clients, client)
	}
}

func (w *WebUI) UpdateCallGraph(graph m.CallGraph) error {
	return w.Broadcast(CommandUpdateCallGraph, graph)
}

func (w *WebUI) UpdateWhatIfAnalysis(result m.WhatIfResult) error {
	return w.Broadcast(CommandUpdateWhatIfAnalysis, result)
}

func (w *WebUI) UpdateSideEffects(summary m.SideEffectSummary) error {
	return w.Broadcast(CommandUpdateSideEffects, summary)
}

func (w *WebUI) UpdateVariableHistory(history m.VariableHistory) error {
	return w.Broadcast(CommandUpdateVariableHistory, history)
}

func (w *WebUI) DebugSessionStarted(info m.SessionInfo) {
	err := w.Broadcast(CommandDebugSessionStart, map[string]any{
		"sessionId":   info.ID,
		"sessionName": info.Name,
		"startedAt":   info.StartedAt,
	})
	if err != nil {
		w.logger.Warn("broadcast session start", "session", info.ID, "error", err)
	}
}

func (w *WebUI) DebugSessionEnded(info m.SessionInfo) {
	if err := w.Broadcast(CommandDebugSessionEnd, map[string]any{"sessionId": info.ID}); err != nil {
		w.logger.Warn("broadcast session end", "session", info.ID, "error", err)
	}
}

func (w *WebUI) DisplaySelfTest(statuses []m.SubsystemStatus) error {
	return w.Broadcast(CommandSelfTest, statuses)
}

func (w *WebUI) DisplayReports(reports []m.Report) error {
	return w.Broadcast("reports", reports)
}

func (w *WebUI) DisplaySessions(records []m.SessionRecord) error {
	return w.Broadcast("sessions", records)
}

// DebugMessageReceived forwards a raw debug message to connected clients.
// Debug messages are not replayed to late joiners.
func (w *WebUI) DebugMessageReceived(msg m.DebugMessage) {
	if err := w.broadcast(CommandDebugMessage, msg, false); err != nil {
		w.logger.Warn("broadcast debug message", "error", err)
	}
}

// Broadcast encodes {command, data} once, caches it and queues it on every
// client. Clients whose queue is full are dropped.
func (w *WebUI) Broadcast(command string, data any) error {
	return w.broadcast(command, data, true)
}

func (w *WebUI) broadcast(command string, data any, cache bool) error {
	payload, err := json.Marshal(Envelope{Command: command, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", command, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if cache {
		if _, ok := w.last[command]; !ok {
			w.order = append(w.order, command)
		}

		w.last[command] = payload
	}

	for client := range w.clients {
		select {
		case client.send <- payload:
		default:
			w.logger.Warn("dropping slow websocket client", "command", command)
			client.close()
			delete(w.clients, client)
		}
	}

	return nil
}

// ClientCount returns the number of connected websocket clients.
func (w *WebUI) ClientCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	return len(w.clients)
}

func (w *WebUI) serveWebsocket(c *gin.Context) {
	conn, err := w.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		w.logger.Warn("websocket upgrade failed", "error", err)

		return
	}

	client := &webClient{conn: conn, send: make(chan []byte, clientSendBuffer)}

	if !w.join(client) {
		_ = conn.Close()

		return
	}

	w.logger.Debug("websocket client connected", "remote", conn.RemoteAddr().String())

	go w.writeLoop(client)
	w.readLoop(c.Request.Context(), client)
}

// join registers the client and queues the cached state for it.
func (w *WebUI) join(client *webClient) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return false
	}

	for _, command := range w.order {
		client.send <- w.last[command]
	}

	w.clients[client] = struct{}{}

	return true
}

func (w *WebUI) leave(client *webClient) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.clients[client]; ok {
		client.close()
		delete(w.clients, client)
	}
}

func (w *WebUI) writeLoop(client *webClient) {
	defer func() { _ = client.conn.Close() }()

	for payload := range client.send {
		_ = client.conn.SetWriteDeadline(time.Now().Add(writeWait))

		if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			w.logger.Debug("websocket write failed", "error", err)
			w.leave(client)

			return
		}
	}

	_ = client.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

func (w *WebUI) readLoop(ctx context.Context, client *webClient) {
	defer w.leave(client)

	client.conn.SetReadLimit(maxInboundBytes)

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			w.logger.Debug("websocket client disconnected", "error", err)

			return
		}

		msg, err := decodeWebMessage(raw)
		if err != nil {
			w.reply(client, Envelope{Command: CommandError, Data: map[string]string{"message": err.Error()}})

			continue
		}

		reply, err := w.dispatch(ctx, msg)
		if err != nil {
			reply = &Envelope{Command: CommandError, Data: map[string]string{"command": msg.Command, "message": err.Error()}}
		}

		if reply != nil {
			w.reply(client, *reply)
		}
	}
}

// decodeWebMessage accepts both {"command", "data": {...}} and the flat form
// {"command", ...fields}; in the flat form the whole message is the data.
func decodeWebMessage(raw []byte) (WebMessage, error) {
	var msg WebMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return WebMessage{}, fmt.Errorf("decode command: %w", err)
	}

	if len(msg.Data) == 0 {
		msg.Data = json.RawMessage(raw)
	}

	return msg, nil
}

func (w *WebUI) reply(client *webClient, envelope Envelope) {
	payload, err := json.Marshal(envelope)
	if err != nil {
		w.logger.Warn("encode reply", "command", envelope.Command, "error", err)

		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.clients[client]; !ok {
		return
	}

	select {
	case client.send <- payload:
	default:
		client.close()
		delete(w.clients, client)
	}
}

func (w *WebUI) dispatch(ctx context.Context, msg WebMessage) (*Envelope, error) {
	w.mu.Lock()
	handler, ok := w.handlers[msg.Command]
	w.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, msg.Command)
	}

	return handler(ctx, msg.Data)
}

// serveState returns the cached last message of every command.
func (w *WebUI) serveState(c *gin.Context) {
	w.mu.Lock()

	state := make(map[string]json.RawMessage, len(w.last))
	for command, payload := range w.last {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}

		if err := json.Unmarshal(payload, &envelope); err == nil {
			state[command] = envelope.Data
		}
	}

	w.mu.Unlock()

	c.JSON(http.StatusOK, state)
}

func (w *WebUI) serveCommand(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	msg, err := decodeWebMessage(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	reply, err := w.dispatch(c.Request.Context(), msg)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, ErrUnknownCommand) {
			status = http.StatusNotFound
		}

		c.JSON(status, gin.H{"error": err.Error()})

		return
	}

	if reply == nil {
		c.Status(http.StatusNoContent)

		return
	}

	c.JSON(http.StatusOK, reply)
}
