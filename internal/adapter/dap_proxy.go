package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/go-dap"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mouse-blink/storyteller/internal/domain"
	"github.com/mouse-blink/storyteller/internal/logging"
	m "github.com/mouse-blink/storyteller/internal/model"
)

// injectedSeqBase keeps requests issued by trackers out of the client's
// sequence range so their responses can be recognized and hidden.
const injectedSeqBase = 1_000_000

// injectedRequest is a dap.Request with its arguments attached. dap.Request
// itself only carries the command.
type injectedRequest struct {
	dap.Request

	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// ProxyOption configures a ProxySession.
type ProxyOption func(*ProxySession)

// WithRecorder writes every dispatched message to w as one JSON line. The
// output can be fed back through a ReplaySession.
func WithRecorder(w io.Writer) ProxyOption {
	return func(p *ProxySession) {
		p.recorder = w
	}
}

// WithProxyLogger sets the logger used by the proxy.
func WithProxyLogger(logger *slog.Logger) ProxyOption {
	return func(p *ProxySession) {
		p.logger = logger
	}
}

// ProxySession sits between a DAP client and a debug adapter. Traffic is
// forwarded unchanged in both directions while adapter messages are fanned
// out to the dispatcher. Trackers may issue their own requests through it.
type ProxySession struct {
	info       m.SessionInfo
	client     io.ReadWriteCloser
	adapter    io.ReadWriteCloser
	dispatcher domain.Dispatcher
	logger     *slog.Logger
	recorder   io.Writer

	clientMu  sync.Mutex
	adapterMu sync.Mutex
	recordMu  sync.Mutex

	seq atomic.Int64

	mu      sync.Mutex
	pending map[int]json.RawMessage
	waiters map[int]chan m.DebugMessage
	closed  bool
	done    chan struct{}
}

// NewProxySession builds a proxy between client and adapter.
func NewProxySession(name string, client, adapter io.ReadWriteCloser, dispatcher domain.Dispatcher, opts ...ProxyOption) *ProxySession {
	p := &ProxySession{
		info: m.SessionInfo{
			ID:        uuid.NewString(),
			Name:      name,
			StartedAt: time.Now(),
		},
		client:     client,
		adapter:    adapter,
		dispatcher: dispatcher,
		logger:     logging.Discard(),
		pending:    make(map[int]json.RawMessage),
		waiters:    make(map[int]chan m.DebugMessage),
		done:       make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.seq.Store(injectedSeqBase - 1)

	return p
}

// Info identifies the session.
func (p *ProxySession) Info() m.SessionInfo {
	return p.info
}

// Serve forwards traffic until either side disconnects or ctx is cancelled.
// The session is attached to the dispatcher for the duration of the call.
func (p *ProxySession) Serve(ctx context.Context) error {
	p.dispatcher.Attach(p)
	defer p.dispatcher.Detach(p)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-p.done:
		}

		return p.Close()
	})

	g.Go(func() error {
		defer func() { _ = p.Close() }()

		return p.pumpClient()
	})

	g.Go(func() error {
		defer func() { _ = p.Close() }()

		return p.pumpAdapter()
	})

	err := g.Wait()
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return nil
	}

	return err
}

// Request sends command to the adapter and waits for its response. The
// response is dispatched to the trackers but never forwarded to the client.
func (p *ProxySession) Request(ctx context.Context, command string, args any) (json.RawMessage, error) {
	seq := int(p.seq.Add(1))

	var rawArgs json.RawMessage

	if args != nil {
		encoded, err := json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("encode %s arguments: %w", command, err)
		}

		rawArgs = encoded
	}

	payload, err := json.Marshal(injectedRequest{
		Request: dap.Request{
			ProtocolMessage: dap.ProtocolMessage{Seq: seq, Type: m.MessageRequest},
			Command:         command,
		},
		Arguments: rawArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s request: %w", command, err)
	}

	wait := make(chan m.DebugMessage, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()

		return nil, domain.ErrSessionClosed
	}

	p.pending[seq] = rawArgs
	p.waiters[seq] = wait
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.waiters, seq)
		delete(p.pending, seq)
		p.mu.Unlock()
	}()

	if err := p.writeAdapter(payload); err != nil {
		return nil, fmt.Errorf("send %s request: %w", command, err)
	}

	select {
	case resp := <-wait:
		if !resp.Success {
			return nil, fmt.Errorf("%s failed: %s", command, resp.Message)
		}

		return resp.Body, nil
	case <-p.done:
		return nil, domain.ErrSessionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close tears down both connections. It is safe to call more than once.
func (p *ProxySession) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()

		return nil
	}

	p.closed = true
	close(p.done)
	p.mu.Unlock()

	return errors.Join(p.client.Close(), p.adapter.Close())
}

func (p *ProxySession) pumpClient() error {
	reader := bufio.NewReader(p.client)

	for {
		content, err := dap.ReadBaseMessage(reader)
		if err != nil {
			return p.readError("client", err)
		}

		var msg m.DebugMessage
		if err := json.Unmarshal(content, &msg); err != nil {
			p.logger.Warn("undecodable client message", "session", p.info.ID, "error", err)
		} else if msg.Type == m.MessageRequest {
			p.mu.Lock()
			p.pending[msg.Seq] = msg.Arguments
			p.mu.Unlock()
		}

		if err := p.writeAdapter(content); err != nil {
			return fmt.Errorf("forward to adapter: %w", err)
		}
	}
}

func (p *ProxySession) pumpAdapter() error {
	reader := bufio.NewReader(p.adapter)

	for {
		content, err := dap.ReadBaseMessage(reader)
		if err != nil {
			return p.readError("adapter", err)
		}

		var msg m.DebugMessage
		if err := json.Unmarshal(content, &msg); err != nil {
			p.logger.Warn("undecodable adapter message", "session", p.info.ID, "error", err)

			if err := p.writeClient(content); err != nil {
				return err
			}

			continue
		}

		var wait chan m.DebugMessage

		if msg.Type == m.MessageResponse {
			p.mu.Lock()
			msg.Arguments = p.pending[msg.RequestSeq]
			wait = p.waiters[msg.RequestSeq]
			delete(p.pending, msg.RequestSeq)
			p.mu.Unlock()
		}

		p.dispatch(msg)

		if msg.Type == m.MessageResponse && msg.RequestSeq >= injectedSeqBase {
			if wait != nil {
				wait <- msg
			}

			continue
		}

		if err := p.writeClient(content); err != nil {
			return err
		}
	}
}

func (p *ProxySession) dispatch(msg m.DebugMessage) {
	p.dispatcher.Dispatch(msg)

	if p.recorder == nil {
		return
	}

	line, err := json.Marshal(msg)
	if err != nil {
		return
	}

	p.recordMu.Lock()
	defer p.recordMu.Unlock()

	if _, err := p.recorder.Write(append(line, '\n')); err != nil {
		p.logger.Warn("session recording failed", "session", p.info.ID, "error", err)
	}
}

func (p *ProxySession) writeAdapter(content []byte) error {
	p.adapterMu.Lock()
	defer p.adapterMu.Unlock()

	return dap.WriteBaseMessage(p.adapter, content)
}

func (p *ProxySession) writeClient(content []byte) error {
	p.clientMu.Lock()
	defer p.clientMu.Unlock()

	if err := dap.WriteBaseMessage(p.client, content); err != nil {
		return fmt.Errorf("forward to client: %w", err)
	}

	return nil
}

func (p *ProxySession) readError(side string, err error) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed || errors.Is(err, io.EOF) {
		p.logger.Debug("debug connection closed", "session", p.info.ID, "side", side)

		return nil
	}

	return fmt.Errorf("read from %s: %w", side, err)
}
