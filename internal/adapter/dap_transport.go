package adapter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
)

// DialAdapter connects to a debug adapter listening on a TCP address.
func DialAdapter(ctx context.Context, addr string) (io.ReadWriteCloser, error) {
	var d net.Dialer

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial debug adapter %s: %w", addr, err)
	}

	return conn, nil
}

// AcceptClient waits for a single DAP client on addr. The listener is closed
// once a client connects or ctx is cancelled.
func AcceptClient(ctx context.Context, addr string, ready func(net.Addr)) (io.ReadWriteCloser, error) {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	if ready != nil {
		ready(ln.Addr())
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	conn, err := ln.Accept()
	_ = ln.Close()

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("accept debug client: %w", err)
	}

	return conn, nil
}

// processConn speaks DAP over the stdio of a child process.
type processConn struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// StartAdapterProcess launches a debug adapter that speaks DAP on stdio.
func StartAdapterProcess(ctx context.Context, argv []string) (io.ReadWriteCloser, error) {
	if len(argv) == 0 {
		return nil, errors.New("adapter command is empty")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...) // #nosec G204 -- the adapter command is user configuration

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("adapter stdin: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("adapter stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start adapter %s: %w", argv[0], err)
	}

	return &processConn{cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

func (c *processConn) Read(p []byte) (int, error) {
	return c.stdout.Read(p)
}

func (c *processConn) Write(p []byte) (int, error) {
	return c.stdin.Write(p)
}

// Close stops the adapter and reaps it.
func (c *processConn) Close() error {
	_ = c.stdin.Close()

	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}

	if err := c.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil
		}

		return err
	}

	return nil
}
