package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/mattjoyce/gpgbridge/internal/log"
	"github.com/mattjoyce/gpgbridge/internal/protocol"
)

var (
	ErrTxIDInFlight = errors.New("txid already in flight")
	ErrStreamClosed = errors.New("stream closed")
)

const hostGracePeriod = 5 * time.Second

// StreamTransport speaks native messaging framing to a privileged host.
// Many requests may be in flight; replies are matched by txid.
type StreamTransport struct {
	w io.Writer

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan protocol.Response
	err     error

	closeFn func() error
	done    chan struct{}
	logger  *slog.Logger
}

// NewStreamTransport writes requests to w and reads replies from r until r
// fails or is exhausted.
func NewStreamTransport(r io.Reader, w io.Writer) *StreamTransport {
	t := &StreamTransport{
		w:       w,
		pending: make(map[string]chan protocol.Response),
		done:    make(chan struct{}),
		logger:  log.WithComponent("relay.stream"),
	}
	go t.readLoop(r)
	return t
}

func (t *StreamTransport) Forward(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	key := req.TxID.String()
	ch := make(chan protocol.Response, 1)

	t.mu.Lock()
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		return protocol.Response{}, err
	}
	if _, busy := t.pending[key]; busy {
		t.mu.Unlock()
		return protocol.Response{}, fmt.Errorf("%w: %s", ErrTxIDInFlight, key)
	}
	t.pending[key] = ch
	t.mu.Unlock()

	if err := t.write(req); err != nil {
		t.forget(key)
		return protocol.Response{}, err
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return protocol.Response{}, t.closedErr()
		}
		return resp, nil
	case <-ctx.Done():
		t.forget(key)
		return protocol.Response{}, ctx.Err()
	}
}

func (t *StreamTransport) write(req protocol.Request) error {
	var buf bytes.Buffer
	if err := protocol.EncodeRequest(&buf, &req); err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return protocol.WriteFrame(t.w, bytes.TrimSpace(buf.Bytes()), protocol.MaxInboundFrame)
}

func (t *StreamTransport) forget(key string) {
	t.mu.Lock()
	delete(t.pending, key)
	t.mu.Unlock()
}

func (t *StreamTransport) closedErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	return ErrStreamClosed
}

func (t *StreamTransport) readLoop(r io.Reader) {
	defer close(t.done)
	for {
		frame, err := protocol.ReadFrame(r, protocol.MaxOutboundFrame)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = ErrStreamClosed
			} else {
				err = fmt.Errorf("%w: %v", ErrStreamClosed, err)
			}
			t.fail(err)
			return
		}

		var resp protocol.Response
		if err := json.Unmarshal(frame, &resp); err != nil {
			t.logger.Warn("dropping undecodable reply", "error", err)
			continue
		}

		key := resp.TxID.String()
		t.mu.Lock()
		ch, ok := t.pending[key]
		delete(t.pending, key)
		t.mu.Unlock()
		if !ok {
			t.logger.Debug("dropping reply for unknown txid", "txid", key)
			continue
		}
		ch <- resp
	}
}

func (t *StreamTransport) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
	for key, ch := range t.pending {
		close(ch)
		delete(t.pending, key)
	}
}

// Close stops the host, if this transport started one, and waits for the
// read loop to end. A transport built on caller-owned streams ends when the
// caller closes its reader.
func (t *StreamTransport) Close() error {
	var err error
	if t.closeFn != nil {
		err = t.closeFn()
	}
	<-t.done
	return err
}

// StartNative launches a native messaging host and returns a transport
// connected to its stdin and stdout. The host's stderr is passed through.
func StartNative(command []string) (*StreamTransport, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("native host command is empty")
	}
	cmd := exec.Command(command[0], command[1:]...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start native host: %w", err)
	}

	t := NewStreamTransport(stdout, stdin)
	t.closeFn = func() error {
		_ = stdin.Close()
		exited := make(chan error, 1)
		go func() { exited <- cmd.Wait() }()

		select {
		case err := <-exited:
			return err
		case <-time.After(hostGracePeriod):
		}
		_ = cmd.Process.Signal(syscall.SIGTERM)
		select {
		case err := <-exited:
			return err
		case <-time.After(hostGracePeriod):
			_ = cmd.Process.Kill()
			return <-exited
		}
	}
	t.logger.Info("native host started", "pid", cmd.Process.Pid, "command", command[0])
	return t, nil
}
