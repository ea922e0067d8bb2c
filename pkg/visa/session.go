package visa

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	// DefaultTimeout bounds a single command or query.
	DefaultTimeout = 5 * time.Second
	// DefaultBaudRate is used for ASRL resources when none is configured.
	DefaultBaudRate = 115200
)

var (
	// ErrTimeout is returned when the instrument does not answer in time.
	ErrTimeout = errors.New("instrument i/o timeout")
	// ErrClosed is returned when using a closed session.
	ErrClosed = errors.New("session closed")
	// ErrOutOfSync is returned by a session whose last exchange was
	// interrupted and which cannot reconnect.
	ErrOutOfSync = errors.New("session out of sync")
)

// Options configures Open.
type Options struct {
	Timeout  time.Duration
	BaudRate int
}

// Session is a message-based SCPI session with one instrument.
// Each Write/Query holds the session for the whole command/response pair.
//
// An exchange interrupted by a timeout, cancellation or I/O error may leave
// a late answer in flight. The session is then out of sync: sessions made
// by Open reconnect before the next command, others fail with ErrOutOfSync.
type Session struct {
	resource Resource
	timeout  time.Duration
	dial     func(ctx context.Context) (io.ReadWriteCloser, error)

	mu        sync.Mutex
	conn      io.ReadWriteCloser
	r         *bufio.Reader
	closed    bool
	outOfSync bool
}

// Open opens the instrument addressed by the VISA resource string.
func Open(ctx context.Context, resource string, opts Options) (*Session, error) {
	res, err := ParseResource(resource)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultBaudRate
	}

	if res.Kind != Socket && res.Kind != Serial {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedResource, resource)
	}

	dial := func(ctx context.Context) (io.ReadWriteCloser, error) {
		return dialResource(ctx, res, opts)
	}
	conn, err := dial(ctx)
	if err != nil {
		return nil, err
	}

	s := NewSession(conn, opts.Timeout)
	s.resource = res
	s.dial = dial
	return s, nil
}

func dialResource(ctx context.Context, res Resource, opts Options) (io.ReadWriteCloser, error) {
	if res.Kind == Socket {
		dialer := &net.Dialer{Timeout: opts.Timeout}
		c, err := dialer.DialContext(ctx, "tcp", res.Address())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to %s: %w", res.Address(), err)
		}
		return c, nil
	}

	port, err := serial.Open(res.Device, &serial.Mode{BaudRate: opts.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", res.Device, err)
	}
	if err := port.SetReadTimeout(opts.Timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", res.Device, err)
	}
	if err := port.ResetInputBuffer(); err != nil {
		log.Printf("failed to flush %s: %v", res.Device, err)
	}
	return &serialConn{Port: port}, nil
}

// NewSession wraps an already established connection.
func NewSession(conn io.ReadWriteCloser, timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Session{
		conn:    conn,
		r:       bufio.NewReader(conn),
		timeout: timeout,
	}
}

// Resource returns the parsed resource the session was opened with.
func (s *Session) Resource() Resource {
	return s.resource
}

// Write sends a newline terminated command.
func (s *Session) Write(ctx context.Context, cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.arm(ctx)
	if err != nil {
		return err
	}
	defer release()

	return s.write(ctx, cmd)
}

// Query sends a query and returns the response line without its terminator.
func (s *Session) Query(ctx context.Context, query string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.arm(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if err := s.write(ctx, query); err != nil {
		return "", err
	}

	line, err := s.r.ReadString('\n')
	if err != nil {
		return "", s.ioError(ctx, query, err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// QueryBinaryFloat32 sends a query answered with a definite length IEEE
// 488.2 block of packed float32 values. A block announcing more than
// maxValues values is rejected; maxValues <= 0 disables the check.
func (s *Session) QueryBinaryFloat32(ctx context.Context, query string, bigEndian bool, maxValues int) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	release, err := s.arm(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.write(ctx, query); err != nil {
		return nil, err
	}

	data, err := readBlock(s.r, blockLimit{maxLen: 4 * max(maxValues, 0), definite: true})
	if err != nil {
		if errors.Is(err, ErrMalformedBlock) {
			s.outOfSync = true
			return nil, fmt.Errorf("%s: %w", query, err)
		}
		return nil, s.ioError(ctx, query, err)
	}
	return decodeFloat32(data, bigEndian)
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.conn.Close()
}

func (s *Session) write(ctx context.Context, cmd string) error {
	if _, err := io.WriteString(s.conn, cmd+"\n"); err != nil {
		return s.ioError(ctx, cmd, err)
	}
	return nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// OutOfSync reports whether the last exchange was interrupted.
func (s *Session) OutOfSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outOfSync
}

// arm applies the session timeout (or the earlier context deadline) to the
// connection and interrupts blocked I/O when ctx is cancelled. An out of
// sync session is reconnected first.
func (s *Session) arm(ctx context.Context) (func(), error) {
	if s.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.outOfSync {
		if err := s.reconnect(ctx); err != nil {
			return nil, err
		}
	}

	d, ok := s.conn.(deadliner)
	if !ok {
		return func() {}, nil
	}

	deadline := time.Now().Add(s.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := d.SetDeadline(deadline); err != nil {
		log.Printf("failed to set deadline: %v", err)
	}

	stop := context.AfterFunc(ctx, func() {
		d.SetDeadline(time.Unix(1, 0))
	})
	return func() { stop() }, nil
}

// reconnect replaces the connection so that late answers to an
// interrupted exchange are discarded with the old one.
func (s *Session) reconnect(ctx context.Context) error {
	if s.dial == nil {
		return ErrOutOfSync
	}
	if err := s.conn.Close(); err != nil {
		log.Printf("failed to close stale connection: %v", err)
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("failed to reconnect: %w", err)
	}
	s.conn = conn
	s.r = bufio.NewReader(conn)
	s.outOfSync = false
	log.Printf("reconnected to %s", s.resource)
	return nil
}

func (s *Session) ioError(ctx context.Context, cmd string, err error) error {
	s.outOfSync = true
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var netErr net.Error
	if errors.Is(err, ErrTimeout) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%s: %w", cmd, ErrTimeout)
	}
	return fmt.Errorf("%s: %w", cmd, err)
}

// serialConn reports an expired read timeout as ErrTimeout; the serial
// driver returns (0, nil) in that case.
type serialConn struct {
	serial.Port
}

func (c *serialConn) Read(p []byte) (int, error) {
	n, err := c.Port.Read(p)
	if n == 0 && err == nil && len(p) > 0 {
		return 0, ErrTimeout
	}
	return n, err
}

// Ports returns ASRL resource strings for the serial ports present on the host.
func Ports() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}

	result := make([]string, 0, len(ports))
	for _, name := range ports {
		result = append(result, "ASRL"+name+"::INSTR")
	}
	return result, nil
}
