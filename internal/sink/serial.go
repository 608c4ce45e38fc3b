package sink

import (
	"context"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Port is the subset of a serial port the sinks and the bridge use.
type Port interface {
	io.ReadWriteCloser
}

// PortOpener opens a serial device. Tests substitute their own.
type PortOpener func(path string, mode *serial.Mode) (Port, error)

// OpenSerial is the PortOpener backed by go.bug.st/serial.
func OpenSerial(path string, mode *serial.Mode) (Port, error) {
	p, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// OpenPort opens path with opener and gives up when ctx ends. A port that
// finishes opening after ctx ended is closed.
func OpenPort(ctx context.Context, opener PortOpener, path string, opts PortOptions) (Port, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	if opener == nil {
		opener = OpenSerial
	}

	type result struct {
		port Port
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		p, err := opener(path, mode)
		ch <- result{p, err}
	}()

	select {
	case r := <-ch:
		return r.port, r.err
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.err == nil {
				_ = r.port.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// Serial writes packets to a serial device.
type Serial struct {
	name   string
	path   string
	opts   PortOptions
	opener PortOpener
	link   *link

	mu   sync.Mutex
	port Port
}

type SerialConfig struct {
	Path    string
	Options PortOptions
	// Opener defaults to OpenSerial.
	Opener PortOpener
}

func NewSerial(name string, cfg SerialConfig, opts ...Option) *Serial {
	if name == "" {
		name = "serial:" + cfg.Path
	}
	return &Serial{
		name:   name,
		path:   cfg.Path,
		opts:   cfg.Options,
		opener: cfg.Opener,
		link:   newLink(name, newSettings(opts)),
	}
}

func (s *Serial) Name() string { return s.name }

func (s *Serial) Connect(ctx context.Context) error {
	if !s.link.begin() {
		return nil
	}
	s.link.log.Info().Str("path", s.path).Int("baud", s.baud()).Msg("opening serial port")
	port, err := OpenPort(ctx, s.opener, s.path, s.opts)
	if err != nil {
		s.link.fail()
		return &ConnectionError{Sink: s.name, Err: err}
	}

	s.mu.Lock()
	s.port = port
	s.mu.Unlock()

	ok := s.link.up(func(b []byte) error {
		_, err := port.Write(b)
		return err
	})
	if !ok {
		s.closePort()
		return &ConnectionError{Sink: s.name, Err: ErrAborted}
	}
	return nil
}

func (s *Serial) Send(packet []byte) { s.link.send(packet) }

func (s *Serial) Disconnect() {
	s.link.down(s.closePort)
	// a port opened by an aborted connect may still be held
	s.closePort()
}

func (s *Serial) IsHealthy(maxAge time.Duration) bool { return s.link.healthy(maxAge) }

func (s *Serial) State() State { return s.link.current() }

func (s *Serial) Stats() Stats { return s.link.stats() }

func (s *Serial) closePort() {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()
	if port != nil {
		if err := port.Close(); err != nil {
			s.link.log.Debug().Err(err).Msg("close port")
		}
	}
}

func (s *Serial) baud() int {
	if n, err := s.opts.Normalize(); err == nil {
		return n.BaudRate
	}
	return s.opts.BaudRate
}
