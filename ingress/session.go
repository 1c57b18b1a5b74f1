package ingress

import (
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"
	"github.com/presbrey/ircgate/linecodec"
	"github.com/presbrey/ircgate/transport"
)

// Session is one client connection. Reads happen only on the goroutine
// serving the connection; Send may be called from anywhere.
type Session struct {
	ID string

	server *Server
	reader *linecodec.Reader

	// writeMu may be held across a blocking write. mu guards stream and
	// nick and is never held during I/O.
	writeMu sync.Mutex
	writer  *linecodec.Writer

	mu     sync.RWMutex
	stream transport.Stream
	nick   string
}

func newSession(server *Server, stream transport.Stream) *Session {
	sess := &Session{
		ID:     uuid.New().String(),
		server: server,
	}
	sess.setStream(stream)
	return sess
}

// setStream switches the session to a new stream with a fresh codec.
func (s *Session) setStream(stream transport.Stream) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.writer = linecodec.NewWriter(stream)
	s.reader = linecodec.NewReader(stream, s.server.config.Limits.MaxLineLength)

	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()
}

func (s *Session) currentStream() transport.Stream {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stream
}

// IsSecure reports whether the client is connected over TLS.
func (s *Session) IsSecure() bool {
	return s.currentStream().IsSecure()
}

// RemoteAddr returns the client address.
func (s *Session) RemoteAddr() net.Addr {
	return s.currentStream().RemoteAddr()
}

// Nick returns the nickname set by the command handler, or "*".
func (s *Session) Nick() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.nick == "" {
		return "*"
	}
	return s.nick
}

// SetNick records the nickname used as the target of numeric replies.
func (s *Session) SetNick(nick string) {
	s.mu.Lock()
	s.nick = nick
	s.mu.Unlock()
}

// Send writes an event to the client.
func (s *Session) Send(e *girc.Event) error {
	return s.SendRaw(e.String())
}

// SendRaw writes one protocol line to the client. A write that fails or
// outlasts the configured write timeout closes the connection.
func (s *Session) SendRaw(line string) error {
	if s.server.config.Debug {
		s.server.logf("[%s] => %s", s.ID, line)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	stream := s.currentStream()
	if timeout := s.server.config.Limits.WriteTimeout.Duration; timeout > 0 {
		stream.SetWriteDeadline(time.Now().Add(timeout))
	}
	if err := s.writer.WriteLine(line); err != nil {
		stream.Close()
		return err
	}
	s.server.metrics.LinesSent.Inc()
	return nil
}

// Close ends the connection. It does not wait for a write in progress; the
// write fails instead.
func (s *Session) Close() error {
	return s.currentStream().Close()
}

// shutdown sends a best-effort closing line, bounded by timeout, and closes
// the connection. The line is skipped when another write holds the writer.
func (s *Session) shutdown(line string, timeout time.Duration) {
	stream := s.currentStream()
	stream.SetWriteDeadline(time.Now().Add(timeout))
	if s.writeMu.TryLock() {
		if s.writer.WriteLine(line) == nil {
			s.server.metrics.LinesSent.Inc()
		}
		s.writeMu.Unlock()
	}
	stream.Close()
}
