// Package transport gives plain TCP and TLS connections one stream type.
//
// A Stream is either plain or TLS for its whole lifetime. Upgrading a plain
// connection (STARTTLS) produces a new TLS stream; the plain one must not be
// used afterwards. All methods forward to the wrapped connection without
// buffering or translating errors.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"
)

// Stream is a duplex connection to one client.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	// Flush pushes written data to the peer. Neither variant buffers, so
	// it returns immediately.
	Flush() error
	// Close shuts the connection down; for TLS this sends close_notify.
	Close() error
	IsSecure() bool
	RemoteAddr() net.Addr
	LocalAddr() net.Addr
	SetDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// PlainStream is an unencrypted connection.
type PlainStream struct {
	conn net.Conn
}

// NewPlain wraps conn as a plain stream.
func NewPlain(conn net.Conn) *PlainStream {
	return &PlainStream{conn: conn}
}

func (s *PlainStream) Read(p []byte) (int, error)         { return s.conn.Read(p) }
func (s *PlainStream) Write(p []byte) (int, error)        { return s.conn.Write(p) }
func (s *PlainStream) Flush() error                       { return nil }
func (s *PlainStream) Close() error                       { return s.conn.Close() }
func (s *PlainStream) IsSecure() bool                     { return false }
func (s *PlainStream) RemoteAddr() net.Addr               { return s.conn.RemoteAddr() }
func (s *PlainStream) LocalAddr() net.Addr                { return s.conn.LocalAddr() }
func (s *PlainStream) SetDeadline(t time.Time) error      { return s.conn.SetDeadline(t) }
func (s *PlainStream) SetReadDeadline(t time.Time) error  { return s.conn.SetReadDeadline(t) }
func (s *PlainStream) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }

// TLSStream is a TLS connection.
type TLSStream struct {
	conn *tls.Conn
}

// NewTLS wraps conn as a TLS stream. The handshake runs on first use unless
// Handshake is called first.
func NewTLS(conn *tls.Conn) *TLSStream {
	return &TLSStream{conn: conn}
}

func (s *TLSStream) Read(p []byte) (int, error)         { return s.conn.Read(p) }
func (s *TLSStream) Write(p []byte) (int, error)        { return s.conn.Write(p) }
func (s *TLSStream) Flush() error                       { return nil }
func (s *TLSStream) Close() error                       { return s.conn.Close() }
func (s *TLSStream) IsSecure() bool                     { return true }
func (s *TLSStream) RemoteAddr() net.Addr               { return s.conn.RemoteAddr() }
func (s *TLSStream) LocalAddr() net.Addr                { return s.conn.LocalAddr() }
func (s *TLSStream) SetDeadline(t time.Time) error      { return s.conn.SetDeadline(t) }
func (s *TLSStream) SetReadDeadline(t time.Time) error  { return s.conn.SetReadDeadline(t) }
func (s *TLSStream) SetWriteDeadline(t time.Time) error { return s.conn.SetWriteDeadline(t) }

// Handshake runs the TLS handshake if it has not run yet.
func (s *TLSStream) Handshake(ctx context.Context) error {
	return s.conn.HandshakeContext(ctx)
}

// ConnectionState returns details about the TLS session.
func (s *TLSStream) ConnectionState() tls.ConnectionState {
	return s.conn.ConnectionState()
}

// Upgrade performs a server-side TLS handshake over a plain stream and
// returns the resulting TLS stream.
func Upgrade(ctx context.Context, plain *PlainStream, config *tls.Config) (*TLSStream, error) {
	if config == nil {
		return nil, fmt.Errorf("failed to upgrade %s: no TLS configuration", plain.RemoteAddr())
	}
	s := NewTLS(tls.Server(plain.conn, config))
	if err := s.Handshake(ctx); err != nil {
		return nil, fmt.Errorf("TLS handshake with %s failed: %w", plain.RemoteAddr(), err)
	}
	return s, nil
}

// Listener accepts client streams. Streams from a listener created with a
// TLS configuration are TLS streams, others are plain.
type Listener struct {
	ln        net.Listener
	tlsConfig *tls.Config
}

// Listen opens a TCP listener on addr. A non-nil tlsConfig makes every
// accepted stream a TLS stream.
func Listen(addr string, tlsConfig *tls.Config) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewListener(ln, tlsConfig), nil
}

// NewListener wraps an existing listener.
func NewListener(ln net.Listener, tlsConfig *tls.Config) *Listener {
	return &Listener{ln: ln, tlsConfig: tlsConfig}
}

// Accept waits for the next connection.
func (l *Listener) Accept() (Stream, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	if l.tlsConfig != nil {
		return NewTLS(tls.Server(conn, l.tlsConfig)), nil
	}
	return NewPlain(conn), nil
}

// IsSecure reports whether accepted streams are TLS streams.
func (l *Listener) IsSecure() bool {
	return l.tlsConfig != nil
}

// Addr returns the listening address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops the listener. Accepted streams stay open.
func (l *Listener) Close() error {
	return l.ln.Close()
}
