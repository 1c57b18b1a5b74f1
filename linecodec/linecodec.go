// Package linecodec frames the IRC byte stream into lines.
//
// Incoming lines may end in LF or CR LF; outgoing lines always end in CR LF.
// A Codec owns the bytes received but not yet returned as a line, so one
// Codec belongs to one connection.
package linecodec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrLineTooLong is returned once the peer sends more than the maximum line
// length without a terminator. The connection cannot be resynchronised and
// must be closed.
var ErrLineTooLong = errors.New("line too long")

// DefaultMaxLength is the RFC 1459 limit of 512 bytes minus the CR LF.
const DefaultMaxLength = 510

// Codec encodes and decodes protocol lines.
type Codec struct {
	maxLength int
	buf       []byte
	// scanned is how much of buf is known not to contain '\n'
	scanned int
	failed  bool
}

// New returns a Codec that rejects lines longer than maxLength bytes,
// terminator excluded. A maxLength of zero or less disables the limit.
func New(maxLength int) *Codec {
	return &Codec{maxLength: maxLength}
}

// MaxLength returns the configured limit.
func (c *Codec) MaxLength() int {
	return c.maxLength
}

// Encode appends line followed by CR LF to buf. The line is not inspected;
// callers must not pass embedded terminators.
func (c *Codec) Encode(buf *bytes.Buffer, line string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if r != bytes.ErrTooLarge {
				panic(r)
			}
			err = fmt.Errorf("failed to encode line: %w", bytes.ErrTooLarge)
		}
	}()
	buf.Grow(len(line) + 2)
	buf.WriteString(line)
	buf.WriteString("\r\n")
	return nil
}

// Feed appends bytes received from the peer.
func (c *Codec) Feed(p []byte) {
	c.buf = append(c.buf, p...)
}

// Buffered returns the number of received bytes not yet returned as lines.
func (c *Codec) Buffered() int {
	return len(c.buf)
}

// Decode returns the next complete line without its terminator. When no
// complete line is buffered it returns ok == false and a nil error; feed
// more bytes and call again. After ErrLineTooLong every call fails.
func (c *Codec) Decode() (line string, ok bool, err error) {
	if c.failed {
		return "", false, ErrLineTooLong
	}

	if i := bytes.IndexByte(c.buf[c.scanned:], '\n'); i >= 0 {
		end := c.scanned + i
		raw := c.buf[:end]
		if len(raw) > 0 && raw[len(raw)-1] == '\r' {
			raw = raw[:len(raw)-1]
		}
		if c.tooLong(len(raw)) {
			return "", false, c.fail()
		}
		line = string(raw)
		n := copy(c.buf, c.buf[end+1:])
		c.buf = c.buf[:n]
		c.scanned = 0
		return line, true, nil
	}

	c.scanned = len(c.buf)
	pending := len(c.buf)
	if pending > 0 && c.buf[pending-1] == '\r' {
		// may be the first half of CR LF
		pending--
	}
	if c.tooLong(pending) {
		return "", false, c.fail()
	}
	return "", false, nil
}

func (c *Codec) tooLong(n int) bool {
	return c.maxLength > 0 && n > c.maxLength
}

func (c *Codec) fail() error {
	c.failed = true
	c.buf = nil
	c.scanned = 0
	return ErrLineTooLong
}

// Reader reads lines from an io.Reader through a Codec.
type Reader struct {
	r     io.Reader
	codec *Codec
	chunk []byte
}

// NewReader returns a Reader over r that enforces maxLength.
func NewReader(r io.Reader, maxLength int) *Reader {
	return NewReaderCodec(r, New(maxLength))
}

// NewReaderCodec returns a Reader over r using an existing codec.
func NewReaderCodec(r io.Reader, codec *Codec) *Reader {
	return &Reader{r: r, codec: codec, chunk: make([]byte, 4096)}
}

// Codec returns the Reader's codec.
func (lr *Reader) Codec() *Codec {
	return lr.codec
}

// ReadLine returns the next line, reading from the underlying reader only
// when no complete line is buffered. At end of stream it returns io.EOF;
// an unterminated trailing fragment is discarded.
func (lr *Reader) ReadLine() (string, error) {
	for {
		line, ok, err := lr.codec.Decode()
		if err != nil {
			return "", err
		}
		if ok {
			return line, nil
		}

		n, err := lr.r.Read(lr.chunk)
		if n > 0 {
			lr.codec.Feed(lr.chunk[:n])
		}
		if err != nil {
			if n > 0 && err == io.EOF {
				// decode what arrived with EOF before reporting it
				if line, ok, derr := lr.codec.Decode(); derr != nil {
					return "", derr
				} else if ok {
					return line, nil
				}
			}
			return "", err
		}
	}
}

// Flusher is implemented by streams that can flush written data.
type Flusher interface {
	Flush() error
}

// Writer encodes lines onto an io.Writer.
type Writer struct {
	w     io.Writer
	codec *Codec
	buf   bytes.Buffer
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, codec: New(0)}
}

// WriteLine encodes line, writes it and flushes w if it is a Flusher.
func (lw *Writer) WriteLine(line string) error {
	lw.buf.Reset()
	if err := lw.codec.Encode(&lw.buf, line); err != nil {
		return err
	}
	if _, err := lw.w.Write(lw.buf.Bytes()); err != nil {
		return err
	}
	if f, ok := lw.w.(Flusher); ok {
		return f.Flush()
	}
	return nil
}
