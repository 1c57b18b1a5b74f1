package ingress_test

import (
	"bufio"
	"context"
	"crypto/tls"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/lrstanley/girc"
	"github.com/presbrey/ircgate/config"
	"github.com/presbrey/ircgate/ingress"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ircClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, addr net.Addr) *ircClient {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &ircClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *ircClient) send(t *testing.T, line string) {
	t.Helper()
	_, err := c.conn.Write([]byte(line + "\r\n"))
	require.NoError(t, err)
}

// expect reads the next line and parses it as an event.
func (c *ircClient) expect(t *testing.T) *girc.Event {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer c.conn.SetReadDeadline(time.Time{})

	line, err := c.reader.ReadString('\n')
	require.NoError(t, err)
	e := girc.ParseEvent(strings.TrimRight(line, "\r\n"))
	require.NotNil(t, e, "unparseable line %q", line)
	return e
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.TLS.Host = "127.0.0.1"
	cfg.TLS.Port = 0
	return cfg
}

// echoHandler answers PING with PONG and everything else with a NOTICE
// naming the command and whether the session is secure.
var echoHandler = ingress.HandlerFunc(func(sess *ingress.Session, e *girc.Event) {
	if e.Command == girc.PING {
		sess.Send(&girc.Event{Command: girc.PONG, Params: e.Params})
		return
	}
	secure := "plain"
	if sess.IsSecure() {
		secure = "secure"
	}
	sess.Send(&girc.Event{Command: girc.NOTICE, Params: []string{"*", e.Command + " " + secure}})
})

func startServer(t *testing.T, cfg *config.Config, handler ingress.Handler) *ingress.Server {
	t.Helper()
	srv, err := ingress.New(cfg, handler)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv
}

func TestStructuralChecks(t *testing.T) {
	srv := startServer(t, testConfig(), echoHandler)
	client := dial(t, srv.Addr())

	tests := []struct {
		line    string
		command string
		params  []string
	}{
		{"MODE", "461", []string{"*", "MODE", "Not enough parameters"}},
		{"MODE #chan +o", "696", []string{"*", "#chan", "o", "*", "No argument"}},
		{"MODE #chan +o bad.nick", "696", []string{"*", "#chan", "o", "bad.nick", "Username must not contain '.', ',' or ':'."}},
		{"MODE #chan +x", "472", []string{"*", "x", "is unknown mode char to me for #chan"}},
		{"MODE #chan -l 10", "696", []string{"*", "#chan", "l", "10", "Unexpected argument"}},
		{"MODE #chan +k", "696", []string{"*", "#chan", "k", "*", "No argument"}},
		{"MODE bob +x", "501", []string{"*", "Unknown MODE flag"}},
		{"MODE bob +i extra", "400", []string{"*", "MODE", "Wrong parameter 1 in command 'MODE'"}},
		{"MODE #bad:chan +i", "403", []string{"*", "#bad:chan", "No such channel"}},
		{"NICK", "431", []string{"*", "No nickname given"}},
		{"NICK bad.nick", "432", []string{"*", "bad.nick", "Username must not contain '.', ',' or ':'."}},
		{"JOIN", "461", []string{"*", "JOIN", "Not enough parameters"}},
		{"JOIN #ok,bad", "403", []string{"*", "bad", "No such channel"}},
		{"PART nochan", "403", []string{"*", "nochan", "No such channel"}},
		{"PRIVMSG", "411", []string{"*", "No recipient given (PRIVMSG)"}},
		{"PRIVMSG bob", "412", []string{"*", "No text to send"}},
		{"PRIVMSG bob,#chan,x.y :hi", "401", []string{"*", "x.y", "No such nick/channel"}},
		{"NOTICE a.b :hi", "401", []string{"*", "a.b", "No such nick/channel"}},
		{"PING", "409", []string{"*", "No origin specified"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			client.send(t, tt.line)
			e := client.expect(t)
			assert.Equal(t, "ircgate.local", e.Source.Name)
			assert.Equal(t, tt.command, e.Command)
			assert.Equal(t, tt.params, e.Params)
		})
	}

	assert.Equal(t, float64(len(tests)), testutil.ToFloat64(srv.Metrics().LinesReceived))
}

func TestValidCommandsReachHandler(t *testing.T) {
	srv := startServer(t, testConfig(), echoHandler)
	client := dial(t, srv.Addr())

	for _, line := range []string{
		"MODE #chan +lk 10 key",
		"MODE #chan -lk+i",
		"MODE #chan +ovhqa alice bob carol dave eve",
		"MODE #chan +b",
		"MODE bob +iw-o",
		"NICK alice",
		"JOIN 0",
		"JOIN #a,&b",
		"PART #a",
		"PRIVMSG @#chan,~&ops,bob :hello there",
		"NOTICE #chan :hi",
		"USER alice 0 * :Alice",
	} {
		client.send(t, line)
		e := client.expect(t)
		require.Equal(t, girc.NOTICE, e.Command, line)
		assert.Equal(t, strings.Fields(line)[0]+" plain", e.Last(), line)
	}

	client.send(t, "ping :token")
	e := client.expect(t)
	assert.Equal(t, girc.PONG, e.Command)
	assert.Equal(t, []string{"token"}, e.Params)
}

func TestInvalidSourceDropped(t *testing.T) {
	srv := startServer(t, testConfig(), echoHandler)
	client := dial(t, srv.Addr())

	client.send(t, ":nick@host!user PRIVMSG bob :hi")
	client.send(t, ":a:b PRIVMSG bob :hi")
	client.send(t, "@a=b :bad:src PRIVMSG x :y")
	client.send(t, ":nick!user@host PING first")
	client.send(t, "@time=1 :nick!user@host PING second")

	e := client.expect(t)
	assert.Equal(t, girc.PONG, e.Command)
	assert.Equal(t, []string{"first"}, e.Params)
	e = client.expect(t)
	assert.Equal(t, []string{"second"}, e.Params)
	assert.Equal(t, float64(3), testutil.ToFloat64(srv.Metrics().ValidationFailures.WithLabelValues("", "invalid_source")))
}

func TestLineTooLong(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxLineLength = 16
	srv := startServer(t, cfg, echoHandler)
	client := dial(t, srv.Addr())

	client.send(t, "PING short")
	assert.Equal(t, girc.PONG, client.expect(t).Command)

	client.send(t, "PRIVMSG bob :this line is too long")
	e := client.expect(t)
	assert.Equal(t, girc.ERROR, e.Command)
	assert.Equal(t, []string{"Line too long"}, e.Params)

	client.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := client.reader.ReadString('\n')
	assert.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(srv.Metrics().LineTooLong))
}

func TestStartTLSUnavailable(t *testing.T) {
	srv := startServer(t, testConfig(), echoHandler)
	client := dial(t, srv.Addr())

	client.send(t, "STARTTLS")
	e := client.expect(t)
	assert.Equal(t, "691", e.Command)

	client.send(t, "PING still-plain")
	assert.Equal(t, girc.PONG, client.expect(t).Command)
}

func TestStartTLS(t *testing.T) {
	cfg := testConfig()
	cfg.TLS.StartTLS = true
	srv := startServer(t, cfg, echoHandler)
	client := dial(t, srv.Addr())

	client.send(t, "STARTTLS")
	e := client.expect(t)
	require.Equal(t, "670", e.Command)

	tlsConn := tls.Client(client.conn, &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, tlsConn.Handshake())
	secure := &ircClient{conn: tlsConn, reader: bufio.NewReader(tlsConn)}

	secure.send(t, "NICK alice")
	e = secure.expect(t)
	assert.Equal(t, "NICK secure", e.Last())

	secure.send(t, "STARTTLS")
	e = secure.expect(t)
	assert.Equal(t, "691", e.Command)
	assert.Equal(t, float64(1), testutil.ToFloat64(srv.Metrics().TLSUpgrades))
}

func TestTLSListener(t *testing.T) {
	cfg := testConfig()
	cfg.TLS.Enabled = true
	srv := startServer(t, cfg, echoHandler)
	require.NotNil(t, srv.TLSAddr())

	conn, err := tls.Dial("tcp", srv.TLSAddr().String(), &tls.Config{InsecureSkipVerify: true})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	client := &ircClient{conn: conn, reader: bufio.NewReader(conn)}

	client.send(t, "JOIN #secure")
	e := client.expect(t)
	assert.Equal(t, "JOIN secure", e.Last())
	assert.Equal(t, float64(1), testutil.ToFloat64(srv.Metrics().ConnectionsTotal.WithLabelValues("true")))
}

func TestNumericUsesNick(t *testing.T) {
	handler := ingress.HandlerFunc(func(sess *ingress.Session, e *girc.Event) {
		if e.Command == girc.NICK {
			sess.SetNick(e.Params[0])
		}
	})
	srv := startServer(t, testConfig(), handler)
	client := dial(t, srv.Addr())

	client.send(t, "NICK alice")
	client.send(t, "PING")
	e := client.expect(t)
	assert.Equal(t, []string{"alice", "No origin specified"}, e.Params)
}

func TestShutdownClosesSessions(t *testing.T) {
	srv, err := ingress.New(testConfig(), echoHandler)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	client := dial(t, srv.Addr())

	client.send(t, "PING ready")
	require.Equal(t, girc.PONG, client.expect(t).Command)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	e := client.expect(t)
	assert.Equal(t, girc.ERROR, e.Command)
	assert.Equal(t, float64(0), testutil.ToFloat64(srv.Metrics().ActiveConnections))

	require.NoError(t, srv.Shutdown(ctx))
}

// flood sends PINGs without ever reading the replies, until the server
// stops reading as well or drops the connection.
func flood(conn net.Conn) {
	chunk := []byte(strings.Repeat("PING "+strings.Repeat("x", 400)+"\r\n", 64))
	for {
		conn.SetWriteDeadline(time.Now().Add(500 * time.Millisecond))
		if _, err := conn.Write(chunk); err != nil {
			return
		}
	}
}

func TestShutdownWithStalledClient(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.WriteTimeout = config.Duration{}
	srv, err := ingress.New(cfg, echoHandler)
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	client := dial(t, srv.Addr())

	flood(client.conn)
	require.Equal(t, float64(1), testutil.ToFloat64(srv.Metrics().ActiveConnections))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	start := time.Now()
	require.NoError(t, srv.Shutdown(ctx))
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, float64(0), testutil.ToFloat64(srv.Metrics().ActiveConnections))
}

func TestWriteTimeoutDropsStalledClient(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.WriteTimeout = config.Duration{Duration: 200 * time.Millisecond}
	srv := startServer(t, cfg, echoHandler)
	client := dial(t, srv.Addr())

	flood(client.conn)

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(srv.Metrics().ActiveConnections) == 0
	}, 5*time.Second, 50*time.Millisecond)
}
