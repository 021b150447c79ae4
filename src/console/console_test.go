package console

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testRegistry() *Registry {
	r := NewRegistry()
	r.Register("echo", "<text>", "prints text", func(_ context.Context, arg string) (any, error) {
		return arg, nil
	})
	db := r.Scope("database")
	db.Register("data", "", "prints the database", func(context.Context, string) (any, error) {
		return map[string]any{"xp": map[string]int{"1": 10}}, nil
	})
	db.Register("save", "", "saves the database", func(context.Context, string) (any, error) {
		return nil, errors.New("disk full")
	})
	r.Register("panic", "", "panics", func(context.Context, string) (any, error) {
		panic("oops")
	})
	return r
}

func TestRegistryRun(t *testing.T) {
	r := testRegistry()
	ctx := context.Background()

	out, err := r.Run(ctx, "  echo   ala ma kota ")
	require.NoError(t, err)
	assert.Equal(t, "ala ma kota", out)

	out, err = r.Run(ctx, "database.data")
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"xp\": {\n    \"1\": 10\n  }\n}", out)

	_, err = r.Run(ctx, "database.data now")
	assert.EqualError(t, err, `operation "database.data" expects no arguments`)
	_, err = r.Run(ctx, "database.load")
	assert.EqualError(t, err, `unknown operation: "database.load"`)

	out, err = r.Run(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, out)

	help := r.Help()
	assert.True(t, strings.HasPrefix(help, "Operations:\n"))
	assert.Contains(t, help, "  database.data  prints the database\n")
	assert.Contains(t, help, "  echo <text>    prints text\n")
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, s *Server) *client {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

// until reads up to and including suffix.
func (c *client) until(suffix string) string {
	c.t.Helper()
	var b strings.Builder
	for !strings.HasSuffix(b.String(), suffix) {
		ch, err := c.r.ReadByte()
		require.NoError(c.t, err, "read so far: %q", b.String())
		b.WriteByte(ch)
	}
	return b.String()
}

func (c *client) send(line string) {
	c.t.Helper()
	_, err := io.WriteString(c.conn, line+"\n")
	require.NoError(c.t, err)
}

func startServer(t *testing.T, timeout time.Duration) *Server {
	t.Helper()
	s := NewServer(Options{
		Host:     "127.0.0.1",
		Hello:    "OOOZet",
		Timeout:  func() time.Duration { return timeout },
		Registry: testRegistry(),
	})
	require.NoError(t, s.Start(context.Background()))
	return s
}

func TestSession(t *testing.T) {
	s := startServer(t, time.Minute)
	defer s.Stop()
	c := dial(t, s)
	defer c.conn.Close()

	assert.Equal(t, "OOOZet says hello!\nType \"help\" to get a list of available operations.\n> ", c.until("> "))

	c.send("help")
	assert.Contains(t, c.until("> "), "database.save")

	c.send("echo hej")
	assert.Equal(t, "hej\n> ", c.until("> "))

	c.send("database.save")
	assert.Equal(t, "Error: disk full\n> ", c.until("> "))

	c.send("panic")
	assert.Equal(t, "Error: panic: oops\n> ", c.until("> "))

	c.send("bye")
	assert.Equal(t, "Goodbye!\n", c.until("\n"))
	_, err := c.r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSessionTimeout(t *testing.T) {
	s := startServer(t, 50*time.Millisecond)
	defer s.Stop()
	c := dial(t, s)
	defer c.conn.Close()

	c.until("> ")
	assert.Equal(t, "\nTimed out after 0.05 seconds.\n", c.until("seconds.\n"))

	// the next operator is served after the first one leaves
	c2 := dial(t, s)
	defer c2.conn.Close()
	assert.Contains(t, c2.until("> "), "says hello!")
}

func TestStopSaysGoodbye(t *testing.T) {
	s := startServer(t, time.Minute)
	c := dial(t, s)
	defer c.conn.Close()
	c.until("> ")

	s.Stop()
	assert.Equal(t, "\nI have to go, bye.\n", c.until("bye.\n"))
	assert.Nil(t, s.Addr())
}
