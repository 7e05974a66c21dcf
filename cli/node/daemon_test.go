package node

import (
	"bytes"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/vault/internal/testing/fake"
)

func TestSocketClient_Send(t *testing.T) {
	out := new(bytes.Buffer)

	client := socketClient{
		socketpath: filepath.Join(shortTempDir(t), SocketName),
		out:        out,
		dialFn:     net.DialTimeout,
	}

	listen(t, client.socketpath)

	err := client.Send([]byte("deadbeef"))
	require.NoError(t, err)
	require.Equal(t, "deadbeef", out.String())
}

func TestSocketClient_Failures(t *testing.T) {
	client := socketClient{
		dialFn: func(network, addr string, timeout time.Duration) (net.Conn, error) {
			return nil, fake.GetError()
		},
	}

	err := client.Send(nil)
	require.EqualError(t, err, fake.Err("couldn't open connection"))

	client.dialFn = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		return &badConn{}, nil
	}

	err = client.Send([]byte{1, 2, 3})
	require.EqualError(t, err, fake.Err("couldn't write to daemon"))

	client.dialFn = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		return &badConn{writes: 1}, nil
	}

	err = client.Send([]byte{})
	require.EqualError(t, err, fake.Err("fail to decode event"))
}

func TestSocketDaemon_Listen(t *testing.T) {
	fset := FlagSet{"fail": 0}

	buf, err := json.Marshal(&fset)
	require.NoError(t, err)

	actions := &actionMap{}
	actions.Set(fakeAction{})                     // id 0
	actions.Set(fakeAction{err: fake.GetError()}) // id 1

	daemon := newDaemon(t, actions)

	err = daemon.Listen()
	require.NoError(t, err)

	defer daemon.Close()

	out := new(bytes.Buffer)
	client := socketClient{
		socketpath:  daemon.socketpath,
		out:         out,
		dialTimeout: time.Second,
		dialFn:      net.DialTimeout,
	}

	err = client.Send(append([]byte{0x0, 0x0}, buf...))
	require.NoError(t, err)
	require.Equal(t, "deadbeef\n", out.String())

	err = client.Send(append([]byte{0x0, 0x0}, []byte(`{"fail":1}`)...))
	require.EqualError(t, err, "command error: flag is set")

	err = client.Send(append([]byte{0x1, 0x0}, []byte("{}")...))
	require.EqualError(t, err, fake.Err("command error"))

	err = client.Send(append([]byte{0x2, 0x0}, []byte("{}")...))
	require.EqualError(t, err, "unknown command '2'")

	err = client.Send([]byte{0x0, 0x0, 0x0})
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to decode flags")

	err = client.Send([]byte{0x0})
	require.Error(t, err)
	require.Contains(t, err.Error(), "stream corrupted: ")
}

func TestSocketDaemon_ConnectivityTest(t *testing.T) {
	daemon := newDaemon(t, &actionMap{})

	err := daemon.Listen()
	require.NoError(t, err)

	conn, err := net.DialTimeout("unix", daemon.socketpath, time.Second)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.NoError(t, daemon.Close())
	require.Error(t, daemon.ctx.Err())
}

func TestSocketDaemon_FailBindSocket(t *testing.T) {
	daemon := &socketDaemon{
		listenFn: func(network, addr string) (net.Listener, error) {
			return nil, fake.GetError()
		},
	}

	err := daemon.Listen()
	require.EqualError(t, err, fake.Err("couldn't bind socket"))
}

func TestSocketDaemon_ConnClosedFromClient(t *testing.T) {
	logger, check := fake.CheckLog("connection to daemon has error")

	daemon := newDaemon(t, &actionMap{})
	daemon.logger = logger

	daemon.handleConn(&badConn{reads: 1})

	check(t)
}

func TestClientWriter_Write(t *testing.T) {
	buffer := new(bytes.Buffer)

	w := newClientWriter(buffer)

	n, err := w.Write([]byte("deadbeef"))
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.Equal(t, `{"Err":false,"Value":"deadbeef"}`+"\n", buffer.String())

	w = newClientWriter(&badConn{})

	n, err = w.Write([]byte("deadbeef"))
	require.Equal(t, 0, n)
	require.EqualError(t, err, fake.Err("while packing data"))
}

func TestSocketFactory(t *testing.T) {
	factory := socketFactory{actions: &actionMap{}}

	client, err := factory.ClientFromContext(FlagSet{ConfigFlag: "cfgdir"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join("cfgdir", SocketName), client.(socketClient).socketpath)

	daemon, err := factory.DaemonFromContext(FlagSet{ConfigFlag: "cfgdir"})
	require.NoError(t, err)
	require.Equal(t, filepath.Join("cfgdir", SocketName), daemon.(*socketDaemon).socketpath)
}

// -----------------------------------------------------------------------------
// Utility functions

func newDaemon(t *testing.T, actions *actionMap) *socketDaemon {
	factory := socketFactory{injector: NewInjector(), actions: actions}

	daemon, err := factory.DaemonFromContext(FlagSet{ConfigFlag: shortTempDir(t)})
	require.NoError(t, err)

	d := daemon.(*socketDaemon)
	d.readTimeout = 50 * time.Millisecond

	return d
}

func listen(t *testing.T, path string) {
	socket, err := net.Listen("unix", path)
	require.NoError(t, err)

	go func() {
		conn, err := socket.Accept()
		if err != nil {
			return
		}

		defer socket.Close()
		defer conn.Close()

		buffer := make([]byte, 100)
		n, _ := conn.Read(buffer)

		json.NewEncoder(conn).Encode(event{Value: string(buffer[:n])})
	}()
}

// badConn is a connection that accepts a given number of reads and writes
// before failing.
type badConn struct {
	net.Conn

	reads  int
	writes int
}

func (conn *badConn) Read(data []byte) (int, error) {
	if conn.reads > 0 {
		conn.reads--
		return len(data), nil
	}

	return 0, fake.GetError()
}

func (conn *badConn) Write(data []byte) (int, error) {
	if conn.writes > 0 {
		conn.writes--
		return len(data), nil
	}

	return 0, fake.GetError()
}

func (*badConn) SetReadDeadline(t time.Time) error {
	return nil
}

func (*badConn) Close() error {
	return nil
}
