package transport

import (
	"io"
	"log"
	"net"
	"testing"
	"time"

	"github.com/minidomo/p0p/client"
	"github.com/minidomo/p0p/server"
)

func listenLocal(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	return conn
}

func TestThreadedHelloAndGoodbye(t *testing.T) {
	serverConn := listenLocal(t)
	logger := log.New(io.Discard, "", 0)

	srvDrv := NewThreadedServer(serverConn)
	srv := server.New(srvDrv, logger, time.Second)
	srvDrv.Attach(srv)
	srvDrv.Serve(2, time.Second)
	defer srvDrv.Stop()

	clientConn, err := net.DialUDP("udp", nil, serverConn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}

	cliDrv := NewThreadedClient(clientConn)
	c := client.New(clientConn.RemoteAddr(), 2*time.Second, cliDrv)
	cliDrv.Attach(c)

	if err := c.SendHello(); err != nil {
		t.Fatalf("SendHello: %v", err)
	}

	waitFor(t, func() bool { return c.State() == client.Ready })

	if err := c.SendGoodbye(); err != nil {
		t.Fatalf("SendGoodbye: %v", err)
	}

	select {
	case <-cliDrv.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("client did not close after goodbye exchange")
	}

	if !c.IsClosed() {
		t.Error("expected client closed after goodbye exchange")
	}
}

func TestEventLoopHelloAndGoodbye(t *testing.T) {
	serverConn := listenLocal(t)
	logger := log.New(io.Discard, "", 0)

	srvDrv := NewEventLoopServer(serverConn)
	srv := server.New(srvDrv, logger, time.Second)
	srvDrv.Attach(srv)
	go srvDrv.Run(200 * time.Millisecond)
	defer srvDrv.Stop()

	clientConn, err := net.DialUDP("udp", nil, serverConn.LocalAddr().(*net.UDPAddr))
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}

	cliDrv := NewEventLoopClient(clientConn)
	c := client.New(clientConn.RemoteAddr(), 2*time.Second, cliDrv)
	cliDrv.Attach(c)

	go cliDrv.Run()

	if err := c.SendHello(); err != nil {
		t.Fatalf("SendHello: %v", err)
	}

	waitFor(t, func() bool { return c.State() == client.Ready })

	if err := c.SendGoodbye(); err != nil {
		t.Fatalf("SendGoodbye: %v", err)
	}

	waitFor(t, c.IsClosed)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
