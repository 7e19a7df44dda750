// Command p0p-client runs a P0P client: `p0p-client <host> <port>`. It
// reads stdin; each non-empty line is sent as one DATA payload; `q\n` or
// EOF triggers GOODBYE. Exit code 0 on clean shutdown.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/minidomo/p0p"
	"github.com/minidomo/p0p/client"
	"github.com/minidomo/p0p/transport"
)

func main() {
	timeout := flag.Duration("timeout", p0p.DefaultTimeoutInterval, "liveness timeout interval")
	driver := flag.String("driver", "threaded", "concurrency driver: threaded or event")
	flag.Parse()

	if flag.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: p0p-client [flags] <host> <port>")
		os.Exit(1)
	}
	host, port := flag.Arg(0), flag.Arg(1)

	raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, port))
	if err != nil {
		log.Fatalf("error resolving %s:%s: %s", host, port, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		log.Fatalf("error dialing %s: %s", raddr, err)
	}

	switch *driver {
	case "threaded":
		runThreaded(conn, *timeout)
	case "event":
		runEventLoop(conn, *timeout)
	default:
		fmt.Fprintf(os.Stderr, "unknown driver %q: want threaded or event\n", *driver)
		os.Exit(1)
	}
}

func runThreaded(conn *net.UDPConn, timeout time.Duration) {
	drv := transport.NewThreadedClient(conn)
	c := client.New(conn.RemoteAddr(), timeout, drv)
	drv.Attach(c)

	if err := c.SendHello(); err != nil {
		log.Fatalf("error sending hello: %s", err)
	}

	go readStdin(c)

	<-drv.Done()
}

func runEventLoop(conn *net.UDPConn, timeout time.Duration) {
	drv := transport.NewEventLoopClient(conn)
	c := client.New(conn.RemoteAddr(), timeout, drv)
	drv.Attach(c)

	if err := c.SendHello(); err != nil {
		log.Fatalf("error sending hello: %s", err)
	}

	go readStdin(c)

	drv.Run()
}

// readStdin feeds each non-empty line to the client as a DATA payload,
// and sends GOODBYE on "q" or EOF.
func readStdin(c *client.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "q" {
			break
		}
		if line == "" {
			continue
		}
		if err := c.SendData(line); err != nil {
			log.Printf("error sending data: %s", err)
		}
	}
	if err := c.SendGoodbye(); err != nil {
		log.Printf("error sending goodbye: %s", err)
	}
}
