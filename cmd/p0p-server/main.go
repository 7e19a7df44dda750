// Command p0p-server runs a P0P server: `p0p-server <port>`. It reads
// stdin; `q\n` or EOF triggers a clean shutdown. Log lines go to stdout.
// Exit code 0 on clean shutdown. Argument parsing is positional
// (port, no config file, no env vars), with the standard library's flag
// package added only for the timeout-interval override, a driver-variant
// selector, and the threaded driver's reader-goroutine count.
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
	"github.com/minidomo/p0p/server"
	"github.com/minidomo/p0p/transport"
)

func main() {
	timeout := flag.Duration("timeout", p0p.DefaultTimeoutInterval, "idle/liveness timeout interval")
	driver := flag.String("driver", "threaded", "concurrency driver: threaded or event")
	workers := flag.Int("workers", 10, "reader goroutines for the threaded driver")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: p0p-server [flags] <port>")
		os.Exit(1)
	}
	port := flag.Arg(0)

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort("0.0.0.0", port))
	if err != nil {
		log.Fatalf("error resolving port %s: %s", port, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		log.Fatalf("error listening on %s: %s", addr, err)
	}
	log.Printf("listening on %s", addr)

	logger := log.New(os.Stdout, "", 0)

	switch *driver {
	case "threaded":
		runThreaded(conn, logger, *timeout, *workers)
	case "event":
		runEventLoop(conn, logger, *timeout)
	default:
		fmt.Fprintf(os.Stderr, "unknown driver %q: want threaded or event\n", *driver)
		os.Exit(1)
	}
}

func runThreaded(conn *net.UDPConn, logger *log.Logger, timeout time.Duration, workers int) {
	drv := transport.NewThreadedServer(conn)
	srv := server.New(drv, logger, timeout)
	drv.Attach(srv)
	drv.Serve(workers, timeout)

	waitForShutdown()
	drv.Stop()
}

func runEventLoop(conn *net.UDPConn, logger *log.Logger, timeout time.Duration) {
	drv := transport.NewEventLoopServer(conn)
	srv := server.New(drv, logger, timeout)
	drv.Attach(srv)

	go drv.Run(timeout)

	waitForShutdown()
	drv.Stop()
}

// waitForShutdown reads stdin until EOF or a "q" line, matching the
// keyboard-handling thread in the Python original's Thread/server.py.
func waitForShutdown() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if scanner.Text() == "q" {
			return
		}
	}
}
