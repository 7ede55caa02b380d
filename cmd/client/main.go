package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/andy6609/chat-relay/internal/chat"
	"github.com/andy6609/chat-relay/internal/version"
)

func main() {
	app := &cli.App{
		Name:      "relay-client",
		Usage:     "connect to a relay, register a name and exchange messages",
		UsageText: "relay-client --name alice\n\nthen type lines such as: bob,carol: hello",
		Version:   version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Value: "127.0.0.1:8000", Usage: "relay address"},
			&cli.StringFlag{Name: "name", Required: true, Usage: "peer name to register"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "relay-client:", err)
		os.Exit(1)
	}
}

// errRelayClosed ends the session when the relay closes the stream.
var errRelayClosed = errors.New("relay closed the connection")

func run(c *cli.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(c.Context, "tcp", c.String("addr"))
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", c.String("name")); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	g, gctx := errgroup.WithContext(c.Context)
	g.Go(func() error {
		if err := printPayloads(conn, os.Stdout); err != nil {
			return err
		}
		return errRelayClosed
	})
	g.Go(func() error {
		return forwardLines(gctx, scanLines(os.Stdin), conn)
	})
	g.Go(func() error {
		// Unblocks printPayloads when the group is cancelled from outside.
		<-gctx.Done()
		return conn.Close()
	})

	err = g.Wait()
	if errors.Is(err, errRelayClosed) || errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// printPayloads prints the text of every payload until the relay closes the
// stream.
func printPayloads(r io.Reader, w io.Writer) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		p, err := chat.DecodePayload(sc.Bytes())
		if err != nil {
			return err
		}
		if p.Text != nil {
			fmt.Fprint(w, *p.Text)
		}
	}
	return sc.Err()
}

// scanLines feeds r's lines into a channel that is closed at end of input.
// A blocked read on r cannot be interrupted, so the goroutine may outlive run.
func scanLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	return lines
}

// forwardLines copies lines to the relay until ctx is done or input ends, in
// which case the connection is half-closed.
func forwardLines(ctx context.Context, lines <-chan string, conn net.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				if cw, ok := conn.(interface{ CloseWrite() error }); ok {
					return cw.CloseWrite()
				}
				return nil
			}
			if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}
