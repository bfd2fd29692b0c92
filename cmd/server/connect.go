package main

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func connectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "connect [host:port]",
		Short: "Join a relay from the terminal",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr := "127.0.0.1:1608"
			if len(args) == 1 {
				addr = args[0]
			}
			return runClient(addr, os.Stdin, os.Stdout)
		},
	}
	return cmd
}

// runClient copies server output to out and each non-empty input line to the
// server until either side closes.
func runClient(addr string, in io.Reader, out io.Writer) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()
	fmt.Fprintf(out, "Connected to chat server at %s\n", addr)

	received := make(chan error, 1)
	go func() {
		_, err := io.Copy(out, conn)
		received <- err
	}()

	sent := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if _, err := io.WriteString(conn, line+"\n"); err != nil {
				sent <- err
				return
			}
		}
		sent <- scanner.Err()
	}()

	select {
	case err := <-received:
		fmt.Fprintln(out, "\nDisconnected from server")
		return err
	case err := <-sent:
		// Input closed: let the server see the end of stream.
		if tcp, ok := conn.(*net.TCPConn); ok {
			_ = tcp.CloseWrite()
		}
		<-received
		fmt.Fprintln(out, "\nDisconnected from server")
		return err
	}
}
