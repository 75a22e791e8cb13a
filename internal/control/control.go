// Package control carries textual control lines into the evaluator: a UDP
// listener for remote live-coding clients and a stdin REPL for local use.
// Transports know nothing about signals; they ship lines and print replies.
package control

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"go.uber.org/zap"

	"kiln/internal/lang"
)

// ServeUDP answers line-oriented datagrams on addr until ctx is cancelled.
// One datagram may carry several newline-separated lines; each gets its own
// reply datagram.
func ServeUDP(ctx context.Context, addr string, ev *lang.Evaluator, log *zap.Logger) error {
	pc, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("control: %w", err)
	}
	go func() {
		<-ctx.Done()
		pc.Close()
	}()
	log.Info("control listening", zap.String("addr", pc.LocalAddr().String()))

	buf := make([]byte, 64*1024)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("control: %w", err)
		}
		var reply strings.Builder
		for _, line := range strings.Split(string(buf[:n]), "\n") {
			if strings.TrimSpace(line) == "" {
				continue
			}
			resp, err := ev.Eval(line)
			if err != nil {
				log.Warn("bad control line", zap.String("line", line), zap.Error(err))
				fmt.Fprintf(&reply, "error: %v\n", err)
				continue
			}
			if resp != "" {
				reply.WriteString(resp + "\n")
			}
		}
		if reply.Len() > 0 {
			if _, err := pc.WriteTo([]byte(reply.String()), from); err != nil {
				log.Warn("control reply failed", zap.Error(err))
			}
		}
	}
}

// REPL reads lines from r and writes replies to w until EOF or "quit".
func REPL(r io.Reader, w io.Writer, ev *lang.Evaluator, log *zap.Logger) error {
	sc := bufio.NewScanner(r)
	fmt.Fprint(w, "> ")
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "quit" || line == "exit" {
			return nil
		}
		resp, err := ev.Eval(line)
		switch {
		case err != nil:
			fmt.Fprintf(w, "error: %v\n", err)
		case resp != "":
			fmt.Fprintln(w, resp)
		}
		fmt.Fprint(w, "> ")
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("control: %w", err)
	}
	return nil
}
