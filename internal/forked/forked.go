// Package forked runs the test server in a child process and relays the
// bound address back over a pipe. The server's behavior is identical whether
// hosted in-process or here; this is orchestration only.
package forked

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
)

// Start launches path with args and waits for the child to print its bound
// "host:port" as the first line on stdout. It returns the address and a stop
// function that terminates the child; ctx cancellation also kills it.
func Start(ctx context.Context, path string, args ...string) (string, func() error, error) {
	cmd := exec.CommandContext(ctx, path, args...)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return "", nil, fmt.Errorf("forked: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return "", nil, fmt.Errorf("forked: start %s: %w", path, err)
	}
	stop := func() error {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil
	}

	type lineOrErr struct {
		line string
		err  error
	}
	ch := make(chan lineOrErr, 1)
	go func() {
		line, err := bufio.NewReader(out).ReadString('\n')
		ch <- lineOrErr{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		_ = stop()
		return "", nil, ctx.Err()
	case got := <-ch:
		if got.err != nil {
			_ = stop()
			return "", nil, fmt.Errorf("forked: read bound address: %w", got.err)
		}
		addr := strings.TrimSpace(got.line)
		if _, _, err := net.SplitHostPort(addr); err != nil {
			_ = stop()
			return "", nil, fmt.Errorf("forked: bad bound address %q: %w", addr, err)
		}
		return addr, stop, nil
	}
}
