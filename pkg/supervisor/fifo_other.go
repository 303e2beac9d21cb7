//go:build !unix

package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/thewtex/hashdist/pkg/jobspec"
	"github.com/thewtex/hashdist/pkg/logging"
)

// supportsLogPipes is false here: mkfifo(2)/poll(2) aren't available, so
// this build only supports the simple stdout/stderr demux.
const supportsLogPipes = false

// createFifo has no portable equivalent outside unix; it still creates a
// placeholder file so `hit logpipe` can report a stable path, but the
// supervisor below refuses to spawn once any pipe is registered.
func createFifo(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	return f.Close()
}

// multiplex implements the simple demux contract using one goroutine per
// stream instead of a non-blocking poll(2) loop (unavailable on this
// platform): functionally equivalent line-assembly and EOF handling,
// without the artificial ~50ms cadence the poll-based unix implementation
// uses.
func multiplex(proc *exec.Cmd, stdoutR, stderrR *os.File, registry *LogPipeRegistry, stdoutSink io.Writer, logger logging.Logger) (int, error) {
	if !registry.Empty() {
		return -1, &jobspec.LogPipesUnsupportedError{}
	}

	done := make(chan struct{}, 2)
	pump := func(r *os.File, sink io.Writer, sub logging.Logger) {
		defer func() { done <- struct{}{} }()
		if sink != nil {
			_, _ = io.Copy(sink, r)
			return
		}
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			sub.Log(logging.DEBUG, scanner.Text())
		}
	}

	go pump(stdoutR, stdoutSink, logger.SubLogger("stdout"))
	go pump(stderrR, nil, logger.SubLogger("stderr"))
	<-done
	<-done

	err := proc.Wait()
	if err != nil && !errors.As(err, new(*exec.ExitError)) {
		return -1, fmt.Errorf("failed to wait for child: %w", err)
	}
	return proc.ProcessState.ExitCode(), nil
}
