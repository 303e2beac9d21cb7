//go:build unix

package supervisor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/thewtex/hashdist/pkg/logging"
)

// supportsLogPipes is true on every platform this file builds for: Linux,
// the BSDs, and Darwin all support mkfifo(2) and poll(2).
const supportsLogPipes = true

func createFifo(path string) error {
	if err := unix.Mkfifo(path, 0600); err != nil {
		return err
	}
	return nil
}

// fdState tracks one multiplexed descriptor: its line-assembly buffer, the
// sub-logger/level it reports through, and (for FIFOs only) the path to
// reopen on hangup.
type fdState struct {
	fd        int
	buf       []byte
	logger    logging.Logger
	level     logging.Level
	isStd     bool // stdout or stderr: never reopened on HUP
	isStdout  bool
	fifoPath  string
}

// multiplex weaves together stdout, stderr, and every currently-registered
// log pipe into logger until the child exits and all descriptors are
// drained. It implements the "platforms with FIFO polling"
// mode; the non-blocking/poll(2) approach below is a direct port of the
// original's `_log_process_with_logpipes`.
func multiplex(proc *exec.Cmd, stdoutR, stderrR *os.File, registry *LogPipeRegistry, stdoutSink io.Writer, logger logging.Logger) (int, error) {
	states := map[int]*fdState{}

	stdoutFd := int(stdoutR.Fd())
	stderrFd := int(stderrR.Fd())
	states[stdoutFd] = &fdState{fd: stdoutFd, logger: logger.SubLogger("stdout"), level: logging.DEBUG, isStd: true, isStdout: true}
	states[stderrFd] = &fdState{fd: stderrFd, logger: logger.SubLogger("stderr"), level: logging.DEBUG, isStd: true}

	for _, entry := range registry.Snapshot() {
		fd, err := openFifoNonblockThenBlock(entry.path)
		if err != nil {
			return -1, fmt.Errorf("failed to open log pipe %q: %w", entry.path, err)
		}
		states[fd] = &fdState{
			fd:       fd,
			logger:   logger.SubLogger(entry.key.header),
			level:    entry.key.level,
			fifoPath: entry.path,
		}
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- proc.Wait() }()

	var finalErr error
	waitDone := false

	for {
		pollfds := make([]unix.PollFd, 0, len(states))
		fdOrder := make([]int, 0, len(states))
		for fd := range states {
			pollfds = append(pollfds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
			fdOrder = append(fdOrder, fd)
		}

		n, err := unix.Poll(pollfds, 50)
		if err != nil && err != unix.EINTR {
			finalErr = fmt.Errorf("poll failed: %w", err)
			break
		}

		if n == 0 {
			select {
			case finalErr = <-waitErr:
				waitDone = true
			default:
			}
			if waitDone {
				break
			}
			continue
		}

		for i, pfd := range pollfds {
			if pfd.Revents == 0 {
				continue
			}
			fd := fdOrder[i]
			st := states[fd]
			switch {
			case pfd.Revents&unix.POLLIN != 0:
				readAndEmit(st, stdoutSink)
			case pfd.Revents&unix.POLLHUP != 0:
				if st.isStd {
					flushBuffer(st)
					unix.Close(fd)
					delete(states, fd)
				} else {
					flushBuffer(st)
					unix.Close(fd)
					newFd, err := openFifoNonblockThenBlock(st.fifoPath)
					delete(states, fd)
					if err == nil {
						states[newFd] = &fdState{fd: newFd, logger: st.logger, level: st.level, fifoPath: st.fifoPath}
					}
				}
			}
		}
	}

	if !waitDone {
		finalErr = <-waitErr
	}
	// A non-zero exit is reported through the exit code, not as an error.
	var exitErr *exec.ExitError
	if errors.As(finalErr, &exitErr) {
		finalErr = nil
	}

	// Drain whatever's left, then close every descriptor we still hold
	// open.
	for _, st := range states {
		drainRemaining(st, stdoutSink)
		flushBuffer(st)
		unix.Close(st.fd)
	}

	exitCode := proc.ProcessState.ExitCode()
	return exitCode, finalErr
}

func openFifoNonblockThenBlock(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_NONBLOCK|unix.O_RDONLY, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

const logPipeBufSize = 4096

func readAndEmit(st *fdState, stdoutSink io.Writer) {
	buf := make([]byte, logPipeBufSize)
	n, err := unix.Read(st.fd, buf)
	if err != nil || n <= 0 {
		return
	}
	if st.isStdout && stdoutSink != nil {
		_, _ = stdoutSink.Write(buf[:n])
		return
	}
	appendAndEmitLines(st, buf[:n])
}

func drainRemaining(st *fdState, stdoutSink io.Writer) {
	for {
		buf := make([]byte, logPipeBufSize)
		n, err := unix.Read(st.fd, buf)
		if err != nil || n <= 0 {
			return
		}
		if st.isStdout && stdoutSink != nil {
			_, _ = stdoutSink.Write(buf[:n])
			continue
		}
		appendAndEmitLines(st, buf[:n])
	}
}

func appendAndEmitLines(st *fdState, b []byte) {
	st.buf = append(st.buf, b...)
	for {
		idx := indexByte(st.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(st.buf[:idx])
		st.buf = st.buf[idx+1:]
		st.logger.Log(st.level, line)
	}
}

func flushBuffer(st *fdState) {
	if len(st.buf) > 0 {
		st.logger.Log(st.level, string(st.buf))
		st.buf = nil
	}
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}
