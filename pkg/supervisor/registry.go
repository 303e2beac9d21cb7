package supervisor

import (
	"fmt"
	"sync"

	"github.com/thewtex/hashdist/pkg/logging"
)

// registryKey identifies one log pipe by (header, level); insertion under
// an existing key is idempotent.
type registryKey struct {
	header string
	level  logging.Level
}

// pipeEntry is one registered side-channel log pipe.
type pipeEntry struct {
	key  registryKey
	path string
}

// LogPipeRegistry creates and tracks the named FIFOs a job's `hit logpipe`
// invocations request. It is process-wide with respect to a
// single run and is consulted by the supervisor every time a child is
// spawned.
type LogPipeRegistry struct {
	dir string

	mu      sync.Mutex
	entries map[registryKey]string
	order   []pipeEntry
}

// NewLogPipeRegistry creates a registry rooted at dir, which must be the
// run's TempDir path.
func NewLogPipeRegistry(dir string) *LogPipeRegistry {
	return &LogPipeRegistry{dir: dir, entries: map[registryKey]string{}}
}

// GetOrCreate returns the FIFO path for (header, level), creating it if
// this is the first request for that key; a repeated request for the same
// key returns the same path.
func (r *LogPipeRegistry) GetOrCreate(header string, level logging.Level) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := registryKey{header: header, level: level}
	if path, ok := r.entries[key]; ok {
		return path, nil
	}

	path := fmt.Sprintf("%s/logpipe-%s-%s", r.dir, header, level)
	if err := createFifo(path); err != nil {
		return "", fmt.Errorf("failed to create log pipe %q: %w", path, err)
	}
	r.entries[key] = path
	r.order = append(r.order, pipeEntry{key: key, path: path})
	return path, nil
}

// Empty reports whether any log pipes have been registered yet.
func (r *LogPipeRegistry) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.order) == 0
}

// Snapshot returns the currently registered pipes, in registration order,
// for the supervisor to open ahead of a single child's lifetime.
func (r *LogPipeRegistry) Snapshot() []pipeEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]pipeEntry(nil), r.order...)
}
