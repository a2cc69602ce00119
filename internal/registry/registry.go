// Package registry holds the process-wide config_id -> BotSupervisor
// mapping (spec §4.7), the one place outside a supervisor itself that
// knows which bots are currently running.
package registry

import (
	"sync"
	"time"

	"dcagrid/internal/core"
	"dcagrid/internal/supervisor"
	"dcagrid/internal/telemetry"
)

// Registry is safe for concurrent use from the recovery pass, the API
// layer (start/stop requests), and the shutdown path.
type Registry struct {
	mu   sync.RWMutex
	sups map[string]*supervisor.BotSupervisor
	log  core.Logger
}

func New(logger core.Logger) *Registry {
	return &Registry{
		sups: make(map[string]*supervisor.BotSupervisor),
		log:  logger.WithField("component", "registry"),
	}
}

// Add registers sup under id. If an entry already exists it is replaced;
// the old supervisor is stopped on a detached goroutine so a slow
// cancellation never blocks the caller (e.g. an API request restarting a
// bot with changed config).
func (r *Registry) Add(id string, sup *supervisor.BotSupervisor) {
	r.mu.Lock()
	old, existed := r.sups[id]
	r.sups[id] = sup
	count := len(r.sups)
	r.mu.Unlock()

	if existed {
		go old.Stop()
		r.log.Info("replaced supervisor", "config_id", id)
	}
	telemetry.GetGlobalMetrics().SetActiveSupervisors(count)
}

func (r *Registry) Get(id string) (*supervisor.BotSupervisor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sup, ok := r.sups[id]
	return sup, ok
}

// Remove stops and unregisters the supervisor for id, if present.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	sup, ok := r.sups[id]
	if ok {
		delete(r.sups, id)
	}
	count := len(r.sups)
	r.mu.Unlock()

	if ok {
		sup.Stop()
	}
	telemetry.GetGlobalMetrics().SetActiveSupervisors(count)
}

func (r *Registry) GetAll() map[string]*supervisor.BotSupervisor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*supervisor.BotSupervisor, len(r.sups))
	for id, sup := range r.sups {
		out[id] = sup
	}
	return out
}

// StopAll cancels every registered supervisor concurrently, waiting up to
// timeout before giving up and clearing the map regardless (spec §5:
// "stop_all(timeout) applies a bounded wait and proceeds on expiry").
func (r *Registry) StopAll(timeout time.Duration) {
	r.mu.Lock()
	sups := r.sups
	r.sups = make(map[string]*supervisor.BotSupervisor)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for id, sup := range sups {
		wg.Add(1)
		go func(id string, sup *supervisor.BotSupervisor) {
			defer wg.Done()
			sup.Stop()
		}(id, sup)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		r.log.Warn("stop_all timed out waiting for supervisors", "timeout", timeout.String())
	}
	telemetry.GetGlobalMetrics().SetActiveSupervisors(0)
}
