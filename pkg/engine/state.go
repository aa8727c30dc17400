package engine

import (
	"sort"
	"sync"
	"time"
)

// ComponentState is the health of one runtime component.
type ComponentState int

const (
	ComponentPending ComponentState = iota
	ComponentReady
	ComponentDegraded
	ComponentFailed
)

// String returns the string representation of ComponentState.
func (s ComponentState) String() string {
	switch s {
	case ComponentPending:
		return "pending"
	case ComponentReady:
		return "ready"
	case ComponentDegraded:
		return "degraded"
	case ComponentFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText lets ComponentState render by name in JSON.
func (s ComponentState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ComponentStatus is the last reported state of a component.
type ComponentStatus struct {
	Name      string         `json:"name"`
	State     ComponentState `json:"state"`
	Detail    string         `json:"detail,omitempty"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// ComponentTracker records the state of every runtime component.
type ComponentTracker struct {
	mu         sync.RWMutex
	components map[string]*ComponentStatus
}

func newComponentTracker() *ComponentTracker {
	return &ComponentTracker{
		components: make(map[string]*ComponentStatus),
	}
}

// Init registers names as pending.
func (t *ComponentTracker) Init(names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for _, name := range names {
		t.components[name] = &ComponentStatus{
			Name:      name,
			State:     ComponentPending,
			UpdatedAt: now,
		}
	}
}

// Set updates the state of a component, registering it if needed.
func (t *ComponentTracker) Set(name string, state ComponentState, detail string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.components[name]
	if !ok {
		c = &ComponentStatus{Name: name}
		t.components[name] = c
	}
	c.State = state
	c.Detail = detail
	c.UpdatedAt = time.Now()
}

// Get returns a copy of the status of name.
func (t *ComponentTracker) Get(name string) (ComponentStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.components[name]
	if !ok {
		return ComponentStatus{}, false
	}
	return *c, true
}

// All returns a snapshot of every component sorted by name.
func (t *ComponentTracker) All() []ComponentStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ComponentStatus, 0, len(t.components))
	for _, c := range t.components {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// AnyFailed reports whether some component is failed or still pending.
func (t *ComponentTracker) AnyFailed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, c := range t.components {
		if c.State == ComponentFailed || c.State == ComponentPending {
			return true
		}
	}
	return false
}
