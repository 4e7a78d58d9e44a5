package common

import (
	"errors"
	"sort"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a named module is currently halted.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused when the named module is halted. A nil view
// or empty module name never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is the in-memory PauseView backing the daemon. Admin calls flip
// individual modules; every state-changing entry point consults it first.
type Pauses struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauses() *Pauses {
	return &Pauses{paused: make(map[string]bool)}
}

func (p *Pauses) SetPaused(module string, paused bool) {
	if p == nil || module == "" {
		return
	}
	p.mu.Lock()
	if paused {
		p.paused[module] = true
	} else {
		delete(p.paused, module)
	}
	p.mu.Unlock()
}

func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[module]
}

// Halted lists the currently paused modules in sorted order for the status
// endpoints.
func (p *Pauses) Halted() []string {
	if p == nil {
		return nil
	}
	p.mu.RLock()
	names := make([]string, 0, len(p.paused))
	for name := range p.paused {
		names = append(names, name)
	}
	p.mu.RUnlock()
	sort.Strings(names)
	return names
}
