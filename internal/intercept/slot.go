package intercept

import (
	"net/http"
	"sync"
)

// slot records which interceptor owns http.DefaultTransport.
var slot struct {
	mu    sync.Mutex
	owner *Interceptor
}

// Install replaces http.DefaultTransport with i, remembering the previous
// transport. Installing the same interceptor twice is a no-op; installing
// while a different one is active fails with ErrAlreadyInstalled.
func (i *Interceptor) Install() error {
	slot.mu.Lock()
	defer slot.mu.Unlock()

	switch slot.owner {
	case i:
		return nil
	case nil:
	default:
		return ErrAlreadyInstalled
	}

	i.mu.Lock()
	i.prev = http.DefaultTransport
	i.mu.Unlock()

	http.DefaultTransport = i
	slot.owner = i
	i.logger.Debug("interceptor installed", zapMode(i.mode))
	return nil
}

// Uninstall restores the transport saved by Install. It does nothing if i is
// not the installed interceptor.
func (i *Interceptor) Uninstall() {
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.owner != i {
		return
	}
	i.mu.Lock()
	http.DefaultTransport = i.prev
	i.prev = nil
	i.mu.Unlock()

	slot.owner = nil
	i.logger.Debug("interceptor uninstalled")
}

// Installed reports whether i currently owns the global transport.
func (i *Interceptor) Installed() bool {
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.owner == i
}
