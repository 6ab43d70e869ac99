package panel

import (
	"sync"

	"github.com/bhandras/devpanel/internal/flow"
)

// ControllerHandle holds the DataController of the currently rendered flow.
//
// The renderer captures a controller once its flow is running; the panel
// revokes it before every restart. Get returns nil while nothing is
// captured, and the diff engine treats that as "cannot patch".
type ControllerHandle struct {
	mu   sync.RWMutex
	ctrl flow.DataController
}

// Capture stores the controller of the running flow.
func (h *ControllerHandle) Capture(ctrl flow.DataController) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctrl = ctrl
}

// Revoke drops the captured controller.
func (h *ControllerHandle) Revoke() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ctrl = nil
}

// Get returns the captured controller, or nil.
func (h *ControllerHandle) Get() flow.DataController {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ctrl
}
