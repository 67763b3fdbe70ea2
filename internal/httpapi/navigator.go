package httpapi

import (
	"context"
	"sync"

	goAdmin "github.com/MrEthical07/goAdmin"
)

// Navigator is the goAdmin.Navigator of the HTTP shell. The browser cannot
// be pushed to a screen, so the last destination is kept and reported to the
// client on its next state poll or in the response that caused it.
type Navigator struct {
	mu   sync.Mutex
	last *goAdmin.Destination
}

func NewNavigator() *Navigator {
	return &Navigator{}
}

func (n *Navigator) Navigate(_ context.Context, dest goAdmin.Destination) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.last = &dest
}

// Take returns and clears the pending destination.
func (n *Navigator) Take() (goAdmin.Destination, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.last == nil {
		return goAdmin.Destination{}, false
	}
	dest := *n.last
	n.last = nil
	return dest, true
}
