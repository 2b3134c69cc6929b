package dashboard

import "sync"

// hub fans view updates out to websocket clients. Each client holds at most
// one pending message; a newer view replaces an unsent one.
type hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	last    []byte
}

type client struct {
	send chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{})}
}

func (h *hub) add() *client {
	c := &client{send: make(chan []byte, 1)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	return c
}

func (h *hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// publish sends msg to every client when it differs from the last one.
// It reports whether anything changed.
func (h *hub) publish(msg []byte) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if string(msg) == string(h.last) {
		return false
	}
	h.last = msg
	for c := range h.clients {
		select {
		case <-c.send:
		default:
		}
		c.send <- msg
	}
	return true
}
