package tracking

import (
	"sync"

	"github.com/google/uuid"
)

// Client is a Conn backed by a bounded queue drained by the transport's
// writer goroutine.
type Client struct {
	id   string
	send chan Message

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client with a fresh id and a queue of size buffer.
func NewClient(buffer int) *Client {
	if buffer <= 0 {
		buffer = 1
	}
	return &Client{id: uuid.NewString(), send: make(chan Message, buffer)}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Send queues m without blocking. It returns false when the queue is full or
// the client is closed.
func (c *Client) Send(m Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- m:
		return true
	default:
		return false
	}
}

// Messages is the outbound queue.
func (c *Client) Messages() <-chan Message { return c.send }

// Close closes the queue. It is safe to call more than once.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
