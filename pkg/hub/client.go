package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 16
)

// Client is one websocket connection attached to a hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan Message

	stop    chan struct{} // closed when the reader exits
	written chan struct{} // closed when the writer exits
}

// Serve attaches conn to the hub and blocks until it disconnects. Any
// initial messages are written before broadcasts.
//
// Serve returns only after both pumps have stopped touching conn, since the
// websocket handler recycles the connection once its callback returns.
func Serve(h *Hub, conn *websocket.Conn, initial ...Message) {
	newClient(h, conn, initial...).serve()
}

func newClient(h *Hub, conn *websocket.Conn, initial ...Message) *Client {
	c := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan Message, sendBuffer+len(initial)),
		stop:    make(chan struct{}),
		written: make(chan struct{}),
	}
	for _, m := range initial {
		c.send <- m
	}
	return c
}

func (c *Client) serve() {
	select {
	case c.hub.register <- c:
	case <-c.hub.done:
		close(c.written)
		c.conn.Close()
		return
	}

	go c.writePump()
	c.readPump()
	<-c.written
}

// readPump discards client input; it exists to notice disconnects and
// process pongs.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		close(c.stop)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on the connection. It stops when the hub
// closes send, a write fails, or the reader has gone.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		close(c.written)
	}()

	for {
		select {
		case <-c.stop:
			return

		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			typ := websocket.TextMessage
			if msg.Type == BinaryMessage {
				typ = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(typ, msg.Data); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
