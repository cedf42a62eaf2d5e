// Package wsfeed streams scheduler events to websocket clients. It is an
// optional outer surface; the scheduler core publishes to the event bus
// and never depends on this package.
package wsfeed

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danieleschmidt/nerf-edge-sched/internal/event"
	"github.com/danieleschmidt/nerf-edge-sched/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingEvery  = (pongWait * 9) / 10
	sendBuffer = 64
)

// Frame is the JSON envelope delivered to clients.
type Frame struct {
	Type    string      `json:"type"`
	Time    time.Time   `json:"time"`
	Payload event.Event `json:"payload,omitempty"`
}

// Feed upgrades HTTP requests to websocket connections and forwards bus
// events matching the client's topic pattern. Each connection holds its
// own bus subscription; closing the connection drops it.
type Feed struct {
	bus *event.Bus
	log *logging.Logger

	upgrader websocket.Upgrader

	// defaultPattern is used when the client supplies no topics query
	// parameter.
	defaultPattern string
}

// NewFeed creates a Feed bound to the bus. The default topic pattern is
// "*" (all events).
func NewFeed(bus *event.Bus, log *logging.Logger) *Feed {
	if bus == nil {
		bus = event.NewBus()
	}
	if log == nil {
		log = logging.NopLogger()
	}
	return &Feed{
		bus: bus,
		log: log.WithComponent("wsfeed"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		defaultPattern: "*",
	}
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects. The topics query parameter selects a glob pattern over
// event types ("task.*", "*.failed"); absent, every event is forwarded.
func (f *Feed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("topics")
	if pattern == "" {
		pattern = f.defaultPattern
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	frames := make(chan Frame, sendBuffer)
	subID, err := f.bus.SubscribePattern(pattern, func(e event.Event) {
		pushFrame(frames, Frame{Type: e.EventType(), Time: e.Timestamp(), Payload: e})
	})
	if err != nil {
		f.writeControlFrame(conn, Frame{Type: "error", Time: time.Now()})
		return
	}
	defer f.bus.Unsubscribe(subID)

	f.log.Debug("client subscribed", "pattern", pattern, "remote", conn.RemoteAddr().String())

	done := make(chan struct{})
	go f.writePump(conn, frames, done)

	// The read loop only detects disconnect; clients send nothing but
	// control frames.
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	close(frames)
	<-done
	f.log.Debug("client disconnected", "remote", conn.RemoteAddr().String())
}

// writePump serializes all writes on one goroutine, interleaving event
// frames with keepalive pings.
func (f *Feed) writePump(conn *websocket.Conn, frames <-chan Frame, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case fr, ok := <-frames:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteJSON(fr); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (f *Feed) writeControlFrame(conn *websocket.Conn, fr Frame) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteJSON(fr)
}

// pushFrame enqueues without blocking the bus; when the client falls
// behind, the oldest undelivered frame is dropped.
func pushFrame(frames chan Frame, fr Frame) {
	defer func() {
		// The channel closes when the reader exits; a racing publish is
		// dropped rather than propagated.
		_ = recover()
	}()

	select {
	case frames <- fr:
		return
	default:
	}
	select {
	case <-frames:
	default:
	}
	select {
	case frames <- fr:
	default:
	}
}
