package natives

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"piscript/internal/value"
	"piscript/internal/vm"
)

type wsManager struct {
	mu    sync.Mutex
	conns map[string]*websocket.Conn
	next  int
}

func newWSManager() *wsManager {
	return &wsManager{conns: make(map[string]*websocket.Conn)}
}

func (m *wsManager) add(c *websocket.Conn) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := fmt.Sprintf("ws%d", m.next)
	m.conns[id] = c
	return id
}

func (m *wsManager) get(id string) (*websocket.Conn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok {
		return nil, fmt.Errorf("no open websocket connection %q", id)
	}
	return c, nil
}

func (m *wsManager) close(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conns[id]
	if !ok {
		return fmt.Errorf("no open websocket connection %q", id)
	}
	delete(m.conns, id)
	return c.Close()
}

// RegisterWebsocket installs ws_dial/ws_send/ws_recv/ws_close as globals on
// v, grounded in the teacher's network_websocket.go dial/send/receive shape
// but reduced to a handful of synchronous operations. ws_recv has no read
// deadline: it blocks the dispatcher until a message arrives or the
// connection fails.
func RegisterWebsocket(v *vm.VM) {
	m := newWSManager()

	v.RegisterNative("ws_dial", func(argv []value.Value) (value.Value, error) {
		if len(argv) != 1 {
			return value.Nil(), fmt.Errorf("ws_dial expects (url)")
		}
		conn, _, err := websocket.DefaultDialer.Dial(argv[0].AsString(), nil)
		if err != nil {
			return value.Nil(), err
		}
		id := m.add(conn)
		return value.Obj(v.Track(value.NewString(id))), nil
	})

	v.RegisterNative("ws_send", func(argv []value.Value) (value.Value, error) {
		if len(argv) != 2 {
			return value.Nil(), fmt.Errorf("ws_send expects (id, message)")
		}
		conn, err := m.get(argv[0].AsString())
		if err != nil {
			return value.Bool(false), err
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(argv[1].AsString())); err != nil {
			return value.Bool(false), err
		}
		return value.Bool(true), nil
	})

	v.RegisterNative("ws_recv", func(argv []value.Value) (value.Value, error) {
		if len(argv) != 1 {
			return value.Nil(), fmt.Errorf("ws_recv expects (id)")
		}
		conn, err := m.get(argv[0].AsString())
		if err != nil {
			return value.Nil(), err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return value.Nil(), err
		}
		return value.Obj(v.Track(value.NewString(string(msg)))), nil
	})

	v.RegisterNative("ws_close", func(argv []value.Value) (value.Value, error) {
		if len(argv) != 1 {
			return value.Nil(), fmt.Errorf("ws_close expects (id)")
		}
		if err := m.close(argv[0].AsString()); err != nil {
			return value.Bool(false), err
		}
		return value.Bool(true), nil
	})
}
