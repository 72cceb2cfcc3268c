package driving

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/twinsync/twinsync/internal/sim"
)

// envelope is both request and response framing. Requests have a method;
// responses echo the id with a result or error; notifications have a
// method but no id.
type envelope struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("driving engine: %s (%s)", e.Message, e.Code)
}

// Error codes the engine reports.
const (
	codeSpawnFailed     = "spawn_failed"
	codeUnknownActor    = "unknown_actor"
	codeUnknownLandmark = "unknown_landmark"
)

func isCode(err error, code string) bool {
	var re *rpcError
	return errors.As(err, &re) && re.Code == code
}

// rpcConn multiplexes calls and notifications over one websocket.
type rpcConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex // websocket allows one concurrent writer

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan envelope
	fatal   error
	done    chan struct{}

	// onNotify handles id-less messages; runs on the read pump goroutine.
	onNotify func(method string, params json.RawMessage)
}

func newRPCConn(conn *websocket.Conn, onNotify func(string, json.RawMessage)) *rpcConn {
	c := &rpcConn{
		conn:     conn,
		pending:  make(map[int64]chan envelope),
		done:     make(chan struct{}),
		onNotify: onNotify,
	}
	go c.readPump()
	return c
}

// readPump delivers responses to waiting callers and notifications to the
// handler until the socket dies, then fails every outstanding call.
func (c *rpcConn) readPump() {
	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			c.fail(sim.NewEngineUnavailable(WorldName, fmt.Errorf("read: %w", err)))
			return
		}

		if env.ID == 0 {
			if c.onNotify != nil && env.Method != "" {
				c.onNotify(env.Method, env.Params)
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		delete(c.pending, env.ID)
		c.mu.Unlock()
		if ok {
			ch <- env
		}
	}
}

func (c *rpcConn) fail(err error) {
	c.mu.Lock()
	if c.fatal == nil {
		c.fatal = err
		close(c.done)
	}
	for id, ch := range c.pending {
		delete(c.pending, id)
		close(ch)
	}
	c.mu.Unlock()
}

// call sends one request and waits for its response. Engine-reported
// errors come back as *rpcError; transport failures as engine-unavailable.
func (c *rpcConn) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if c.fatal != nil {
		err := c.fatal
		c.mu.Unlock()
		return nil, err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan envelope, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	env := envelope{ID: id, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal %s params: %w", method, err)
		}
		env.Params = data
	}

	c.writeMu.Lock()
	err := c.conn.WriteJSON(env)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, sim.NewEngineUnavailable(WorldName, fmt.Errorf("send %s: %w", method, err))
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			c.mu.Lock()
			err := c.fatal
			c.mu.Unlock()
			return nil, err
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.done:
		c.mu.Lock()
		err := c.fatal
		c.mu.Unlock()
		return nil, err
	}
}

func (c *rpcConn) close() error {
	c.fail(sim.NewEngineUnavailable(WorldName, errors.New("session closed")))
	return c.conn.Close()
}
