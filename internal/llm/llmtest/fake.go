// Package llmtest provides a scriptable llm.Client for tests.
package llmtest

import (
	"context"
	"sync"

	"unhabit/internal/llm"
)

// Reply is one scripted response.
type Reply struct {
	Text string
	Err  error
}

// Client is a fake llm.Client. Replies are taken from Stages by request
// stage, in order, with the last reply repeating once the queue runs dry.
// Stages without a script get Default.
type Client struct {
	Stages  map[string][]Reply
	Default Reply
	// Handle, when set, overrides the scripts.
	Handle func(ctx context.Context, req llm.Request) (string, error)

	mu    sync.Mutex
	calls []llm.Request
	pos   map[string]int
}

// Failing returns a client whose every call fails with err.
func Failing(err error) *Client {
	return &Client{Default: Reply{Err: err}}
}

// Complete implements llm.Client.
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	c.mu.Lock()
	c.calls = append(c.calls, req)
	reply := c.Default
	if script := c.Stages[req.Stage]; len(script) > 0 {
		if c.pos == nil {
			c.pos = make(map[string]int)
		}
		n := c.pos[req.Stage]
		if n >= len(script) {
			n = len(script) - 1
		}
		reply = script[n]
		c.pos[req.Stage]++
	}
	handle := c.Handle
	c.mu.Unlock()

	if handle != nil {
		return handle(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return reply.Text, reply.Err
}

// Provider implements llm.Client.
func (c *Client) Provider() string { return "fake" }

// Calls returns a copy of every request received.
func (c *Client) Calls() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Request(nil), c.calls...)
}

// CallsFor returns the requests issued by stage.
func (c *Client) CallsFor(stage string) []llm.Request {
	var out []llm.Request
	for _, req := range c.Calls() {
		if req.Stage == stage {
			out = append(out, req)
		}
	}
	return out
}
