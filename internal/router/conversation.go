package router

import (
	"sync"
	"time"

	logx "borsabot/pkg/logx"
)

type convState int

const (
	convIdle convState = iota
	convAwaitingMessage
)

// DefaultAwaitTimeout bounds how long a started announcement waits for its
// message before the draft is abandoned.
const DefaultAwaitTimeout = 10 * time.Minute

// Conversation is the single-slot announcement state machine. At most one
// announcement can be pending at a time; starting a new one while pending
// simply restarts the countdown.
//
// Every transition happens under the mutex. The expiry timer carries the
// generation it was armed for, so a timer that fires after Finish or a
// restart loses the race and does nothing.
type Conversation struct {
	mu      sync.Mutex
	state   convState
	gen     uint64
	timer   *time.Timer
	timeout time.Duration

	onExpire func()
	log      logx.Logger
}

func NewConversation(timeout time.Duration, onExpire func(), log logx.Logger) *Conversation {
	if timeout <= 0 {
		timeout = DefaultAwaitTimeout
	}
	return &Conversation{timeout: timeout, onExpire: onExpire, log: log}
}

// Begin moves to the awaiting state and arms (or re-arms) the expiry timer.
// It reports whether a draft was already pending.
func (c *Conversation) Begin() (restarted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	restarted = c.state == convAwaitingMessage
	c.state = convAwaitingMessage
	c.gen++
	gen := c.gen

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.timeout, func() { c.expire(gen) })
	return restarted
}

// Take atomically consumes the pending draft slot. It returns true exactly
// once per Begin; the caller then owns delivery of the message.
func (c *Conversation) Take() bool {
	return c.reset("consumed")
}

// Finish cancels the pending draft, if any.
func (c *Conversation) Finish() bool {
	return c.reset("cancelled")
}

// Interrupt discards the pending draft because an unrelated command arrived.
func (c *Conversation) Interrupt() bool {
	return c.reset("interrupted")
}

func (c *Conversation) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == convAwaitingMessage
}

func (c *Conversation) reset(reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != convAwaitingMessage {
		return false
	}
	c.state = convIdle
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.log.Debug("announcement draft closed", logx.String("reason", reason))
	return true
}

func (c *Conversation) expire(gen uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != convAwaitingMessage {
		c.mu.Unlock()
		return
	}
	c.state = convIdle
	c.gen++
	c.timer = nil
	c.mu.Unlock()

	c.log.Info("announcement draft expired")
	if c.onExpire != nil {
		c.onExpire()
	}
}
