package router

import (
	"sync/atomic"
	"testing"
	"time"

	logx "borsabot/pkg/logx"
)

func TestConversationExpires(t *testing.T) {
	var expired atomic.Int32
	c := NewConversation(30*time.Millisecond, nil, logx.Nop())
	c.onExpire = func() { expired.Add(1) }

	c.Begin()

	deadline := time.Now().Add(2 * time.Second)
	for c.Active() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if c.Active() {
		t.Fatal("conversation must expire on its own")
	}
	time.Sleep(50 * time.Millisecond)
	if got := expired.Load(); got != 1 {
		t.Fatalf("onExpire fired %d times, want 1", got)
	}
	if c.Take() {
		t.Fatal("expired draft must not be consumable")
	}
}

func TestConversationBeginRestartsTimer(t *testing.T) {
	var expired atomic.Int32
	c := NewConversation(80*time.Millisecond, nil, logx.Nop())
	c.onExpire = func() { expired.Add(1) }

	if c.Begin() {
		t.Fatal("first Begin must not report a pending draft")
	}
	time.Sleep(50 * time.Millisecond)
	if !c.Begin() {
		t.Fatal("second Begin must report the pending draft")
	}
	time.Sleep(50 * time.Millisecond)

	// 100ms after the first Begin the draft is still alive because the
	// second Begin re-armed the timer.
	if !c.Active() {
		t.Fatal("re-armed draft expired too early")
	}
	if expired.Load() != 0 {
		t.Fatal("stale timer generation must not fire")
	}
}

func TestConversationFinishBeatsTimer(t *testing.T) {
	var expired atomic.Int32
	c := NewConversation(30*time.Millisecond, nil, logx.Nop())
	c.onExpire = func() { expired.Add(1) }

	c.Begin()
	if !c.Finish() {
		t.Fatal("Finish must report the pending draft")
	}
	time.Sleep(80 * time.Millisecond)
	if expired.Load() != 0 {
		t.Fatal("finished draft must not expire")
	}
}

func TestConversationTakeIsExclusive(t *testing.T) {
	c := NewConversation(time.Minute, nil, logx.Nop())
	c.Begin()

	if !c.Take() {
		t.Fatal("first Take must win")
	}
	if c.Take() {
		t.Fatal("second Take must lose")
	}
	if c.Finish() {
		t.Fatal("nothing left to finish after Take")
	}
}
