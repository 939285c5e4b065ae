package router

import (
	"context"
	"strings"
	"sync"
	"time"

	kit "borsabot/internal/transport"
	logx "borsabot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

type Command struct {
	Name        string
	Description string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string

	Adapter kit.Adapter
	Logger  logx.Logger
}

// TextFunc handles a plain (non-command) message. It reports whether the
// message was consumed; unconsumed plain text is dropped.
type TextFunc func(ctx context.Context, msg *kit.Message) bool

// Router parses incoming updates into commands and runs the handlers
// serially, in arrival order. Serial dispatch keeps the announcement
// conversation free of same-user races.
type Router struct {
	mu       sync.RWMutex
	commands map[string]Command
	onText   TextFunc
	onAny    func(fromID int64, command string)

	adapter kit.Adapter
	admin   int64
	log     logx.Logger
}

func New(adapter kit.Adapter, adminID int64, log logx.Logger) *Router {
	return &Router{
		commands: map[string]Command{},
		adapter:  adapter,
		admin:    adminID,
		log:      log,
	}
}

func (r *Router) Register(cmds ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		if c.Name == "" || c.Handle == nil {
			continue
		}
		r.commands[c.Name] = c
	}
}

// SetTextHandler installs the fallback for plain messages.
func (r *Router) SetTextHandler(fn TextFunc) {
	r.mu.Lock()
	r.onText = fn
	r.mu.Unlock()
}

// SetCommandObserver installs a hook invoked for every parsed command before
// its handler runs. The announcement flow uses it to discard a pending draft
// when the admin switches to something else.
func (r *Router) SetCommandObserver(fn func(fromID int64, command string)) {
	r.mu.Lock()
	r.onAny = fn
	r.mu.Unlock()
}

func (r *Router) AdminID() int64 { return r.admin }

// DispatchLoop consumes updates until the context ends or the channel closes.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	r.log.Info("dispatcher started")
	defer r.log.Info("dispatcher stopped")
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			r.route(ctx, up)
		}
	}
}

func (r *Router) route(ctx context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if !strings.HasPrefix(text, "/") {
		r.mu.RLock()
		onText := r.onText
		r.mu.RUnlock()
		if onText == nil || !onText(ctx, msg) {
			r.log.Debug("plain message dropped", logx.Int64("from_id", msg.FromID))
		}
		return
	}

	name, args := parseCommand(text)
	if name == "" {
		return
	}

	r.mu.RLock()
	cmd, known := r.commands[name]
	onAny := r.onAny
	r.mu.RUnlock()

	if onAny != nil {
		onAny(msg.FromID, name)
	}
	if !known {
		r.log.Debug("unknown command", logx.String("cmd", name), logx.Int64("from_id", msg.FromID))
		return
	}

	chat := kit.ChatTarget{ChatID: msg.ChatID}
	if cmd.Access == AccessAdminOnly && msg.FromID != r.admin {
		_ = r.adapter.SendText(ctx, chat, txtNotAuthorized, nil)
		r.log.Warn("admin command denied", logx.String("cmd", name), logx.Int64("from_id", msg.FromID))
		return
	}

	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: name,
		Args:    args,
		Adapter: r.adapter,
		Logger: r.log.With(
			logx.String("cmd", name),
			logx.Int64("from_id", msg.FromID),
		),
	}

	final := Chain(
		cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(cmd.Timeout),
	)
	_ = final(ctx, req)
}

// parseCommand splits "/fiyatlar@borsabot arg1 arg2" into ("fiyatlar",
// ["arg1","arg2"]). The @botname suffix Telegram appends in groups is
// stripped.
func parseCommand(text string) (string, []string) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil
	}
	name := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), parts[1:]
}
