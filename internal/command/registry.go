package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"nrrp.app/referrals/common/logger"
	"nrrp.app/referrals/internal/metrics"
	"nrrp.app/referrals/internal/store"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrForbidden      = errors.New("command not allowed")
)

type Capability string

const (
	CapabilityPublic Capability = "public"
	CapabilityAdmin  Capability = "admin"
)

func (c Capability) IsValid() bool {
	return c == CapabilityPublic || c == CapabilityAdmin
}

// Invocation is one chat command as received from the platform.
type Invocation struct {
	Name       string
	Args       []string
	AuthorID   string
	AuthorName string
	ChannelID  string
	IsAdmin    bool
}

type Handler func(ctx context.Context, inv Invocation) (*Reply, error)

type Definition struct {
	Name        string
	Capability  Capability
	Description string
	Handler     Handler
}

const helpCommand = "help"

// Registry is the fixed table of commands a deployment answers to.
type Registry struct {
	commands        map[string]Definition
	order           []string
	allowedChannels map[string]struct{}
	prefix          string
	logger          *slog.Logger
}

// NewRegistry validates the table once at startup: names must be unique,
// lowercase and non-empty, and every entry needs a handler and a known
// capability. A help command is added automatically.
func NewRegistry(defs []Definition, prefix string, allowedChannels []string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		commands:        make(map[string]Definition, len(defs)+1),
		allowedChannels: make(map[string]struct{}, len(allowedChannels)),
		prefix:          prefix,
		logger:          logger,
	}
	for _, id := range allowedChannels {
		r.allowedChannels[id] = struct{}{}
	}

	defs = append(slices.Clone(defs), Definition{
		Name:        helpCommand,
		Capability:  CapabilityPublic,
		Description: "List the available commands",
		Handler: func(_ context.Context, inv Invocation) (*Reply, error) {
			return r.help(false, inv.IsAdmin), nil
		},
	})

	for _, def := range defs {
		switch {
		case def.Name == "" || def.Name != strings.ToLower(def.Name) || strings.ContainsAny(def.Name, " \t\n"):
			return nil, fmt.Errorf("command name %q must be a single lowercase word", def.Name)
		case def.Handler == nil:
			return nil, fmt.Errorf("command %q has no handler", def.Name)
		case !def.Capability.IsValid():
			return nil, fmt.Errorf("command %q has unknown capability %q", def.Name, def.Capability)
		}
		if _, dup := r.commands[def.Name]; dup {
			return nil, fmt.Errorf("command %q registered twice", def.Name)
		}
		r.commands[def.Name] = def
		r.order = append(r.order, def.Name)
	}
	return r, nil
}

// Parse splits a chat message into a command name and arguments. ok is false
// when the message does not start with the prefix.
func Parse(content, prefix string) (name string, args []string, ok bool) {
	rest, found := strings.CutPrefix(strings.TrimSpace(content), prefix)
	if !found || prefix == "" {
		return "", nil, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}

func (r *Registry) Prefix() string {
	return r.prefix
}

// Lookup returns the definition for name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.commands[name]
	return def, ok
}

// Definitions lists the table in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.commands[name])
	}
	return defs
}

// Dispatch runs the command. The returned reply is always safe to send to
// the channel; the error says what went wrong for logs and metrics.
func (r *Registry) Dispatch(ctx context.Context, inv Invocation) (*Reply, error) {
	name := inv.Name
	ctx = logger.WithLogFields(ctx, logger.LogFields{Command: &name, Component: "referrals.command"})

	if !r.channelAllowed(inv.ChannelID) {
		r.record(name, "forbidden")
		r.logger.InfoContext(ctx, "command used outside allowed channels", "channel_id", inv.ChannelID)
		return permissionReply(r.channelList()), fmt.Errorf("%w: channel %s", ErrForbidden, inv.ChannelID)
	}

	def, ok := r.commands[name]
	if !ok {
		r.record(name, "unknown")
		return r.help(true, inv.IsAdmin), fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	if def.Capability == CapabilityAdmin && !inv.IsAdmin {
		r.record(name, "forbidden")
		r.logger.InfoContext(ctx, "admin command refused", "author_id", inv.AuthorID)
		return permissionReply(r.channelList()), fmt.Errorf("%w: %s requires admin", ErrForbidden, name)
	}

	reply, err := def.Handler(ctx, inv)
	if err != nil {
		r.record(name, "error")
		if errors.Is(err, store.ErrUnavailable) {
			r.logger.ErrorContext(ctx, "command failed, store unavailable", "error", err)
		} else {
			r.logger.ErrorContext(ctx, "command failed", "error", err)
		}
		return failureReply(), fmt.Errorf("command %s: %w", name, err)
	}

	r.record(name, "ok")
	r.logger.InfoContext(ctx, "command handled", "author_id", inv.AuthorID)
	return reply, nil
}

func (r *Registry) channelAllowed(channelID string) bool {
	if len(r.allowedChannels) == 0 {
		return true
	}
	_, ok := r.allowedChannels[channelID]
	return ok
}

func (r *Registry) channelList() []string {
	ids := make([]string, 0, len(r.allowedChannels))
	for id := range r.allowedChannels {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (r *Registry) record(name, outcome string) {
	if _, ok := r.commands[name]; !ok {
		name = "unknown"
	}
	metrics.CommandsHandled.WithLabelValues(name, outcome).Inc()
}
