package conversations

import (
	"context"
	"time"

	"wrapdesk/internal/messages"
	"wrapdesk/internal/phone"
	"wrapdesk/pkg/logger"
)

type MessageSource interface {
	Recent(ctx context.Context, limit int) ([]messages.Message, error)
	ForKey(ctx context.Context, key phone.Key, limit int) ([]messages.Message, error)
}

type NameResolver interface {
	Names(ctx context.Context, keys []phone.Key) (map[phone.Key]string, error)
}

const DefaultWindow = 500

// Service loads the bounded message window and builds the inbox from it.
type Service struct {
	msgs   MessageSource
	names  NameResolver
	window int
	loc    *time.Location
}

func NewService(msgs MessageSource, names NameResolver, window int, loc *time.Location) *Service {
	if window <= 0 {
		window = DefaultWindow
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{msgs: msgs, names: names, window: window, loc: loc}
}

type ListOptions struct {
	Focus           string
	IncludeArchived bool
}

// List returns the inbox over the most recent window of messages. A focused
// phone is loaded on its own as well so a deep link to an old thread still
// resolves.
func (s *Service) List(ctx context.Context, opts ListOptions) ([]Conversation, error) {
	msgs, err := s.msgs.Recent(ctx, s.window)
	if err != nil {
		return nil, err
	}
	if key := phone.Normalize(opts.Focus); key.Matchable() {
		focused, err := s.msgs.ForKey(ctx, key, s.window)
		if err != nil {
			return nil, err
		}
		msgs = mergeByID(msgs, focused)
	}
	return Build(msgs, Options{
		Focus:           opts.Focus,
		Location:        s.loc,
		Names:           s.resolveNames(ctx, msgs, opts.Focus),
		IncludeArchived: opts.IncludeArchived,
	}), nil
}

// Get returns one conversation, archived or empty, without touching flags.
func (s *Service) Get(ctx context.Context, raw string) (Conversation, error) {
	var (
		msgs []messages.Message
		err  error
	)
	if key := phone.Normalize(raw); key.Matchable() {
		msgs, err = s.msgs.ForKey(ctx, key, s.window)
	} else {
		msgs, err = s.msgs.Recent(ctx, s.window)
		msgs = filterGroup(msgs, phone.GroupKey(raw))
	}
	if err != nil {
		return Conversation{}, err
	}
	convs := Build(msgs, Options{
		Focus:           raw,
		Location:        s.loc,
		Names:           s.resolveNames(ctx, msgs, raw),
		IncludeArchived: true,
	})
	want := phone.GroupKey(raw)
	for _, c := range convs {
		if c.Phone == want {
			return c, nil
		}
	}
	return shell(raw, want, nil), nil
}

// resolveNames is best effort; an unnamed inbox still renders.
func (s *Service) resolveNames(ctx context.Context, msgs []messages.Message, focus string) map[phone.Key]string {
	if s.names == nil {
		return nil
	}
	seen := map[phone.Key]struct{}{}
	var keys []phone.Key
	add := func(k phone.Key) {
		if !k.Matchable() {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	add(phone.Normalize(focus))
	for _, m := range msgs {
		add(m.Key())
	}
	if len(keys) == 0 {
		return nil
	}
	names, err := s.names.Names(ctx, keys)
	if err != nil {
		logger.From(ctx).Warn("conversation names unavailable", "err", err)
		return nil
	}
	return names
}

func mergeByID(a, b []messages.Message) []messages.Message {
	seen := make(map[string]struct{}, len(a))
	for _, m := range a {
		seen[m.ID] = struct{}{}
	}
	for _, m := range b {
		if _, ok := seen[m.ID]; !ok {
			a = append(a, m)
		}
	}
	return a
}

func filterGroup(msgs []messages.Message, gk string) []messages.Message {
	var out []messages.Message
	for _, m := range msgs {
		if phone.GroupKey(m.CustomerPhone) == gk {
			out = append(out, m)
		}
	}
	return out
}
