// Package conversations derives the inbox from the flat message log.
//
// Nothing here is stored. Build is a pure function over the loaded window and
// costs O(messages) per call; it is recomputed on every read.
package conversations

import (
	"sort"
	"strings"
	"time"

	"wrapdesk/internal/messages"
	"wrapdesk/internal/phone"
)

type ItemKind string

const (
	ItemDivider ItemKind = "divider"
	ItemMessage ItemKind = "message"
)

// Item is one row of a rendered thread: a day divider or a message.
type Item struct {
	Kind    ItemKind          `json:"kind"`
	Day     string            `json:"day,omitempty"`
	Label   string            `json:"label,omitempty"`
	Message *messages.Message `json:"message,omitempty"`
}

type Conversation struct {
	// Phone is the grouping key: the canonical key, or "raw:<input>" for a
	// number that does not normalize.
	Phone        string   `json:"phone"`
	DisplayPhone string   `json:"display_phone"`
	Name         string   `json:"name,omitempty"`
	RawPhones    []string `json:"raw_phones,omitempty"`

	LastMessage  *messages.Message `json:"last_message,omitempty"`
	LastActivity time.Time         `json:"last_activity"`
	Unread       int               `json:"unread"`

	// Archived is true when every message is archived.
	Archived bool `json:"archived"`
	// Unarchived marks an archived thread shown because it was asked for.
	// Stored flags are untouched.
	Unarchived bool `json:"unarchived,omitempty"`

	Messages []messages.Message `json:"messages"`
	Timeline []Item             `json:"timeline"`
}

// Key is the canonical phone key, Unmatchable for raw groups.
func (c Conversation) Key() phone.Key {
	if strings.HasPrefix(c.Phone, "raw:") {
		return phone.Unmatchable
	}
	return phone.Key(c.Phone)
}

type Options struct {
	// Focus is a phone requested explicitly, e.g. from a deep link. Its
	// conversation is always returned, as an empty shell if it has no messages.
	Focus string
	// Location decides calendar days for dividers. Defaults to UTC.
	Location *time.Location
	Names    map[phone.Key]string
	// IncludeArchived also returns fully archived threads.
	IncludeArchived bool
}

// Build groups msgs into conversations ordered by last activity, newest
// first. A focused shell with no messages comes first.
func Build(msgs []messages.Message, opts Options) []Conversation {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	// Exact raw spellings first, then merge spellings that share a key.
	byRaw := make(map[string][]messages.Message)
	var rawOrder []string
	for _, m := range msgs {
		if _, ok := byRaw[m.CustomerPhone]; !ok {
			rawOrder = append(rawOrder, m.CustomerPhone)
		}
		byRaw[m.CustomerPhone] = append(byRaw[m.CustomerPhone], m)
	}
	groups := make(map[string]*group)
	for _, raw := range rawOrder {
		gk := phone.GroupKey(raw)
		g, ok := groups[gk]
		if !ok {
			g = &group{key: gk}
			groups[gk] = g
		}
		g.raws = append(g.raws, raw)
		g.msgs = append(g.msgs, byRaw[raw]...)
	}

	focus := ""
	if strings.TrimSpace(opts.Focus) != "" {
		focus = phone.GroupKey(opts.Focus)
	}

	out := make([]Conversation, 0, len(groups))
	for gk, g := range groups {
		c := g.conversation(loc, opts.Names)
		if c.Archived {
			switch {
			case gk == focus:
				c.Unarchived = true
			case !opts.IncludeArchived:
				continue
			}
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastActivity.Equal(out[j].LastActivity) {
			return out[i].LastActivity.After(out[j].LastActivity)
		}
		return out[i].Phone < out[j].Phone
	})

	if focus != "" {
		if _, ok := groups[focus]; !ok {
			out = append([]Conversation{shell(opts.Focus, focus, opts.Names)}, out...)
		}
	}
	return out
}

type group struct {
	key  string
	raws []string
	msgs []messages.Message
}

func (g *group) conversation(loc *time.Location, names map[phone.Key]string) Conversation {
	c := shell(g.raws[0], g.key, names)
	c.RawPhones = g.raws

	asc := make([]messages.Message, len(g.msgs))
	copy(asc, g.msgs)
	sort.SliceStable(asc, func(i, j int) bool {
		if !asc[i].CreatedAt.Equal(asc[j].CreatedAt) {
			return asc[i].CreatedAt.Before(asc[j].CreatedAt)
		}
		return asc[i].ID < asc[j].ID
	})

	latest := asc[len(asc)-1]
	c.LastMessage = &latest
	c.LastActivity = latest.CreatedAt

	c.Archived = true
	for _, m := range asc {
		if m.CountsUnread() {
			c.Unread++
		}
		if !m.Archived {
			c.Archived = false
		}
	}
	c.Messages = asc
	c.Timeline = timeline(asc, loc)
	return c
}

func shell(raw, gk string, names map[phone.Key]string) Conversation {
	c := Conversation{Phone: gk, Messages: []messages.Message{}, Timeline: []Item{}}
	key := phone.Normalize(raw)
	if key.Matchable() {
		c.DisplayPhone = key.Display()
		c.Name = names[key]
	} else {
		c.DisplayPhone = phone.RawSpelling(raw)
	}
	return c
}

// timeline interleaves a divider before the first message of each local
// calendar day.
func timeline(asc []messages.Message, loc *time.Location) []Item {
	items := make([]Item, 0, len(asc)+1)
	lastDay := ""
	for i := range asc {
		local := asc[i].CreatedAt.In(loc)
		day := local.Format("2006-01-02")
		if day != lastDay {
			items = append(items, Item{Kind: ItemDivider, Day: day, Label: local.Format("Monday, Jan 2, 2006")})
			lastDay = day
		}
		items = append(items, Item{Kind: ItemMessage, Message: &asc[i]})
	}
	return items
}
