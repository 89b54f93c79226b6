package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo applies transitions under one mutex, which gives the same
// compare-and-set semantics as the conditional UPDATEs.
type MemoryRepo struct {
	mu    sync.Mutex
	calls map[string]Call
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{calls: map[string]Call{}}
}

func (r *MemoryRepo) Create(ctx context.Context, c Call) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[c.SID]; ok {
		return false, nil
	}
	c.State = Ringing{}
	c.UpdatedAt = c.CreatedAt
	r.calls[c.SID] = c
	return true, nil
}

func (r *MemoryRepo) Transition(ctx context.Context, t Transition) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[t.SID]
	if !ok {
		return Result{Outcome: NotFound}, nil
	}
	next, applied := Apply(c, t)
	if !applied {
		return Result{Outcome: Skipped, Call: c}, nil
	}
	r.calls[t.SID] = next
	return Result{Outcome: Applied, Call: next}, nil
}

func (r *MemoryRepo) AttachTranscription(ctx context.Context, sid, text string, at time.Time) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[sid]
	if !ok {
		return Result{Outcome: NotFound}, nil
	}
	vm, isVoicemail := c.State.(Voicemail)
	if !isVoicemail || vm.Transcription != "" {
		return Result{Outcome: Skipped, Call: c}, nil
	}
	vm.Transcription = text
	c.State = vm
	c.UpdatedAt = at
	r.calls[sid] = c
	return Result{Outcome: Applied, Call: c}, nil
}

func (r *MemoryRepo) Get(ctx context.Context, sid string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[sid]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) List(ctx context.Context, limit int) ([]Call, error) {
	all := r.snapshot()
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryRepo) ListBetween(ctx context.Context, from, to time.Time) ([]Call, error) {
	var out []Call
	for _, c := range r.snapshot() {
		if !c.CreatedAt.Before(from) && c.CreatedAt.Before(to) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) ExpireStale(ctx context.Context, cutoff, now time.Time) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for sid, c := range r.calls {
		if c.Status() != StatusRinging || !c.CreatedAt.Before(cutoff) {
			continue
		}
		c.State = Missed{}
		c.UpdatedAt = now
		r.calls[sid] = c
		out = append(out, c)
	}
	return out, nil
}

func (r *MemoryRepo) snapshot() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c)
	}
	return out
}
