package peernetic

import (
	"math/rand"
	"time"
)

// FakeLineConfig tunes the fault injection a FakeLine applies to messages
// passing through it.
type FakeLineConfig struct {
	// LossProbability is the chance, per message, that it is dropped
	// entirely. 0 disables loss.
	LossProbability float64
	// DuplicateProbability is the chance, per message, that it is
	// delivered twice. 0 disables duplication.
	DuplicateProbability float64
	// MinJitter and MaxJitter bound an additional random delay applied to
	// every delivered (non-dropped) message, uniformly distributed in
	// [MinJitter, MaxJitter). Both zero disables jitter.
	MinJitter time.Duration
	MaxJitter time.Duration
}

// FakeLine is a Shuttle decorator that simulates an unreliable network
// link: message loss, duplication, and jitter, per spec §4.9's fake
// transport. It is deterministic given a fixed seed, so a simulation run
// with a FakeLine in it is exactly as reproducible as one without.
//
// There is no teacher or pack analogue for this exact shape — theatre's
// chaos_test.go/chaos_helpers_test.go injected faults directly into its
// (now-deleted) cluster test harness rather than as a reusable Shuttle
// decorator — so FakeLine is built from spec §4.9's description directly,
// following the loss/dup/jitter vocabulary the spec itself uses.
type FakeLine struct {
	next      Shuttle
	scheduler DelayScheduler
	rng       *rand.Rand
	cfg       FakeLineConfig
}

// NewFakeLine wraps next, delivering jittered messages through scheduler.
// seed makes every run reproducible; pass a fixed seed in tests and in
// simulator configurations that must replay identically.
func NewFakeLine(next Shuttle, scheduler DelayScheduler, seed int64, cfg FakeLineConfig) *FakeLine {
	return &FakeLine{
		next:      next,
		scheduler: scheduler,
		rng:       rand.New(rand.NewSource(seed)),
		cfg:       cfg,
	}
}

// Send implements Shuttle.
func (f *FakeLine) Send(messages []Message) {
	for _, m := range messages {
		if f.cfg.LossProbability > 0 && f.rng.Float64() < f.cfg.LossProbability {
			continue
		}
		copies := 1
		if f.cfg.DuplicateProbability > 0 && f.rng.Float64() < f.cfg.DuplicateProbability {
			copies = 2
		}
		for i := 0; i < copies; i++ {
			msg := m
			jitter := f.jitter()
			if jitter <= 0 {
				f.next.Send([]Message{msg})
				continue
			}
			f.scheduler.After(jitter, func() {
				f.next.Send([]Message{msg})
			})
		}
	}
}

func (f *FakeLine) jitter() time.Duration {
	if f.cfg.MaxJitter <= f.cfg.MinJitter {
		return f.cfg.MinJitter
	}
	span := int64(f.cfg.MaxJitter - f.cfg.MinJitter)
	return f.cfg.MinJitter + time.Duration(f.rng.Int63n(span))
}
