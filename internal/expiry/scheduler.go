// Package expiry runs the background cutover that automatically expires a
// doctor's unscheduled waiting tokens, in addition to the on-demand
// expireWaiting operation the gateway exposes directly (spec §4.10, §2).
//
// Grounded on internal/alerts/engine.go's Start/processPrices/Stop shape —
// one goroutine looping on a channel select until stopped — generalized
// from a price-update channel to a daily-cutover ticker, and from an
// in-memory alert cache to a per-tick sweep over storage.ListActiveDoctors
// since there is no in-process state to warm on startup here.
package expiry

import (
	"context"
	"log"
	"time"

	"github.com/aniket1251/opd-token-allocation-engine/internal/civildate"
	"github.com/aniket1251/opd-token-allocation-engine/internal/clock"
	"github.com/aniket1251/opd-token-allocation-engine/internal/engine"
	"github.com/aniket1251/opd-token-allocation-engine/internal/storage"
)

// Scheduler invokes expireWaiting for every active doctor's current date
// once per local day, at Cutover. It does not attempt to catch up missed
// cutovers across a restart (spec Non-goals — "continuous-time scheduling"
// is explicitly out of scope); a skipped tick is simply the next doctor
// visit's on-demand expireWaiting catching the backlog instead.
type Scheduler struct {
	Engine   *engine.Engine
	Store    storage.Store
	Clock    clock.Clock
	Location *time.Location
	Cutover  civildate.ClockTime

	pollInterval time.Duration
	stopCh       chan struct{}
}

// New builds a Scheduler. pollInterval governs how often the scheduler
// checks whether Cutover has been crossed since its last fire; it is not
// the cutover itself.
func New(eng *engine.Engine, store storage.Store, clk clock.Clock, loc *time.Location, cutover civildate.ClockTime, pollInterval time.Duration) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Scheduler{
		Engine:       eng,
		Store:        store,
		Clock:        clk,
		Location:     loc,
		Cutover:      cutover,
		pollInterval: pollInterval,
		stopCh:       make(chan struct{}),
	}
}

// Run blocks, firing the daily sweep once per local day at s.Cutover,
// until ctx is cancelled or Stop is called. Intended to run in its own
// goroutine, mirroring the teacher's Start-launches-a-goroutine shape at
// the cmd/ call site rather than backgrounding itself here.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var lastFired civildate.Date

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			now := s.Clock.Now().In(s.Location)
			today := civildate.FromTime(now)

			if today.Equal(lastFired) {
				continue
			}
			nowClock, err := civildate.ParseClockTime(now.Format("15:04"))
			if err != nil {
				log.Printf("expiry: parse current time: %v", err)
				continue
			}
			if nowClock.Before(s.Cutover) {
				continue
			}

			s.sweep(ctx, today)
			lastFired = today
		}
	}
}

// Stop ends a running Run loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) sweep(ctx context.Context, date civildate.Date) {
	doctors, err := s.Store.ListActiveDoctors(ctx)
	if err != nil {
		log.Printf("expiry: list active doctors: %v", err)
		return
	}

	for _, d := range doctors {
		count, err := s.Engine.ExpireWaiting(ctx, d.ID, date)
		if err != nil {
			log.Printf("expiry: sweep doctor=%s date=%s: %v", d.ID, date, err)
			continue
		}
		if count > 0 {
			log.Printf("expiry: doctor=%s date=%s expired=%d", d.ID, date, count)
		}
	}
}
