package sched

import (
	"github.com/hyunhapark/kernelcore/internal/fixedpoint"
	"github.com/hyunhapark/kernelcore/internal/interrupt"
)

// TicksPerSecond is the logical tick rate internal/timer drives Tick at;
// load_avg/recent_cpu recompute once per this many ticks, matching
// pintos's once-per-second cadence (spec.md §4.4).
const TicksPerSecond = 100

var (
	fiftyNineSixtieths = fixedpoint.Div(fixedpoint.FromInt(59), fixedpoint.FromInt(60))
	oneSixtieth        = fixedpoint.Div(fixedpoint.FromInt(1), fixedpoint.FromInt(60))
)

// recalcLoadAvgAndRecentCPULocked implements:
//
//	load_avg = (59/60)*load_avg + (1/60)*ready_threads
//	recent_cpu = (2*load_avg)/(2*load_avg+1) * recent_cpu + nice
//
// run once per TicksPerSecond ticks, for every thread (spec.md §4.4).
// mu must be held.
func (s *Scheduler) recalcLoadAvgAndRecentCPULocked() {
	ready := 0
	for p := range s.ready {
		ready += s.ready[p].Len()
	}
	if s.current != s.idle {
		ready++
	}
	s.LoadAvg = fixedpoint.Add(
		fixedpoint.Mult(fiftyNineSixtieths, s.LoadAvg),
		fixedpoint.MultInt(oneSixtieth, ready),
	)

	twoLoad := fixedpoint.MultInt(s.LoadAvg, 2)
	coeff := fixedpoint.Div(twoLoad, fixedpoint.AddInt(twoLoad, 1))
	for e := s.all.Front(); e != s.all.End(); e = e.Next() {
		t := e.Owner().(*TCB)
		if t == s.idle {
			continue
		}
		t.RecentCPU = fixedpoint.AddInt(fixedpoint.Mult(coeff, t.RecentCPU), t.Nice)
	}
}

// recalcPrioritiesLocked implements:
//
//	priority = PRI_MAX - round(recent_cpu/4) - (nice*2)
//
// run every 4 ticks for every thread (spec.md §4.4), clamped to
// [PriMin, PriMax]. Ready threads are requeued if their bucket changed;
// if the running thread drops below a now-higher ready thread, a yield
// is requested rather than performed directly (spec.md §4.1: recalc
// runs in what stands in for interrupt context). mu must be held.
func (s *Scheduler) recalcPrioritiesLocked() {
	for e := s.all.Front(); e != s.all.End(); e = e.Next() {
		t := e.Owner().(*TCB)
		if t == s.idle {
			continue
		}
		p := PriMax - fixedpoint.RoundHalfDown(fixedpoint.DivInt(t.RecentCPU, 4)) - t.Nice*2
		if p < PriMin {
			p = PriMin
		}
		if p > PriMax {
			p = PriMax
		}
		t.BasePriority = p
		s.setPriorityLocked(t, p)
	}
	if s.current != s.idle && s.readyHasHigherLocked(s.current.Priority) {
		interrupt.SetYieldOnReturn()
	}
}

// SetNice sets the current thread's nice value and immediately
// recomputes its priority (thread_set_nice never waits for the next
// 4-tick boundary).
func (s *Scheduler) SetNice(nice int) {
	s.mu.Lock()
	t := s.current
	t.Nice = nice
	p := PriMax - fixedpoint.RoundHalfDown(fixedpoint.DivInt(t.RecentCPU, 4)) - nice*2
	if p < PriMin {
		p = PriMin
	}
	if p > PriMax {
		p = PriMax
	}
	t.BasePriority = p
	s.setPriorityLocked(t, p)
	yield := t != s.idle && s.readyHasHigherLocked(t.Priority)
	s.mu.Unlock()
	if yield {
		s.Yield()
	}
}

func (s *Scheduler) GetNice() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.Nice
}

// GetRecentCPU returns 100*recent_cpu rounded to the nearest integer,
// matching thread_get_recent_cpu's contract in the original.
func (s *Scheduler) GetRecentCPU() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fixedpoint.ToIntRound(fixedpoint.MultInt(s.current.RecentCPU, 100))
}

// GetLoadAvg returns 100*load_avg rounded to the nearest integer.
func (s *Scheduler) GetLoadAvg() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fixedpoint.ToIntRound(fixedpoint.MultInt(s.LoadAvg, 100))
}
