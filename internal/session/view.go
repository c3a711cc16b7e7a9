// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

// Package session wraps the host's live city session behind a narrow,
// typed query/mutate surface. The view never stores the city reference
// across calls; it re-resolves through the provider on each access, so a
// session torn down by the host can never be observed stale. Only the
// aggregate stats snapshot is cached, with explicit invalidation on
// session-changed events.
//
// All methods run on the host's single dispatch thread; the view carries
// no locks by design.
package session

import "github.com/metroverse/scriptbridge/internal/hostapi"

// Snapshot is one cached reading of the city's aggregate statistics.
type Snapshot struct {
	ResidentialPop uint32
	CommercialPop  uint32
	IndustrialPop  uint32
	TotalJobs      uint32
	PowerProduced  uint32
	PowerConsumed  uint32
	WaterProduced  uint32
	WaterConsumed  uint32
}

// View exposes the current city session to plugins.
type View struct {
	provider   hostapi.CityProvider
	stats      Snapshot
	cacheValid bool
}

// NewView creates a view over the host's city provider. The snapshot
// cache starts invalid.
func NewView(provider hostapi.CityProvider) *View {
	return &View{provider: provider}
}

func (v *View) current() hostapi.City {
	if v.provider == nil {
		return nil
	}
	return v.provider.CurrentCity()
}

// IsValid reports whether a live city session is available right now.
func (v *View) IsValid() bool {
	return v.current() != nil
}

// InvalidateStats discards the cached snapshot. Called by the event
// router on every session-changed notification; the next Stats call
// performs a fresh read.
func (v *View) InvalidateStats() {
	v.cacheValid = false
}

// CityName returns the city's name, or "" when no session is active.
func (v *View) CityName() string {
	city := v.current()
	if city == nil {
		return ""
	}
	return city.Name()
}

// Population returns the residential population, or 0 when no session
// is active or the demographics simulator is not up.
func (v *View) Population() uint32 {
	city := v.current()
	if city == nil {
		return 0
	}
	demo := city.Demographics()
	if demo == nil {
		return 0
	}
	return demo.Residential()
}

// Funds returns the treasury balance, or 0 when unavailable.
func (v *View) Funds() int64 {
	city := v.current()
	if city == nil {
		return 0
	}
	budget := city.Budget()
	if budget == nil {
		return 0
	}
	return budget.TotalFunds()
}

// MayorMode reports whether the city is in mayor (simulation) mode.
func (v *View) MayorMode() bool {
	city := v.current()
	if city == nil {
		return false
	}
	return city.MayorMode()
}

// Date returns the city's birth date, or 0 when no session is active.
func (v *View) Date() uint32 {
	city := v.current()
	if city == nil {
		return 0
	}
	return city.BirthDate()
}

// Time returns the simulation clock time, or 0 when no session is active.
func (v *View) Time() uint32 {
	city := v.current()
	if city == nil {
		return 0
	}
	return city.ClockTime()
}

// SetFunds sets the treasury to an absolute amount. Returns false when
// no session or budget facility is available.
func (v *View) SetFunds(amount int64) bool {
	city := v.current()
	if city == nil {
		return false
	}
	budget := city.Budget()
	if budget == nil {
		return false
	}
	return budget.SetTotalFunds(amount)
}

// AddFunds deposits a positive delta or withdraws a negative one. The
// host's budget facility enforces its own clamping; none is duplicated
// here.
func (v *View) AddFunds(delta int64) bool {
	city := v.current()
	if city == nil {
		return false
	}
	budget := city.Budget()
	if budget == nil {
		return false
	}
	if delta >= 0 {
		return budget.Deposit(delta)
	}
	return budget.Withdraw(-delta)
}

// SetMayorMode toggles the simulation mode only when the current mode
// differs from the requested one; the host exposes a toggle, not a
// setter.
func (v *View) SetMayorMode(enabled bool) bool {
	city := v.current()
	if city == nil {
		return false
	}
	if city.MayorMode() != enabled {
		city.ToggleMayorMode()
	}
	return true
}

// Stats returns the aggregate statistics snapshot, serving the cache
// when valid and refreshing from the live session otherwise. Facilities
// the host has not brought up read as zero. With no active session the
// snapshot is all-zero and still cached until the next invalidation.
func (v *View) Stats() Snapshot {
	if v.cacheValid {
		return v.stats
	}
	v.stats = v.readStats()
	v.cacheValid = true
	return v.stats
}

func (v *View) readStats() Snapshot {
	city := v.current()
	if city == nil {
		return Snapshot{}
	}

	var s Snapshot
	if demo := city.Demographics(); demo != nil {
		s.ResidentialPop = demo.Residential()
		s.CommercialPop = demo.Commercial()
		s.IndustrialPop = demo.Industrial()
		s.TotalJobs = demo.Jobs()
	}
	if power := city.Power(); power != nil {
		s.PowerProduced = power.Produced()
		s.PowerConsumed = power.Consumed()
	}
	if water := city.Water(); water != nil {
		s.WaterProduced = water.Produced()
		s.WaterConsumed = water.Consumed()
	}
	return s
}
