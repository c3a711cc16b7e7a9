// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

// Package simhost is an in-memory stand-in for the host game. The run
// command uses it to drive the bridge end to end without a real game
// process, and tests use it as the session object behind the view.
package simhost

import (
	"github.com/samber/oops"

	"github.com/metroverse/scriptbridge/internal/hostapi"
)

// Budget is an in-memory treasury.
type Budget struct {
	Funds int64
}

func (b *Budget) TotalFunds() int64 { return b.Funds }

func (b *Budget) SetTotalFunds(amount int64) bool {
	b.Funds = amount
	return true
}

func (b *Budget) Deposit(amount int64) bool {
	if amount < 0 {
		return false
	}
	b.Funds += amount
	return true
}

func (b *Budget) Withdraw(amount int64) bool {
	if amount < 0 {
		return false
	}
	b.Funds -= amount
	return true
}

// Demographics holds fixed population aggregates.
type Demographics struct {
	Res, Com, Ind, JobCount uint32
}

func (d *Demographics) Residential() uint32 { return d.Res }
func (d *Demographics) Commercial() uint32  { return d.Com }
func (d *Demographics) Industrial() uint32  { return d.Ind }
func (d *Demographics) Jobs() uint32        { return d.JobCount }

// Utility holds fixed production/consumption readings.
type Utility struct {
	Prod, Cons uint32
}

func (u *Utility) Produced() uint32 { return u.Prod }
func (u *Utility) Consumed() uint32 { return u.Cons }

// City is a simulated game session. Nil facility pointers model host
// simulators that are not up yet.
type City struct {
	CityName  string
	Birth     uint32
	Clock     uint32
	Mayor     bool
	Treasury  *Budget
	People    *Demographics
	PowerGrid *Utility
	WaterNet  *Utility
}

// CityFixture returns a city with plausible mid-game numbers, handy for
// tests and the run harness.
func CityFixture(name string) *City {
	return &City{
		CityName: name,
		Birth:    2015,
		Clock:    820,
		Mayor:    true,
		Treasury: &Budget{Funds: 100000},
		People:   &Demographics{Res: 12000, Com: 3400, Ind: 2100, JobCount: 5100},
		PowerGrid: &Utility{
			Prod: 9000,
			Cons: 7200,
		},
		WaterNet: &Utility{
			Prod: 5600,
			Cons: 5100,
		},
	}
}

func (c *City) Name() string      { return c.CityName }
func (c *City) BirthDate() uint32 { return c.Birth }
func (c *City) ClockTime() uint32 { return c.Clock }
func (c *City) MayorMode() bool   { return c.Mayor }
func (c *City) ToggleMayorMode()  { c.Mayor = !c.Mayor }

func (c *City) Budget() hostapi.Budget {
	if c.Treasury == nil {
		return nil
	}
	return c.Treasury
}

func (c *City) Demographics() hostapi.Demographics {
	if c.People == nil {
		return nil
	}
	return c.People
}

func (c *City) Power() hostapi.Utility {
	if c.PowerGrid == nil {
		return nil
	}
	return c.PowerGrid
}

func (c *City) Water() hostapi.Utility {
	if c.WaterNet == nil {
		return nil
	}
	return c.WaterNet
}

// Host simulates the game process: it owns at most one live city and a
// cheat-code table.
type Host struct {
	city        *City
	cheats      map[uint32]string
	failPhrases map[string]bool
}

// New creates an empty simulated host with no city loaded.
func New() *Host {
	return &Host{
		cheats:      make(map[uint32]string),
		failPhrases: make(map[string]bool),
	}
}

// CurrentCity implements hostapi.CityProvider.
func (h *Host) CurrentCity() hostapi.City {
	if h.city == nil {
		return nil
	}
	return h.city
}

// LoadCity makes the given city the live session.
func (h *Host) LoadCity(city *City) {
	h.city = city
}

// UnloadCity destroys the live session, as the host does on city exit.
func (h *Host) UnloadCity() {
	h.city = nil
}

// City returns the live city for direct inspection in tests, nil when
// none is loaded.
func (h *Host) City() *City {
	return h.city
}

// RegisterCheatCode implements hostapi.CheatRegistrar.
func (h *Host) RegisterCheatCode(id uint32, phrase string) error {
	if h.failPhrases[phrase] {
		return oops.In("simhost").With("phrase", phrase).New("cheat subsystem rejected phrase")
	}
	h.cheats[id] = phrase
	return nil
}

// FailRegistration makes future registrations of phrase fail, for
// exercising per-phrase isolation.
func (h *Host) FailRegistration(phrase string) {
	h.failPhrases[phrase] = true
}

// RegisteredCheats returns a copy of the registered id→phrase table.
func (h *Host) RegisteredCheats() map[uint32]string {
	out := make(map[uint32]string, len(h.cheats))
	for id, phrase := range h.cheats {
		out[id] = phrase
	}
	return out
}
