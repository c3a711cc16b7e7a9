// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

// Package hostapi defines the boundary between the script bridge and the
// host game. The host owns every object behind these interfaces; the
// bridge never stores or frees them, it only queries through them.
package hostapi

// Message type ids the host emits. Values match the host's wire codes.
const (
	MsgCityInit       uint32 = 0x26C63345
	MsgCityShutdown   uint32 = 0x26C63346
	MsgCheatIssued    uint32 = 0x230E27AC
	MsgQueryExecStart uint32 = 0x26AD8E01
	MsgQueryExecEnd   uint32 = 0x26AD8E02
)

// Well-known cheat ids built into the host.
const (
	CheatFund  uint32 = 0x00006990
	CheatPower uint32 = 0x1DE4F79A
	CheatWater uint32 = 0x1DE4F79B
)

// Message is a generic host notification with three opaque data words.
type Message struct {
	Type  uint32
	Data1 uint32
	Data2 uint32
	Data3 uint32
}

// CheatIssued is the host notification for a cheat entered by the player.
// Text may be empty when the host carries no payload string.
type CheatIssued struct {
	ID   uint32
	Text string
}

// Budget is the city's treasury facility.
type Budget interface {
	TotalFunds() int64
	SetTotalFunds(amount int64) bool
	Deposit(amount int64) bool
	Withdraw(amount int64) bool
}

// Demographics reports population and employment aggregates.
type Demographics interface {
	Residential() uint32
	Commercial() uint32
	Industrial() uint32
	Jobs() uint32
}

// Utility reports production and consumption for one utility network.
type Utility interface {
	Produced() uint32
	Consumed() uint32
}

// City is the live game session surface. Facility accessors may return
// nil when the host has not brought that simulator up yet; callers treat
// a nil facility as all-zero readings.
type City interface {
	Name() string
	BirthDate() uint32
	ClockTime() uint32
	MayorMode() bool
	ToggleMayorMode()
	Budget() Budget
	Demographics() Demographics
	Power() Utility
	Water() Utility
}

// CityProvider resolves the currently loaded city. Returns nil while no
// city is active. The returned reference is only valid for the duration
// of the current host dispatch; re-resolve on every use.
type CityProvider interface {
	CurrentCity() City
}

// CheatRegistrar registers cheat phrases with the host's cheat subsystem
// so the host starts forwarding them as CheatIssued notifications.
type CheatRegistrar interface {
	RegisterCheatCode(id uint32, phrase string) error
}
