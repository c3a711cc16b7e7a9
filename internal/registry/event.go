// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

package registry

// CheatEvent is the typed payload delivered to handle_cheat hooks.
// Name is the lowercased leading phrase; Args are the remaining parsed
// tokens; Text preserves the raw string the player typed.
type CheatEvent struct {
	ID   uint32
	Text string
	Name string
	Args []string
}

// MessageEvent is the typed payload delivered to handle_message hooks.
type MessageEvent struct {
	Type  uint32
	Data1 uint32
	Data2 uint32
	Data3 uint32
}
