// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

package router

import (
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
)

// descriptor ties a registered cheat id back to the declaring plugin.
type descriptor struct {
	id     uint32
	phrase string
	plugin string
}

// CheatID derives a stable cheat id from a phrase. The same phrase
// always maps to the same id across sessions, so ids never need to be
// persisted.
func CheatID(phrase string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(phrase)))
	return h.Sum32()
}

// RegisterCheats collects cheat phrases from every loaded plugin and
// registers them with the game's cheat registrar. The descriptor set is
// rebuilt from scratch: phrases from previously loaded plugins do not
// linger after a reload. A phrase whose registration is refused is
// logged and dropped; the rest still register.
func (r *Router) RegisterCheats() {
	phrases := r.plugins.CheatPhrases()

	r.byID = make(map[uint32]descriptor, len(phrases))
	r.byPhrase = make(map[string]descriptor, len(phrases))

	// Sorted for deterministic registration order.
	sorted := make([]string, 0, len(phrases))
	for phrase := range phrases {
		sorted = append(sorted, phrase)
	}
	sort.Strings(sorted)

	for _, phrase := range sorted {
		owner := phrases[phrase]
		id := CheatID(phrase)
		if err := r.registrar.RegisterCheatCode(id, phrase); err != nil {
			slog.Error("cheat registration refused", "phrase", phrase, "plugin", owner, "error", err)
			continue
		}
		desc := descriptor{id: id, phrase: phrase, plugin: owner}
		r.byID[id] = desc
		r.byPhrase[phrase] = desc
		slog.Debug("registered cheat", "phrase", phrase, "id", id, "plugin", owner)
	}

	slog.Info("cheat registration complete", "declared", len(phrases), "registered", len(r.byID))
}

// CheatCount returns how many cheats are currently registered.
func (r *Router) CheatCount() int {
	return len(r.byID)
}
