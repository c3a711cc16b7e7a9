// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

// Package router classifies game events and forwards them to plugin
// hooks. It owns the cheat descriptor table that maps registered cheat
// ids and phrases back to the plugins that declared them.
package router

import (
	"log/slog"
	"strings"

	"github.com/metroverse/scriptbridge/internal/cheatparse"
	"github.com/metroverse/scriptbridge/internal/hostapi"
	"github.com/metroverse/scriptbridge/internal/registry"
	"github.com/metroverse/scriptbridge/internal/session"
)

// PluginSet is the registry surface the router drives.
type PluginSet interface {
	DispatchLifecycle(hook string) bool
	DispatchCheat(ev registry.CheatEvent) bool
	DispatchMessage(ev registry.MessageEvent) bool
	CheatPhrases() map[string]string
}

// Router forwards classified game events to the plugin set.
type Router struct {
	view      *session.View
	plugins   PluginSet
	registrar hostapi.CheatRegistrar

	byID     map[uint32]descriptor
	byPhrase map[string]descriptor
}

// New creates a router. The descriptor table starts empty; call
// RegisterCheats after plugins load.
func New(view *session.View, plugins PluginSet, registrar hostapi.CheatRegistrar) *Router {
	return &Router{
		view:      view,
		plugins:   plugins,
		registrar: registrar,
		byID:      make(map[uint32]descriptor),
		byPhrase:  make(map[string]descriptor),
	}
}

// OnCityInit invalidates cached city stats before plugins observe the
// new session, then runs the on_city_init hooks.
func (r *Router) OnCityInit() {
	r.view.InvalidateStats()
	r.plugins.DispatchLifecycle(registry.HookOnCityInit)
}

// OnCityShutdown runs the on_city_shutdown hooks while the session is
// still current, then invalidates cached stats.
func (r *Router) OnCityShutdown() {
	r.plugins.DispatchLifecycle(registry.HookOnCityShutdown)
	r.view.InvalidateStats()
}

// OnCheat routes a cheat entry to plugins. The cheat is matched first by
// its registered id, then by the lowercased leading word of the text. An
// unmatched cheat is not an error; the game has built-in cheats this
// bridge never sees declarations for, so the routine answer is simply
// "not ours".
func (r *Router) OnCheat(id uint32, text string) bool {
	name, args, err := cheatparse.Parse(text)
	if err != nil {
		// Fall back to treating the whole entry as the phrase.
		slog.Debug("cheat text not parseable", "text", text, "error", err)
		name = strings.ToLower(strings.TrimSpace(text))
		args = nil
	}

	desc, ok := r.byID[id]
	if !ok {
		desc, ok = r.byPhrase[name]
	}
	if !ok {
		slog.Debug("cheat not registered by any plugin", "id", id, "text", text)
		return false
	}

	ev := registry.CheatEvent{
		ID:   desc.id,
		Text: text,
		Name: desc.phrase,
		Args: args,
	}
	return r.plugins.DispatchCheat(ev)
}

// OnMessage classifies a raw game message. Lifecycle messages trigger
// their dedicated paths; cheat messages carry the id in Data1 and the
// entered text in the event payload handled by the bridge; everything
// else goes to the generic handle_message hooks.
func (r *Router) OnMessage(msg hostapi.Message) bool {
	switch msg.Type {
	case hostapi.MsgCityInit:
		r.OnCityInit()
		return true
	case hostapi.MsgCityShutdown:
		r.OnCityShutdown()
		return true
	default:
		return r.plugins.DispatchMessage(registry.MessageEvent{
			Type:  msg.Type,
			Data1: msg.Data1,
			Data2: msg.Data2,
			Data3: msg.Data3,
		})
	}
}
