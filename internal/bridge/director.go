// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

// Package bridge is the host-facing boundary. The Director translates
// the game's lifecycle calls and notifications into runtime, registry
// and router operations. Every entry point recovers panics and answers
// with a bool; nothing raises across the host boundary.
package bridge

import (
	"log/slog"

	"github.com/metroverse/scriptbridge/internal/hostapi"
	"github.com/metroverse/scriptbridge/internal/hostfunc"
	"github.com/metroverse/scriptbridge/internal/registry"
	"github.com/metroverse/scriptbridge/internal/router"
	"github.com/metroverse/scriptbridge/internal/runtime"
	"github.com/metroverse/scriptbridge/internal/session"
)

// Director owns the scripting core on behalf of the host. Exactly one
// instance exists per process, constructed by the host integration and
// driven from the host's single dispatch thread.
type Director struct {
	view   *session.View
	rt     *runtime.Host
	reg    *registry.Registry
	router *router.Router
}

// Option configures the Director.
type Option func(*options)

type options struct {
	registryOpts []registry.Option
}

// WithExcludePatterns forwards discovery exclude globs to the registry.
func WithExcludePatterns(patterns []string) Option {
	return func(o *options) {
		o.registryOpts = append(o.registryOpts, registry.WithExcludePatterns(patterns))
	}
}

// WithMetrics wires registry metrics.
func WithMetrics(m registry.Metrics) Option {
	return func(o *options) {
		o.registryOpts = append(o.registryOpts, registry.WithMetrics(m))
	}
}

// New wires the scripting core over the given host surfaces. scriptsDir
// is where plugin scripts live; provider resolves the live city session;
// registrar accepts cheat registrations.
func New(scriptsDir string, provider hostapi.CityProvider, registrar hostapi.CheatRegistrar, opts ...Option) *Director {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	view := session.NewView(provider)
	funcs := hostfunc.New(view)
	rt := runtime.NewHost(scriptsDir, funcs)
	reg := registry.New(rt, funcs, o.registryOpts...)
	rt.SetUnloader(reg)

	return &Director{
		view:   view,
		rt:     rt,
		reg:    reg,
		router: router.New(view, reg, registrar),
	}
}

// Ready reports whether the scripting runtime is up. Used as the
// observability readiness probe.
func (d *Director) Ready() bool {
	return d.rt.Ready()
}

// Registry exposes the plugin registry for host tooling.
func (d *Director) Registry() *registry.Registry {
	return d.reg
}

// OnStart is called when the host first sees the bridge. It does no
// interpreter work; scripts only start at PostAppInit, once the host's
// own subsystems exist.
func (d *Director) OnStart() bool {
	return d.guard("on_start", func() bool {
		slog.Info("script bridge attached", "scripts_dir", d.rt.ScriptsDir())
		return true
	})
}

// PreAppInit runs before the host finishes booting. Nothing to do yet.
func (d *Director) PreAppInit() bool {
	return d.guard("pre_app_init", func() bool {
		return true
	})
}

// PostAppInit brings the scripting core up: interpreter, plugins, cheat
// registration. A failed Initialize disables the feature for this
// session; the host keeps running.
func (d *Director) PostAppInit() bool {
	return d.guard("post_app_init", func() bool {
		if !d.rt.Initialize() {
			slog.Error("scripting disabled for this session", "error", d.rt.LastError())
			return false
		}
		if !d.reg.LoadAll() {
			slog.Warn("some plugins failed to load", "loaded", d.reg.Len(), "error", d.reg.LastError())
		}
		d.router.RegisterCheats()
		slog.Info("script bridge ready", "plugins", d.reg.Len(), "cheats", d.router.CheatCount())
		return true
	})
}

// PreAppShutdown unloads plugins while the host's subsystems are still
// alive, so shutdown hooks can observe them.
func (d *Director) PreAppShutdown() bool {
	return d.guard("pre_app_shutdown", func() bool {
		if d.rt.Ready() {
			d.reg.UnloadAll()
		}
		return true
	})
}

// PostAppShutdown tears down the interpreter.
func (d *Director) PostAppShutdown() bool {
	return d.guard("post_app_shutdown", func() bool {
		d.rt.Shutdown()
		return true
	})
}

// ProcessMessage routes a raw host notification. Returns false when the
// runtime is down; the message is then nobody's business.
func (d *Director) ProcessMessage(msg hostapi.Message) bool {
	return d.guard("process_message", func() bool {
		if !d.rt.Ready() {
			return false
		}
		if msg.Type == hostapi.MsgCheatIssued {
			// Cheat notifications carry text out of band; hosts with
			// the full payload call ProcessCheat directly.
			return d.router.OnCheat(msg.Data1, "")
		}
		return d.router.OnMessage(msg)
	})
}

// ProcessCheat routes an issued cheat to plugins.
func (d *Director) ProcessCheat(cheat hostapi.CheatIssued) bool {
	return d.guard("process_cheat", func() bool {
		if !d.rt.Ready() {
			return false
		}
		return d.router.OnCheat(cheat.ID, cheat.Text)
	})
}

// guard runs fn and converts any panic into a logged false result.
func (d *Director) guard(entry string, fn func() bool) (result bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic at bridge boundary", "entry", entry, "panic", r)
			result = false
		}
	}()
	return fn()
}
