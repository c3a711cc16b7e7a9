// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

// Package registry discovers, loads and unloads plugin scripts and
// dispatches lifecycle calls and typed events to them. Every plugin
// fails independently: one script's error is logged and isolated, its
// siblings keep running.
//
// The registry is owned by the bridge director and driven only from the
// host's dispatch thread; it carries no locks by design.
package registry

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/metroverse/scriptbridge/internal/hostfunc"
	"github.com/metroverse/scriptbridge/internal/runtime"
)

// Lifecycle hook names plugins may define.
const (
	HookInitialize     = "initialize"
	HookShutdown       = "shutdown"
	HookOnCityInit     = "on_city_init"
	HookOnCityShutdown = "on_city_shutdown"
)

// Metrics receives registry events. Implementations live in the
// observability package; a nil Metrics disables recording.
type Metrics interface {
	PluginLoaded(result string)
	DispatchFailure(hook string)
	CheatHandled(plugin string)
}

// hookSet holds the optional hook functions resolved once at load time,
// so dispatch never probes the instance again. A lua.LNil entry means
// the plugin does not define that hook.
type hookSet struct {
	initialize     lua.LValue
	shutdown       lua.LValue
	onCityInit     lua.LValue
	onCityShutdown lua.LValue
	handleMessage  lua.LValue
	handleCheat    lua.LValue
	cheatPhrases   lua.LValue
}

func (h *hookSet) lifecycle(name string) lua.LValue {
	switch name {
	case HookInitialize:
		return h.initialize
	case HookShutdown:
		return h.shutdown
	case HookOnCityInit:
		return h.onCityInit
	case HookOnCityShutdown:
		return h.onCityShutdown
	default:
		return lua.LNil
	}
}

// Record tracks one loaded plugin. The record exclusively owns the
// script-side instance; dropping the record on unload releases it.
type Record struct {
	Name       string
	SourcePath string
	Version    string
	Loaded     bool
	instance   *lua.LTable
	hooks      hookSet
}

// Registry maps plugin names to their records.
type Registry struct {
	rt      *runtime.Host
	funcs   *hostfunc.Functions
	exclude []glob.Glob
	metrics Metrics
	records map[string]*Record
	lastErr string
}

// Option configures the Registry.
type Option func(*Registry)

// WithExcludePatterns skips scripts whose filename matches any of the
// given glob patterns. Invalid patterns are logged and ignored.
func WithExcludePatterns(patterns []string) Option {
	return func(r *Registry) {
		for _, pattern := range patterns {
			g, err := glob.Compile(pattern)
			if err != nil {
				slog.Warn("ignoring invalid exclude pattern", "pattern", pattern, "error", err)
				continue
			}
			r.exclude = append(r.exclude, g)
		}
	}
}

// WithMetrics wires dispatch and load counters.
func WithMetrics(m Metrics) Option {
	return func(r *Registry) {
		r.metrics = m
	}
}

// New creates a registry over a runtime host and its capability surface.
func New(rt *runtime.Host, funcs *hostfunc.Functions, opts ...Option) *Registry {
	r := &Registry{
		rt:      rt,
		funcs:   funcs,
		records: make(map[string]*Record),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LastError returns the diagnostic from the most recent failed load.
func (r *Registry) LastError() string {
	return r.lastErr
}

// Plugins returns the loaded plugin names, sorted for deterministic
// output.
func (r *Registry) Plugins() []string {
	names := make([]string, 0, len(r.records))
	for name := range r.records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of loaded plugins.
func (r *Registry) Len() int {
	return len(r.records)
}

// Discover lists candidate plugin scripts: regular files with the script
// extension directly inside the scripts directory, excluding names that
// start with an underscore (reserved for framework/private modules) and
// names matching a configured exclude pattern. A missing directory is
// not an error; it yields an empty list with a warning. Enumeration
// order is whatever the filesystem returns.
func (r *Registry) Discover() []string {
	dir := r.rt.ScriptsDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("scripts directory not readable", "dir", dir, "error", err)
		return nil
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != runtime.ScriptExt || strings.HasPrefix(name, "_") {
			continue
		}
		if r.excluded(name) {
			slog.Debug("script excluded by pattern", "script", name)
			continue
		}
		paths = append(paths, filepath.Join(dir, name))
	}

	slog.Info("discovered plugin scripts", "dir", dir, "count", len(paths))
	return paths
}

func (r *Registry) excluded(filename string) bool {
	for _, g := range r.exclude {
		if g.Match(filename) {
			return true
		}
	}
	return false
}

// LoadAll discovers and loads every candidate script. A failed
// individual load is logged and does not abort the batch; the return
// value is true only when every load succeeded.
func (r *Registry) LoadAll() bool {
	ok := true
	for _, path := range r.Discover() {
		if !r.Load(path) {
			ok = false
		}
	}
	return ok
}

// Load loads one plugin script. The plugin name is the filename stem;
// loading a name that is already loaded is a no-op success. On failure
// the registry is unchanged and the error is recorded.
func (r *Registry) Load(path string) bool {
	if !r.rt.Ready() {
		r.loadFailed(path, oops.In("registry").With("state", r.rt.State().String()).New("runtime not ready"))
		return false
	}

	name := strings.TrimSuffix(filepath.Base(path), runtime.ScriptExt)
	if rec, ok := r.records[name]; ok && rec.Loaded {
		slog.Info("plugin already loaded", "plugin", name)
		return true
	}

	ls := r.rt.LState()

	fn, err := ls.LoadFile(path)
	if err != nil {
		r.loadFailed(path, oops.In("registry").With("plugin", name).Hint("script compile error").Wrap(err))
		return false
	}

	if err := ls.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
		r.loadFailed(path, oops.In("registry").With("plugin", name).Hint("script execution error").Wrap(err))
		return false
	}
	mod := ls.Get(-1)
	ls.Pop(1)

	modTable, ok := mod.(*lua.LTable)
	if !ok {
		r.loadFailed(path, oops.In("registry").With("plugin", name).With("returned", mod.Type().String()).New("script must return a module table"))
		return false
	}

	version := checkVersion(ls, name, modTable)

	newFn := ls.GetField(modTable, "new")
	if newFn.Type() != lua.LTFunction {
		r.loadFailed(path, oops.In("registry").With("plugin", name).New("module does not expose a new(city) constructor"))
		return false
	}

	proxy := r.funcs.NewCityProxy(ls)
	if err := ls.CallByParam(lua.P{Fn: newFn, NRet: 1, Protect: true}, proxy); err != nil {
		r.loadFailed(path, oops.In("registry").With("plugin", name).Hint("constructor error").Wrap(err))
		return false
	}
	instVal := ls.Get(-1)
	ls.Pop(1)

	instance, ok := instVal.(*lua.LTable)
	if !ok {
		r.loadFailed(path, oops.In("registry").With("plugin", name).New("constructor must return an instance table"))
		return false
	}

	rec := &Record{
		Name:       name,
		SourcePath: path,
		Version:    version,
		Loaded:     true,
		instance:   instance,
		hooks:      resolveHooks(ls, instance),
	}

	if rec.hooks.initialize != lua.LNil {
		if err := r.call(rec, rec.hooks.initialize, 0); err != nil {
			r.loadFailed(path, oops.In("registry").With("plugin", name).Hint("initialize hook failed").Wrap(err))
			return false
		}
	}

	r.records[name] = rec
	if r.metrics != nil {
		r.metrics.PluginLoaded("ok")
	}
	slog.Info("loaded plugin", "plugin", name, "version", version, "path", path)
	return true
}

// Unload invokes the plugin's shutdown hook, releases its instance and
// removes the record. No-op when the name is not loaded. Hook failures
// are logged, never propagated.
func (r *Registry) Unload(name string) {
	rec, ok := r.records[name]
	if !ok {
		return
	}

	if rec.hooks.shutdown != lua.LNil {
		if err := r.call(rec, rec.hooks.shutdown, 0); err != nil {
			slog.Error("plugin shutdown hook failed", "plugin", name, "error", err)
		}
	}

	delete(r.records, name)
	slog.Info("unloaded plugin", "plugin", name)
}

// UnloadAll unloads every plugin and clears the registry. Never panics.
func (r *Registry) UnloadAll() {
	for _, name := range r.Plugins() {
		r.Unload(name)
	}
	r.records = make(map[string]*Record)
	slog.Info("all plugins unloaded")
}

// ReloadAll drops every loaded plugin, then loads fresh from the scripts
// directory. There is no partial state: the old set is fully gone before
// the new one starts loading.
func (r *Registry) ReloadAll() bool {
	r.UnloadAll()
	return r.LoadAll()
}

// DispatchLifecycle calls the named bare lifecycle hook on every loaded
// plugin that defines it. Per-plugin errors are logged and isolated;
// returns true only when no hook failed.
func (r *Registry) DispatchLifecycle(hook string) bool {
	ok := true
	for _, name := range r.Plugins() {
		rec := r.records[name]
		fn := rec.hooks.lifecycle(hook)
		if fn == lua.LNil {
			continue
		}
		if err := r.call(rec, fn, 0); err != nil {
			slog.Error("lifecycle hook failed", "plugin", name, "hook", hook, "error", err)
			if r.metrics != nil {
				r.metrics.DispatchFailure(hook)
			}
			ok = false
		}
	}
	return ok
}

// DispatchCheat delivers a cheat event to plugins defining handle_cheat,
// in sorted name order. The first plugin returning true consumes the
// cheat and dispatch stops. Returns whether any plugin handled it.
func (r *Registry) DispatchCheat(ev CheatEvent) bool {
	for _, name := range r.Plugins() {
		rec := r.records[name]
		if rec.hooks.handleCheat == lua.LNil {
			continue
		}
		handled, err := r.callBool(rec, rec.hooks.handleCheat, r.cheatTable(ev))
		if err != nil {
			slog.Error("handle_cheat failed", "plugin", name, "cheat", ev.Name, "error", err)
			if r.metrics != nil {
				r.metrics.DispatchFailure("handle_cheat")
			}
			continue
		}
		if handled {
			slog.Info("cheat handled", "cheat", ev.Name, "plugin", name)
			if r.metrics != nil {
				r.metrics.CheatHandled(name)
			}
			return true
		}
	}
	slog.Debug("cheat not handled by any plugin", "cheat", ev.Name)
	return false
}

// DispatchMessage delivers a generic message event to every plugin
// defining handle_message. Unlike cheats there is no short-circuit: all
// plugins see the message and the call reports delivered regardless of
// individual outcomes.
func (r *Registry) DispatchMessage(ev MessageEvent) bool {
	for _, name := range r.Plugins() {
		rec := r.records[name]
		if rec.hooks.handleMessage == lua.LNil {
			continue
		}
		handled, err := r.callBool(rec, rec.hooks.handleMessage, r.messageTable(ev))
		if err != nil {
			slog.Error("handle_message failed", "plugin", name, "type", ev.Type, "error", err)
			if r.metrics != nil {
				r.metrics.DispatchFailure("handle_message")
			}
			continue
		}
		if handled {
			slog.Debug("message handled", "type", ev.Type, "plugin", name)
		}
	}
	return true
}

// CheatPhrases asks every loaded plugin which cheat phrases it declares
// and returns a lowercased phrase → owning-plugin mapping. Callers
// rebuild their descriptor sets from the result; nothing is merged with
// prior collections.
func (r *Registry) CheatPhrases() map[string]string {
	phrases := make(map[string]string)
	for _, name := range r.Plugins() {
		rec := r.records[name]
		if rec.hooks.cheatPhrases == lua.LNil {
			continue
		}

		ls := r.rt.LState()
		if err := ls.CallByParam(lua.P{Fn: rec.hooks.cheatPhrases, NRet: 1, Protect: true}, rec.instance); err != nil {
			slog.Error("cheat_phrases failed", "plugin", name, "error", err)
			continue
		}
		ret := ls.Get(-1)
		ls.Pop(1)

		table, ok := ret.(*lua.LTable)
		if !ok {
			slog.Warn("cheat_phrases returned non-table", "plugin", name, "type", ret.Type().String())
			continue
		}

		table.ForEach(func(k, v lua.LValue) {
			// Phrases come either as an array of strings or as a map
			// keyed by phrase with a description value.
			raw := k.String()
			if k.Type() == lua.LTNumber {
				raw = v.String()
			}
			phrase := strings.ToLower(strings.TrimSpace(raw))
			if phrase == "" {
				return
			}
			if owner, dup := phrases[phrase]; dup {
				slog.Warn("duplicate cheat phrase", "phrase", phrase, "plugin", name, "owner", owner)
				return
			}
			phrases[phrase] = name
		})
	}
	return phrases
}

func (r *Registry) loadFailed(path string, err error) {
	r.lastErr = err.Error()
	if r.metrics != nil {
		r.metrics.PluginLoaded("error")
	}
	slog.Error("failed to load plugin", "path", path, "error", err)
}

// call invokes fn as a method on the record's instance.
func (r *Registry) call(rec *Record, fn lua.LValue, nret int, args ...lua.LValue) error {
	ls := r.rt.LState()
	callArgs := append([]lua.LValue{rec.instance}, args...)
	if err := ls.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, callArgs...); err != nil {
		return oops.In("registry").With("plugin", rec.Name).Wrap(err)
	}
	return nil
}

// callBool invokes fn as a method and interprets its single return value
// as a Lua truthy "I consumed this" flag.
func (r *Registry) callBool(rec *Record, fn lua.LValue, args ...lua.LValue) (bool, error) {
	ls := r.rt.LState()
	if err := r.call(rec, fn, 1, args...); err != nil {
		return false, err
	}
	ret := ls.Get(-1)
	ls.Pop(1)
	return lua.LVAsBool(ret), nil
}

func (r *Registry) cheatTable(ev CheatEvent) *lua.LTable {
	ls := r.rt.LState()
	t := ls.NewTable()
	ls.SetField(t, "id", lua.LNumber(ev.ID))
	ls.SetField(t, "text", lua.LString(ev.Text))
	ls.SetField(t, "name", lua.LString(ev.Name))
	args := ls.NewTable()
	for _, arg := range ev.Args {
		args.Append(lua.LString(arg))
	}
	ls.SetField(t, "args", args)
	return t
}

func (r *Registry) messageTable(ev MessageEvent) *lua.LTable {
	ls := r.rt.LState()
	t := ls.NewTable()
	ls.SetField(t, "type", lua.LNumber(ev.Type))
	ls.SetField(t, "data1", lua.LNumber(ev.Data1))
	ls.SetField(t, "data2", lua.LNumber(ev.Data2))
	ls.SetField(t, "data3", lua.LNumber(ev.Data3))
	return t
}

// resolveHooks probes the instance once so dispatch never has to.
func resolveHooks(ls *lua.LState, instance *lua.LTable) hookSet {
	field := func(name string) lua.LValue {
		v := ls.GetField(instance, name)
		if v.Type() != lua.LTFunction {
			return lua.LNil
		}
		return v
	}
	return hookSet{
		initialize:     field(HookInitialize),
		shutdown:       field(HookShutdown),
		onCityInit:     field(HookOnCityInit),
		onCityShutdown: field(HookOnCityShutdown),
		handleMessage:  field("handle_message"),
		handleCheat:    field("handle_cheat"),
		cheatPhrases:   field("cheat_phrases"),
	}
}

// checkVersion reads and validates an optional declared version. An
// invalid version is only a warning; the plugin still loads.
func checkVersion(ls *lua.LState, name string, mod *lua.LTable) string {
	v := ls.GetField(mod, "version")
	if v.Type() != lua.LTString {
		return ""
	}
	version := v.String()
	if _, err := semver.NewVersion(version); err != nil {
		slog.Warn("plugin declares invalid version", "plugin", name, "version", version, "error", err)
	}
	return version
}
