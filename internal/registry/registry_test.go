// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

package registry_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"

	"github.com/metroverse/scriptbridge/internal/hostfunc"
	"github.com/metroverse/scriptbridge/internal/registry"
	"github.com/metroverse/scriptbridge/internal/runtime"
	"github.com/metroverse/scriptbridge/internal/session"
	"github.com/metroverse/scriptbridge/internal/simhost"
)

type env struct {
	dir string
	sim *simhost.Host
	rt  *runtime.Host
	reg *registry.Registry
}

func newEnv(t *testing.T, opts ...registry.Option) *env {
	t.Helper()
	e := &env{dir: t.TempDir(), sim: simhost.New()}
	funcs := hostfunc.New(session.NewView(e.sim))
	e.rt = runtime.NewHost(e.dir, funcs)
	require.True(t, e.rt.Initialize())
	t.Cleanup(e.rt.Shutdown)
	e.reg = registry.New(e.rt, funcs, opts...)
	return e
}

func (e *env) write(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// global reads a Lua global set by a test script, defaulting to 0.
func (e *env) global(name string) int {
	v := e.rt.LState().GetGlobal(name)
	if n, ok := v.(lua.LNumber); ok {
		return int(n)
	}
	return 0
}

func counterScript(global, handles string) string {
	return `
local plugin = require("scriptbridge.plugin")
` + global + ` = 0
return plugin.define{
  version = "1.0.0",
  handle_message = function(self, msg)
    ` + global + ` = ` + global + ` + 1
    return ` + handles + `
  end,
  handle_cheat = function(self, cheat)
    ` + global + ` = ` + global + ` + 1
    return ` + handles + `
  end,
}
`
}

func TestDiscover_FiltersCandidates(t *testing.T) {
	e := newEnv(t, registry.WithExcludePatterns([]string{"skip_*.lua"}))

	e.write(t, "alpha.lua", "return {}")
	e.write(t, "_private.lua", "return {}")
	e.write(t, "notes.txt", "not a script")
	e.write(t, "skip_me.lua", "return {}")
	require.NoError(t, os.Mkdir(filepath.Join(e.dir, "sub.lua"), 0o750))

	paths := e.reg.Discover()
	require.Len(t, paths, 1)
	assert.Equal(t, filepath.Join(e.dir, "alpha.lua"), paths[0])
}

func TestDiscover_MissingDirIsEmpty(t *testing.T) {
	sim := simhost.New()
	funcs := hostfunc.New(session.NewView(sim))
	rt := runtime.NewHost(filepath.Join(t.TempDir(), "nope"), funcs)
	require.True(t, rt.Initialize())
	defer rt.Shutdown()

	reg := registry.New(rt, funcs)
	assert.Empty(t, reg.Discover())
}

func TestLoadAll_PartialFailure(t *testing.T) {
	e := newEnv(t)

	e.write(t, "good.lua", counterScript("good_calls", "false"))
	e.write(t, "broken.lua", "this is not lua(")
	e.write(t, "notmodule.lua", `return 42`)

	assert.False(t, e.reg.LoadAll(), "any failed load must be reported")
	assert.Equal(t, []string{"good"}, e.reg.Plugins())
	assert.NotEmpty(t, e.reg.LastError())
}

func TestLoadAll_AllValid(t *testing.T) {
	e := newEnv(t)

	e.write(t, "one.lua", counterScript("one_calls", "false"))
	e.write(t, "two.lua", counterScript("two_calls", "false"))

	assert.True(t, e.reg.LoadAll())
	assert.Equal(t, []string{"one", "two"}, e.reg.Plugins())
}

func TestLoad_Idempotent(t *testing.T) {
	e := newEnv(t)
	path := e.write(t, "once.lua", `
init_count = (init_count or 0)
local plugin = require("scriptbridge.plugin")
return plugin.define{
  initialize = function(self)
    init_count = init_count + 1
    return true
  end,
}
`)

	require.True(t, e.reg.Load(path))
	require.True(t, e.reg.Load(path))
	assert.Equal(t, 1, e.reg.Len())
	assert.Equal(t, 1, e.global("init_count"), "second load of the same name must be a no-op")
}

func TestLoad_MissingConstructor(t *testing.T) {
	e := newEnv(t)
	path := e.write(t, "noctor.lua", `return { version = "1.0.0" }`)

	assert.False(t, e.reg.Load(path))
	assert.Zero(t, e.reg.Len())
	assert.Contains(t, e.reg.LastError(), "new(city)")
}

func TestLoad_InitializeFailureIsLoadFailure(t *testing.T) {
	e := newEnv(t)
	path := e.write(t, "badinit.lua", `
local plugin = require("scriptbridge.plugin")
return plugin.define{
  initialize = function(self)
    error("refusing to start")
  end,
}
`)

	assert.False(t, e.reg.Load(path))
	assert.Zero(t, e.reg.Len(), "a plugin whose initialize fails must not be recorded")
}

func TestLoad_RuntimeNotReady(t *testing.T) {
	sim := simhost.New()
	funcs := hostfunc.New(session.NewView(sim))
	rt := runtime.NewHost(t.TempDir(), funcs)

	reg := registry.New(rt, funcs)
	assert.False(t, reg.Load("anything.lua"))
	assert.NotEmpty(t, reg.LastError())
}

func TestUnload_RunsShutdownHook(t *testing.T) {
	e := newEnv(t)
	path := e.write(t, "tidy.lua", `
shutdown_count = 0
local plugin = require("scriptbridge.plugin")
return plugin.define{
  shutdown = function(self)
    shutdown_count = shutdown_count + 1
  end,
}
`)

	require.True(t, e.reg.Load(path))
	e.reg.Unload("tidy")
	assert.Zero(t, e.reg.Len())
	assert.Equal(t, 1, e.global("shutdown_count"))

	// Unloading again is a no-op.
	e.reg.Unload("tidy")
	assert.Equal(t, 1, e.global("shutdown_count"))
}

func TestReloadAll_ReplacesSet(t *testing.T) {
	e := newEnv(t)
	old := e.write(t, "old.lua", counterScript("old_calls", "false"))

	require.True(t, e.reg.LoadAll())
	require.Equal(t, []string{"old"}, e.reg.Plugins())

	require.NoError(t, os.Remove(old))
	e.write(t, "fresh.lua", counterScript("fresh_calls", "false"))

	assert.True(t, e.reg.ReloadAll())
	assert.Equal(t, []string{"fresh"}, e.reg.Plugins(), "old set must be fully replaced")
}

func TestDispatchLifecycle_Isolation(t *testing.T) {
	e := newEnv(t)
	e.write(t, "faulty.lua", `
local plugin = require("scriptbridge.plugin")
return plugin.define{
  on_city_init = function(self)
    error("boom")
  end,
}
`)
	e.write(t, "steady.lua", `
steady_inits = 0
local plugin = require("scriptbridge.plugin")
return plugin.define{
  on_city_init = function(self)
    steady_inits = steady_inits + 1
  end,
}
`)

	e.reg.LoadAll()
	assert.False(t, e.reg.DispatchLifecycle(registry.HookOnCityInit))
	assert.Equal(t, 1, e.global("steady_inits"), "a sibling failure must not block delivery")
}

func TestDispatchLifecycle_EmptyRegistryIsTrue(t *testing.T) {
	e := newEnv(t)
	assert.True(t, e.reg.DispatchLifecycle(registry.HookOnCityInit))
}

func TestDispatchCheat_ShortCircuits(t *testing.T) {
	e := newEnv(t)
	e.write(t, "aaa.lua", counterScript("aaa_calls", "true"))
	e.write(t, "bbb.lua", counterScript("bbb_calls", "true"))

	require.True(t, e.reg.LoadAll())

	handled := e.reg.DispatchCheat(registry.CheatEvent{ID: 0x6990, Text: "freemoney", Name: "freemoney"})
	assert.True(t, handled)
	assert.Equal(t, 1, e.global("aaa_calls"))
	assert.Zero(t, e.global("bbb_calls"), "dispatch must stop at the first handler")
}

func TestDispatchCheat_Unhandled(t *testing.T) {
	e := newEnv(t)
	e.write(t, "aaa.lua", counterScript("aaa_calls", "false"))

	require.True(t, e.reg.LoadAll())
	assert.False(t, e.reg.DispatchCheat(registry.CheatEvent{Name: "nothing"}))
	assert.Equal(t, 1, e.global("aaa_calls"))
}

func TestDispatchCheat_EventFieldsVisible(t *testing.T) {
	e := newEnv(t)
	path := e.write(t, "inspect.lua", `
local plugin = require("scriptbridge.plugin")
return plugin.define{
  handle_cheat = function(self, cheat)
    seen_id = cheat.id
    seen_name = cheat.name
    seen_arg = cheat.args[1]
    return true
  end,
}
`)

	require.True(t, e.reg.Load(path))
	ev := registry.CheatEvent{ID: 0x1DE4F79A, Text: "power on", Name: "power", Args: []string{"on"}}
	require.True(t, e.reg.DispatchCheat(ev))

	ls := e.rt.LState()
	assert.Equal(t, lua.LNumber(0x1DE4F79A), ls.GetGlobal("seen_id"))
	assert.Equal(t, lua.LString("power"), ls.GetGlobal("seen_name"))
	assert.Equal(t, lua.LString("on"), ls.GetGlobal("seen_arg"))
}

func TestDispatchMessage_DeliversToAll(t *testing.T) {
	e := newEnv(t)
	e.write(t, "aaa.lua", counterScript("aaa_calls", "true"))
	e.write(t, "bbb.lua", counterScript("bbb_calls", "true"))

	require.True(t, e.reg.LoadAll())

	assert.True(t, e.reg.DispatchMessage(registry.MessageEvent{Type: 0x26AD8E01}))
	assert.Equal(t, 1, e.global("aaa_calls"), "every plugin must see the message")
	assert.Equal(t, 1, e.global("bbb_calls"), "every plugin must see the message")
}

func TestDispatchMessage_HandlerErrorIsolated(t *testing.T) {
	e := newEnv(t)
	e.write(t, "faulty.lua", `
local plugin = require("scriptbridge.plugin")
return plugin.define{
  handle_message = function(self, msg)
    error("boom")
  end,
}
`)
	e.write(t, "steady.lua", counterScript("steady_calls", "false"))

	require.True(t, e.reg.LoadAll())
	assert.True(t, e.reg.DispatchMessage(registry.MessageEvent{Type: 1}))
	assert.Equal(t, 1, e.global("steady_calls"))
}

func TestCheatPhrases_LowercasedAndOwned(t *testing.T) {
	e := newEnv(t)
	e.write(t, "money.lua", `
local plugin = require("scriptbridge.plugin")
return plugin.define{
  cheats = { FreeMoney = "Deposit funds" },
}
`)
	e.write(t, "utility.lua", `
local plugin = require("scriptbridge.plugin")
return plugin.define{
  cheats = { "Power On", "water on" },
}
`)

	require.True(t, e.reg.LoadAll())

	phrases := e.reg.CheatPhrases()
	assert.Equal(t, map[string]string{
		"freemoney": "money",
		"power on":  "utility",
		"water on":  "utility",
	}, phrases)
}

func TestCheatPhrases_DuplicateKeepsFirstOwner(t *testing.T) {
	e := newEnv(t)
	e.write(t, "aaa.lua", `
local plugin = require("scriptbridge.plugin")
return plugin.define{ cheats = { "shared" } }
`)
	e.write(t, "bbb.lua", `
local plugin = require("scriptbridge.plugin")
return plugin.define{ cheats = { "SHARED" } }
`)

	require.True(t, e.reg.LoadAll())
	assert.Equal(t, map[string]string{"shared": "aaa"}, e.reg.CheatPhrases())
}

type fakeMetrics struct {
	loads    map[string]int
	failures map[string]int
	cheats   map[string]int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{
		loads:    make(map[string]int),
		failures: make(map[string]int),
		cheats:   make(map[string]int),
	}
}

func (m *fakeMetrics) PluginLoaded(result string)  { m.loads[result]++ }
func (m *fakeMetrics) DispatchFailure(hook string) { m.failures[hook]++ }
func (m *fakeMetrics) CheatHandled(plugin string)  { m.cheats[plugin]++ }

func TestMetrics_Recorded(t *testing.T) {
	m := newFakeMetrics()
	e := newEnv(t, registry.WithMetrics(m))

	e.write(t, "good.lua", counterScript("good_calls", "true"))
	e.write(t, "broken.lua", "not lua(")

	e.reg.LoadAll()
	e.reg.DispatchCheat(registry.CheatEvent{Name: "anything"})

	assert.Equal(t, 1, m.loads["ok"])
	assert.Equal(t, 1, m.loads["error"])
	assert.Equal(t, 1, m.cheats["good"])
}
