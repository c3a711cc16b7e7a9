// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

// Package runtime owns the embedded Lua interpreter's lifetime. The
// interpreter lives nested inside the host game's process: the host
// decides when the bridge initializes and when it tears down, so the
// Host exposes an idempotent Initialize/Shutdown pair and nothing else
// touches the interpreter's lifecycle.
//
// All operations run on the host's single dispatch thread; the Host
// carries no locks by design.
package runtime

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/metroverse/scriptbridge/internal/hostfunc"
)

//go:embed bootstrap.lua
var bootstrapSource string

// BootstrapModuleName is the require() name of the embedded base-plugin
// helpers.
const BootstrapModuleName = "scriptbridge.plugin"

// ScriptsDirName is the fixed folder name plugin scripts live in,
// sibling to the folder containing the host's plugins folder.
const ScriptsDirName = "Scripts"

// ScriptExt is the plugin script file extension.
const ScriptExt = ".lua"

// State tracks the interpreter lifecycle.
type State uint8

// Lifecycle states. Plugin operations are only valid in StateReady.
const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateShuttingDown
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting down"
	case StateShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Unloader tears down all loaded plugins. Shutdown runs it before
// releasing the interpreter because plugin shutdown hooks need a live
// interpreter to run in.
type Unloader interface {
	UnloadAll()
}

// Host owns the embedded interpreter.
type Host struct {
	scriptsDir string
	funcs      *hostfunc.Functions
	factory    *StateFactory
	ls         *lua.LState
	state      State
	lastErr    string
	unloader   Unloader
}

// NewHost creates an uninitialized runtime host. scriptsDir is where
// plugin scripts and shared Lua modules live.
func NewHost(scriptsDir string, funcs *hostfunc.Functions) *Host {
	return &Host{
		scriptsDir: scriptsDir,
		funcs:      funcs,
		factory:    NewStateFactory(),
	}
}

// SetUnloader wires the plugin registry's teardown into Shutdown.
func (h *Host) SetUnloader(u Unloader) {
	h.unloader = u
}

// State returns the current lifecycle state.
func (h *Host) State() State {
	return h.state
}

// Ready reports whether plugin operations are currently valid.
func (h *Host) Ready() bool {
	return h.state == StateReady
}

// LastError returns the diagnostic recorded by the most recent fatal
// Initialize failure, empty when none occurred.
func (h *Host) LastError() string {
	return h.lastErr
}

// LState returns the live interpreter, nil unless Ready.
func (h *Host) LState() *lua.LState {
	return h.ls
}

// ScriptsDir returns the plugin scripts directory.
func (h *Host) ScriptsDir() string {
	return h.scriptsDir
}

// DefaultScriptsDir derives the scripts directory from the bridge's own
// binary location: up two levels (out of the file, out of the host's
// plugins folder) and into the fixed sibling folder. Pure path
// computation, callable before Initialize.
func DefaultScriptsDir(binPath string) string {
	return filepath.Join(filepath.Dir(filepath.Dir(binPath)), ScriptsDirName)
}

// Initialize starts the embedded interpreter and prepares it for plugin
// loads. Idempotent: returns true immediately when already Ready. On any
// fatal failure it returns false, leaves the state not-Ready and records
// a diagnostic retrievable via LastError. Callers must not retry
// automatically.
func (h *Host) Initialize() bool {
	if h.state == StateReady {
		slog.Info("runtime already initialized")
		return true
	}
	if h.state != StateUninitialized {
		h.fail(oops.In("runtime").With("state", h.state.String()).New("initialize called in invalid state"))
		return false
	}

	h.state = StateInitializing
	slog.Info("initializing script runtime", "scripts_dir", h.scriptsDir)

	ls, err := h.factory.NewState()
	if err != nil {
		h.fail(oops.In("runtime").Hint("interpreter start failed").Wrap(err))
		return false
	}

	if err := h.funcs.Register(ls); err != nil {
		ls.Close()
		h.fail(oops.In("runtime").Hint("capability surface registration failed").Wrap(err))
		return false
	}

	if err := injectScriptPath(ls, h.scriptsDir); err != nil {
		ls.Close()
		h.fail(oops.In("runtime").Hint("script path setup failed").Wrap(err))
		return false
	}

	// Best effort: a missing lib/ folder only degrades scripts that
	// require shared third-party modules.
	h.checkEnvironment()

	if err := loadBootstrap(ls); err != nil {
		ls.Close()
		h.fail(oops.In("runtime").Hint("bootstrap module load failed").Wrap(err))
		return false
	}

	if err := installPrintBridge(ls); err != nil {
		slog.Warn("script print bridge setup failed, proceeding without it", "error", err)
	}

	h.ls = ls
	h.state = StateReady
	slog.Info("script runtime ready")
	return true
}

// Shutdown tears down plugins and then the interpreter. Idempotent:
// no-op unless Ready. Never panics; teardown failures are logged and
// swallowed so shutdown always completes.
func (h *Host) Shutdown() {
	if h.state != StateReady {
		return
	}
	h.state = StateShuttingDown

	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("plugin teardown panicked during shutdown", "panic", r)
			}
		}()
		if h.unloader != nil {
			h.unloader.UnloadAll()
		}
	}()

	slog.Info("shutting down script runtime")
	h.ls.Close()
	h.ls = nil
	h.state = StateShutdown
}

func (h *Host) fail(err error) {
	h.lastErr = err.Error()
	h.state = StateUninitialized
	slog.Error("runtime initialization failed", "error", err)
}

// checkEnvironment warns when the shared Lua module folder is absent.
func (h *Host) checkEnvironment() {
	libDir := filepath.Join(h.scriptsDir, "lib")
	if info, err := os.Stat(libDir); err != nil || !info.IsDir() {
		slog.Warn("shared module folder not found; scripts requiring third-party modules will fail to load",
			"lib_dir", libDir)
		return
	}
	slog.Info("found shared module folder", "lib_dir", libDir)
}

// injectScriptPath prepends the scripts directory (and its lib/ folder)
// onto the interpreter's module search path.
func injectScriptPath(ls *lua.LState, dir string) error {
	script := fmt.Sprintf("package.path = %q .. ';' .. %q .. ';' .. package.path",
		filepath.Join(dir, "?"+ScriptExt),
		filepath.Join(dir, "lib", "?"+ScriptExt))
	if err := ls.DoString(script); err != nil {
		return oops.In("runtime").With("dir", dir).Wrap(err)
	}
	slog.Info("added script search path", "dir", dir)
	return nil
}

// loadBootstrap compiles the embedded bootstrap module, preloads it
// under BootstrapModuleName and force-loads it once so syntax or runtime
// errors surface at Initialize rather than at first plugin load.
func loadBootstrap(ls *lua.LState) error {
	fn, err := ls.LoadString(bootstrapSource)
	if err != nil {
		return oops.In("runtime").Hint("bootstrap compile error").Wrap(err)
	}

	ls.PreloadModule(BootstrapModuleName, func(L *lua.LState) int {
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}); err != nil {
			L.RaiseError("bootstrap: %v", err)
			return 0
		}
		return 1
	})

	if err := ls.DoString(fmt.Sprintf("require(%q)", BootstrapModuleName)); err != nil {
		return oops.In("runtime").Hint("bootstrap import error").Wrap(err)
	}
	return nil
}

// installPrintBridge redirects the global print to the host's log sink
// so naive scripts still end up in structured logs.
func installPrintBridge(ls *lua.LState) error {
	printFn := ls.NewFunction(func(L *lua.LState) int {
		top := L.GetTop()
		out := ""
		for i := 1; i <= top; i++ {
			if i > 1 {
				out += "\t"
			}
			out += L.ToStringMeta(L.Get(i)).String()
		}
		slog.Info(out, "source", "script")
		return 0
	})
	ls.SetGlobal("print", printFn)
	return nil
}
