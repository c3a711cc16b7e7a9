// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

// Package hostfunc provides the capability surface scripts can import.
//
// Scripts reach the host through exactly one module:
//
//	local sb = require("scriptbridge")
//	local city = sb.city()
//	sb.log_info("funds: " .. city.funds())
//
// The city proxy is bound to "whatever the current session is": every
// call re-resolves the live session, so a proxy created before a city
// loads starts answering real values the moment one does.
package hostfunc

import (
	"context"
	"log/slog"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	"github.com/metroverse/scriptbridge/internal/hostapi"
	"github.com/metroverse/scriptbridge/internal/session"
)

// ModuleName is the name scripts pass to require().
const ModuleName = "scriptbridge"

// Functions exposes host capabilities to Lua scripts.
type Functions struct {
	view *session.View
}

// New creates the capability surface over a session view.
func New(view *session.View) *Functions {
	return &Functions{view: view}
}

// Register preloads the scriptbridge module into a Lua state so scripts
// can require() it. Returns an error when the surface is not wired to a
// session view; the runtime treats that as fatal to Initialize.
func (f *Functions) Register(ls *lua.LState) error {
	if f == nil || f.view == nil {
		return oops.In("hostfunc").New("capability surface has no session view")
	}

	ls.PreloadModule(ModuleName, func(L *lua.LState) int {
		mod := L.NewTable()

		L.SetField(mod, "city", L.NewFunction(f.cityFn))
		L.SetField(mod, "new_request_id", L.NewFunction(newRequestIDFn))

		L.SetField(mod, "log", L.NewFunction(logLeveledFn))
		L.SetField(mod, "log_debug", L.NewFunction(logFn(slog.LevelDebug, false)))
		L.SetField(mod, "log_info", L.NewFunction(logFn(slog.LevelInfo, false)))
		L.SetField(mod, "log_warn", L.NewFunction(logFn(slog.LevelWarn, false)))
		L.SetField(mod, "log_error", L.NewFunction(logFn(slog.LevelError, false)))
		L.SetField(mod, "log_critical", L.NewFunction(logFn(slog.LevelError, true)))

		setConstants(L, mod)

		L.Push(mod)
		return 1
	})

	return nil
}

// NewCityProxy builds the session-proxy table handed to plugin
// constructors. Same object shape sb.city() returns.
func (f *Functions) NewCityProxy(ls *lua.LState) *lua.LTable {
	t := ls.NewTable()

	ls.SetField(t, "is_valid", ls.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(f.view.IsValid()))
		return 1
	}))
	ls.SetField(t, "name", ls.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(f.view.CityName()))
		return 1
	}))
	ls.SetField(t, "population", ls.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(f.view.Population()))
		return 1
	}))
	ls.SetField(t, "funds", ls.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(f.view.Funds()))
		return 1
	}))
	ls.SetField(t, "mayor_mode", ls.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(f.view.MayorMode()))
		return 1
	}))
	ls.SetField(t, "date", ls.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(f.view.Date()))
		return 1
	}))
	ls.SetField(t, "time", ls.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(f.view.Time()))
		return 1
	}))
	ls.SetField(t, "set_funds", ls.NewFunction(func(L *lua.LState) int {
		amount := L.CheckNumber(1)
		L.Push(lua.LBool(f.view.SetFunds(int64(amount))))
		return 1
	}))
	ls.SetField(t, "add_funds", ls.NewFunction(func(L *lua.LState) int {
		delta := L.CheckNumber(1)
		L.Push(lua.LBool(f.view.AddFunds(int64(delta))))
		return 1
	}))
	ls.SetField(t, "set_mayor_mode", ls.NewFunction(func(L *lua.LState) int {
		enabled := L.CheckBool(1)
		L.Push(lua.LBool(f.view.SetMayorMode(enabled)))
		return 1
	}))
	ls.SetField(t, "stats", ls.NewFunction(func(L *lua.LState) int {
		L.Push(f.statsTable(L))
		return 1
	}))

	return t
}

func (f *Functions) cityFn(L *lua.LState) int {
	L.Push(f.NewCityProxy(L))
	return 1
}

// statsTable builds a read-only snapshot table: writes raise an error.
func (f *Functions) statsTable(L *lua.LState) *lua.LTable {
	stats := f.view.Stats()

	data := L.NewTable()
	L.SetField(data, "residential_population", lua.LNumber(stats.ResidentialPop))
	L.SetField(data, "commercial_population", lua.LNumber(stats.CommercialPop))
	L.SetField(data, "industrial_population", lua.LNumber(stats.IndustrialPop))
	L.SetField(data, "total_jobs", lua.LNumber(stats.TotalJobs))
	L.SetField(data, "power_produced", lua.LNumber(stats.PowerProduced))
	L.SetField(data, "power_consumed", lua.LNumber(stats.PowerConsumed))
	L.SetField(data, "water_produced", lua.LNumber(stats.WaterProduced))
	L.SetField(data, "water_consumed", lua.LNumber(stats.WaterConsumed))

	proxy := L.NewTable()
	mt := L.NewTable()
	L.SetField(mt, "__index", data)
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("stats snapshot is read-only")
		return 0
	}))
	L.SetMetatable(proxy, mt)
	return proxy
}

// scriptLogger tags script-originated records so they are
// distinguishable from the bridge's own logging.
func scriptLogger() *slog.Logger {
	return slog.Default().With("source", "script")
}

func logFn(level slog.Level, critical bool) lua.LGFunction {
	return func(L *lua.LState) int {
		message := L.CheckString(1)
		logger := scriptLogger()
		if critical {
			logger.Log(context.Background(), level, message, "critical", true)
			return 0
		}
		logger.Log(context.Background(), level, message)
		return 0
	}
}

// logLeveledFn implements sb.log(level, msg) with integer levels 0-4:
// debug, info, warn, error, critical. Out-of-range levels log as info.
func logLeveledFn(L *lua.LState) int {
	level := L.CheckInt(1)
	message := L.CheckString(2)
	logger := scriptLogger()

	switch level {
	case 0:
		logger.Debug(message)
	case 1:
		logger.Info(message)
	case 2:
		logger.Warn(message)
	case 3:
		logger.Error(message)
	case 4:
		logger.Error(message, "critical", true)
	default:
		logger.Info(message)
	}
	return 0
}

func newRequestIDFn(L *lua.LState) int {
	L.Push(lua.LString(strings.ToLower(ulid.Make().String())))
	return 1
}

func setConstants(L *lua.LState, mod *lua.LTable) {
	for name, value := range map[string]uint32{
		"MSG_CITY_INIT":        hostapi.MsgCityInit,
		"MSG_CITY_SHUTDOWN":    hostapi.MsgCityShutdown,
		"MSG_CHEAT_ISSUED":     hostapi.MsgCheatIssued,
		"MSG_QUERY_EXEC_START": hostapi.MsgQueryExecStart,
		"MSG_QUERY_EXEC_END":   hostapi.MsgQueryExecEnd,
		"CHEAT_FUND":           hostapi.CheatFund,
		"CHEAT_POWER":          hostapi.CheatPower,
		"CHEAT_WATER":          hostapi.CheatWater,
	} {
		L.SetField(mod, name, lua.LNumber(value))
	}
}
