// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

package runtime

import (
	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"
)

// library names a Lua standard library and its opener.
type library struct {
	name string
	fn   lua.LGFunction
}

// defaultLibraries returns the standard libraries opened in the bridge
// interpreter. Plugin scripts are trusted local files, the same trust the
// host extends to its own plugins folder, so the usual scripting set is
// available. debug stays out: nothing in the plugin contract needs it.
func defaultLibraries() []library {
	return []library{
		{lua.LoadLibName, lua.OpenPackage}, // require/package.path, needed first
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.OsLibName, lua.OpenOs},
		{lua.IoLibName, lua.OpenIo},
		{lua.CoroutineLibName, lua.OpenCoroutine},
	}
}

// StateFactory creates interpreter states with a controlled library set.
type StateFactory struct {
	libraries []library
}

// NewStateFactory creates a state factory with the default library set.
func NewStateFactory() *StateFactory {
	return &StateFactory{libraries: defaultLibraries()}
}

// NewState creates a fresh Lua state with the factory's libraries loaded.
func (f *StateFactory) NewState() (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, lib := range f.libraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, oops.In("runtime").With("library", lib.name).Hint("failed to open library").Wrap(err)
		}
	}

	return L, nil
}
