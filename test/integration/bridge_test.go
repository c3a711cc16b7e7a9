// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Metroverse Contributors

//go:build integration

package integration_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/metroverse/scriptbridge/internal/bridge"
	"github.com/metroverse/scriptbridge/internal/hostapi"
	"github.com/metroverse/scriptbridge/internal/router"
	"github.com/metroverse/scriptbridge/internal/simhost"
)

const fundBoost = `
local plugin = require("scriptbridge.plugin")

return plugin.define{
  version = "1.0.0",
  cheats = { "FreeMoney" },
  handle_cheat = function(self, cheat)
    if cheat.name ~= "freemoney" then return false end
    return self.city.add_funds(50000)
  end,
}
`

const cityStats = `
local plugin = require("scriptbridge.plugin")
local sb = require("scriptbridge")

return plugin.define{
  version = "1.0.0",
  on_city_init = function(self)
    sb.log_info("city up: " .. self.city.name())
    init_seen = (init_seen or 0) + 1
  end,
  on_city_shutdown = function(self)
    shutdown_seen = (shutdown_seen or 0) + 1
  end,
  handle_message = function(self, msg)
    last_message_type = msg.type
    return false
  end,
}
`

var _ = Describe("Script bridge end to end", func() {
	var (
		dir string
		sim *simhost.Host
		d   *bridge.Director
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		write := func(name, body string) {
			Expect(os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600)).To(Succeed())
		}
		write("fund_boost.lua", fundBoost)
		write("city_stats.lua", cityStats)
		write("_hidden.lua", `error("never imported")`)

		sim = simhost.New()
		d = bridge.New(dir, sim, sim)
		Expect(d.OnStart()).To(BeTrue())
		Expect(d.PreAppInit()).To(BeTrue())
		Expect(d.PostAppInit()).To(BeTrue())
	})

	AfterEach(func() {
		Expect(d.PreAppShutdown()).To(BeTrue())
		Expect(d.PostAppShutdown()).To(BeTrue())
	})

	It("loads only discoverable scripts", func() {
		Expect(d.Registry().Plugins()).To(ConsistOf("city_stats", "fund_boost"))
	})

	It("registers plugin cheats with the host", func() {
		Expect(sim.RegisteredCheats()).To(HaveKeyWithValue(router.CheatID("freemoney"), "freemoney"))
	})

	It("runs a full session with cheats and messages", func() {
		city := simhost.CityFixture("New Sorrento")
		sim.LoadCity(city)
		Expect(d.ProcessMessage(hostapi.Message{Type: hostapi.MsgCityInit})).To(BeTrue())

		before := city.Treasury.Funds
		Expect(d.ProcessCheat(hostapi.CheatIssued{ID: router.CheatID("freemoney"), Text: "FreeMoney"})).To(BeTrue())
		Expect(city.Treasury.Funds).To(Equal(before + 50000))

		Expect(d.ProcessCheat(hostapi.CheatIssued{ID: 0xABCD, Text: "Unknown"})).To(BeFalse())

		Expect(d.ProcessMessage(hostapi.Message{Type: 0x26AD8E01, Data1: 1})).To(BeTrue())

		Expect(d.ProcessMessage(hostapi.Message{Type: hostapi.MsgCityShutdown})).To(BeTrue())
		sim.UnloadCity()

		Expect(d.ProcessCheat(hostapi.CheatIssued{ID: router.CheatID("freemoney"), Text: "FreeMoney"})).To(BeFalse(),
			"funds mutation without a session must fail cleanly")
	})

	It("survives a reload with a changed plugin set", func() {
		Expect(os.Remove(filepath.Join(dir, "fund_boost.lua"))).To(Succeed())
		Expect(d.Registry().ReloadAll()).To(BeTrue())
		Expect(d.Registry().Plugins()).To(ConsistOf("city_stats"))
	})
})
