package action_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/porsche-community/porsche-connect/pkg/action"
)

func marshal(act *action.Action) string {
	raw, err := json.Marshal(act)
	Expect(err).NotTo(HaveOccurred())
	return string(raw)
}

var _ = Describe("Action", func() {
	Describe("Lock", func() {
		It("has no payload", func() {
			Expect(marshal(action.Lock())).To(MatchJSON(`{"key": "LOCK"}`))
		})
	})

	Describe("Unlock", func() {
		It("carries the security PIN", func() {
			Expect(marshal(action.Unlock("1234"))).To(MatchJSON(`{"key": "UNLOCK", "payload": {"spin": "1234"}}`))
		})
	})

	Describe("Climatisation", func() {
		It("uses the climatizer command pair", func() {
			Expect(action.ClimatiseOn().Key).To(Equal("REMOTE_CLIMATIZER_START"))
			Expect(action.ClimatiseOff().Key).To(Equal("REMOTE_CLIMATIZER_STOP"))
		})
	})

	Describe("Direct charging", func() {
		It("uses the direct charging command pair", func() {
			Expect(action.DirectChargeOn().Key).To(Equal("DIRECT_CHARGING_START"))
			Expect(action.DirectChargeOff().Key).To(Equal("DIRECT_CHARGING_STOP"))
		})
	})

	Describe("Honk and flash", func() {
		It("selects the mode in the payload", func() {
			Expect(marshal(action.FlashIndicators())).To(MatchJSON(`{"key": "HONK_FLASH", "payload": {"mode": "FLASH"}}`))
			Expect(marshal(action.HonkAndFlash())).To(MatchJSON(`{"key": "HONK_FLASH", "payload": {"mode": "HONK_AND_FLASH"}}`))
		})
	})

	Describe("EditChargingProfiles", func() {
		It("wraps the profile list", func() {
			profiles := []map[string]interface{}{{"id": 1, "minSoc": 40}}
			Expect(marshal(action.EditChargingProfiles(profiles))).To(
				MatchJSON(`{"key": "CHARGING_PROFILES_EDIT", "payload": {"list": [{"id": 1, "minSoc": 40}]}}`))
		})
	})
})
