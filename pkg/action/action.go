// Package action builds remote-command payloads for the vehicle commands endpoint.
//
// Constructors return an [Action] to pass to vehicle.Execute or vehicle.ExecuteAndWait. The
// backend rejects commands the vehicle is not fitted for; query capabilities first when in doubt.
package action

// Action is a remote command in the commands endpoint's wire format.
type Action struct {
	Key     string      `json:"key"`
	Payload interface{} `json:"payload,omitempty"`
}

// Lock engages the central locking.
func Lock() *Action {
	return &Action{Key: "LOCK"}
}

// Unlock disengages the central locking. The security PIN is the four-digit code configured in
// the vendor's app.
func Unlock(pin string) *Action {
	return &Action{
		Key: "UNLOCK",
		Payload: map[string]string{
			"spin": pin,
		},
	}
}

// ClimatiseOn starts remote climatisation.
func ClimatiseOn() *Action {
	return &Action{Key: "REMOTE_CLIMATIZER_START"}
}

// ClimatiseOff stops remote climatisation.
func ClimatiseOff() *Action {
	return &Action{Key: "REMOTE_CLIMATIZER_STOP"}
}

// DirectChargeOn enables direct charging, overriding charging profiles until the battery is full.
func DirectChargeOn() *Action {
	return &Action{Key: "DIRECT_CHARGING_START"}
}

// DirectChargeOff disables direct charging.
func DirectChargeOff() *Action {
	return &Action{Key: "DIRECT_CHARGING_STOP"}
}

// FlashIndicators flashes the indicators briefly.
func FlashIndicators() *Action {
	return &Action{
		Key: "HONK_FLASH",
		Payload: map[string]string{
			"mode": "FLASH",
		},
	}
}

// HonkAndFlash sounds the horn and flashes the indicators briefly.
func HonkAndFlash() *Action {
	return &Action{
		Key: "HONK_FLASH",
		Payload: map[string]string{
			"mode": "HONK_AND_FLASH",
		},
	}
}

// EditChargingProfiles replaces the vehicle's charging profile list. The argument must be the
// complete list as fetched from the vehicle, with the desired entries modified; the backend
// treats the payload as authoritative.
func EditChargingProfiles(profiles interface{}) *Action {
	return &Action{
		Key: "CHARGING_PROFILES_EDIT",
		Payload: map[string]interface{}{
			"list": profiles,
		},
	}
}
