package vehicle

import (
	"net/url"
	"strings"
)

// Measurement keys understood by the backend. Status queries must name every measurement they
// want returned; the backend silently omits the rest.
const (
	MeasurementAlarmState       = "ALARM_STATE"
	MeasurementBatteryCharging  = "BATTERY_CHARGING_STATE"
	MeasurementBatteryLevel     = "BATTERY_LEVEL"
	MeasurementChargingProfiles = "CHARGING_PROFILES"
	MeasurementChargingSummary  = "CHARGING_SUMMARY"
	MeasurementClimatizerState  = "CLIMATIZER_STATE"
	MeasurementERange           = "E_RANGE"
	MeasurementFuelLevel        = "FUEL_LEVEL"
	MeasurementGPSLocation      = "GPS_LOCATION"
	MeasurementHeatingState     = "HEATING_STATE"
	MeasurementLockState        = "LOCK_STATE_VEHICLE"
	MeasurementMileage          = "MILEAGE"
	MeasurementPrivacyMode      = "GLOBAL_PRIVACY_MODE"
	MeasurementRemoteAccess     = "REMOTE_ACCESS_AUTHORIZATION"
	MeasurementTirePressure     = "TIRE_PRESSURE"
)

const openStatePrefix = "OPEN_STATE_"

// Measurements is the full set requested by overview queries.
var Measurements = []string{
	"ACV_STATE",
	MeasurementAlarmState,
	MeasurementBatteryCharging,
	MeasurementBatteryLevel,
	"BLEID_DDADATA",
	MeasurementChargingProfiles,
	MeasurementChargingSummary,
	MeasurementClimatizerState,
	"DEPARTURES",
	MeasurementERange,
	MeasurementFuelLevel,
	"FUEL_RESERVE",
	MeasurementPrivacyMode,
	MeasurementGPSLocation,
	MeasurementHeatingState,
	"INTERMEDIATE_SERVICE_RANGE",
	"INTERMEDIATE_SERVICE_TIME",
	MeasurementLockState,
	"MAIN_SERVICE_RANGE",
	"MAIN_SERVICE_TIME",
	MeasurementMileage,
	"OIL_LEVEL_CURRENT",
	"OIL_LEVEL_MAX",
	"OIL_LEVEL_MIN_WARNING",
	"OIL_SERVICE_RANGE",
	"OIL_SERVICE_TIME",
	"OPEN_STATE_CHARGE_FLAP_LEFT",
	"OPEN_STATE_CHARGE_FLAP_RIGHT",
	"OPEN_STATE_DOOR_FRONT_LEFT",
	"OPEN_STATE_DOOR_FRONT_RIGHT",
	"OPEN_STATE_DOOR_REAR_LEFT",
	"OPEN_STATE_DOOR_REAR_RIGHT",
	"OPEN_STATE_LID_FRONT",
	"OPEN_STATE_LID_REAR",
	"OPEN_STATE_SERVICE_FLAP",
	"OPEN_STATE_SPOILER",
	"OPEN_STATE_SUNROOF",
	"OPEN_STATE_TOP",
	"OPEN_STATE_WINDOW_FRONT_LEFT",
	"OPEN_STATE_WINDOW_FRONT_RIGHT",
	"OPEN_STATE_WINDOW_REAR_LEFT",
	"OPEN_STATE_WINDOW_REAR_RIGHT",
	"PAIRING_CODE",
	"PARKING_BRAKE",
	"PARKING_LIGHT",
	"PRED_PRECON_LOCATION_EXCEPTIONS",
	"PRED_PRECON_USER_SETTINGS",
	"RANGE",
	MeasurementRemoteAccess,
	"SERVICE_PREDICTIONS",
	"THEFT_STATE",
	MeasurementTirePressure,
	"TIMERS",
	"VTS_MODES",
}

// Commands is the full set of command fitments requested by capability queries.
var Commands = []string{
	"BLEID_AGREEMENT_GIVE",
	"BLEID_AGREEMENT_REVOKE",
	"BLEID_DEVICEKEY_UPLOAD",
	"B_CALL_TRIGGER",
	"CHARGING_PROFILES_EDIT",
	"CHARGING_SETTINGS_AUTOPLUG_EDIT",
	"CHARGING_SETTINGS_BATTERYCAREMODE_EDIT",
	"CHARGING_SETTINGS_CERTIFICATES_RESET",
	"CHARGING_SETTINGS_EDIT",
	"CHARGING_STOP",
	"CS_C2P_IN_VEHICLE_INFOTAINMENT",
	"CS_DESTINATION_SYNC",
	"CS_PCM_ACCOUNT_SERVICES",
	"CS_PCM_CALENDAR",
	"CS_PILOTED_PARKING",
	"CS_VIDEOSTREAMING_VOUCHER",
	"DEPARTURES_EDIT",
	"DIRECT_CHARGING_START",
	"DIRECT_CHARGING_STOP",
	"HONK_FLASH",
	"LOCK",
	"PRED_PRECON_LOCATION_EXCEPTION_EDIT",
	"PRED_PRECON_USER_SETTINGS_EDIT",
	"REMOTE_ACV_START",
	"REMOTE_ACV_STOP",
	"REMOTE_CLIMATIZER_START",
	"REMOTE_CLIMATIZER_STOP",
	"REMOTE_HEATING_START",
	"REMOTE_HEATING_STOP",
	"ROUTE_CALCULATE",
	"SERVICE_PREDICTIONS_VISIBILITY_EDIT",
	"SPIN_CHALLENGE",
	"TIMERS_DISABLE",
	"TIMERS_EDIT",
	"UNLOCK",
}

// TripStatistics is the set of trip measurement keys.
var TripStatistics = []string{
	"TRIP_STATISTICS_CYCLIC",
	"TRIP_STATISTICS_CYCLIC_HISTORY",
	"TRIP_STATISTICS_LONG_TERM",
	"TRIP_STATISTICS_LONG_TERM_HISTORY",
	"TRIP_STATISTICS_SHORT_TERM",
	"TRIP_STATISTICS_SHORT_TERM_HISTORY",
}

// statusQuery builds the repeated mf=/cf= query string for an overview request.
func statusQuery(measurements, commands []string) string {
	var parts []string
	for _, key := range measurements {
		parts = append(parts, "mf="+url.QueryEscape(key))
	}
	for _, key := range commands {
		parts = append(parts, "cf="+url.QueryEscape(key))
	}
	return strings.Join(parts, "&")
}
