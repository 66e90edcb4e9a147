package vehicle

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ErrMeasurementUnavailable indicates the backend did not report the requested measurement, either
// because the vehicle lacks the hardware or because the overview has not been fetched yet.
var ErrMeasurementUnavailable = errors.New("measurement not available")

// TirePressureTolerance is the maximum deviation from target pressure, in bar, still reported as
// OK by TirePressuresOK.
const TirePressureTolerance = 0.3

var locationRE = regexp.MustCompile(`^[\-\.0-9]+,[\-\.0-9]+$`)

// Measurement decodes the named measurement into value. Returns ErrMeasurementUnavailable if the
// vehicle did not report it.
func (v *Vehicle) Measurement(key string, value interface{}) error {
	raw, ok := v.measurements[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrMeasurementUnavailable, key)
	}
	if err := json.Unmarshal(raw, value); err != nil {
		return fmt.Errorf("malformed measurement %s: %w", key, err)
	}
	return nil
}

// HasMeasurement reports whether the vehicle reported the named measurement.
func (v *Vehicle) HasMeasurement(key string) bool {
	_, ok := v.measurements[key]
	return ok
}

// BatteryLevel returns the high-voltage battery charge in percent.
func (v *Vehicle) BatteryLevel() (int, error) {
	var level struct {
		Percent int `json:"percent"`
	}
	if err := v.Measurement(MeasurementBatteryLevel, &level); err != nil {
		return 0, err
	}
	return level.Percent, nil
}

// ERange returns the remaining electric driving range in kilometers.
func (v *Vehicle) ERange() (int, error) {
	var distance struct {
		Kilometers int `json:"kilometers"`
	}
	if err := v.Measurement(MeasurementERange, &distance); err != nil {
		return 0, err
	}
	return distance.Kilometers, nil
}

// Mileage returns the odometer reading in kilometers.
func (v *Vehicle) Mileage() (int, error) {
	var distance struct {
		Kilometers int `json:"kilometers"`
	}
	if err := v.Measurement(MeasurementMileage, &distance); err != nil {
		return 0, err
	}
	return distance.Kilometers, nil
}

// Location describes the vehicle's last reported position.
type Location struct {
	Latitude  float64
	Longitude float64
	Heading   int
	UpdatedAt time.Time
}

// Location returns the vehicle's GPS position. Vehicles with privacy mode enabled do not report
// a position.
func (v *Vehicle) Location() (*Location, error) {
	var gps struct {
		Location     string `json:"location"`
		Direction    int    `json:"direction"`
		LastModified string `json:"lastModified"`
	}
	if err := v.Measurement(MeasurementGPSLocation, &gps); err != nil {
		return nil, err
	}
	if !locationRE.MatchString(gps.Location) {
		return nil, fmt.Errorf("malformed location %q", gps.Location)
	}
	loc := &Location{Heading: gps.Direction}
	if _, err := fmt.Sscanf(gps.Location, "%f,%f", &loc.Latitude, &loc.Longitude); err != nil {
		return nil, fmt.Errorf("malformed location %q: %w", gps.Location, err)
	}
	if gps.LastModified != "" {
		updated, err := time.Parse("2006-01-02T15:04:05Z", gps.LastModified)
		if err != nil {
			return nil, fmt.Errorf("malformed location timestamp %q: %w", gps.LastModified, err)
		}
		loc.UpdatedAt = updated.UTC()
	}
	return loc, nil
}

// Locked reports whether the central locking is engaged.
func (v *Vehicle) Locked() (bool, error) {
	var lock struct {
		IsLocked bool `json:"isLocked"`
	}
	if err := v.Measurement(MeasurementLockState, &lock); err != nil {
		return false, err
	}
	return lock.IsLocked, nil
}

// DoorsAndLids returns the open/closed state of every reported door, lid, window, and flap,
// keyed by measurement name.
func (v *Vehicle) DoorsAndLids() (map[string]string, error) {
	states := make(map[string]string)
	for key, raw := range v.measurements {
		if !strings.HasPrefix(key, openStatePrefix) {
			continue
		}
		var open struct {
			IsOpen bool `json:"isOpen"`
		}
		if err := json.Unmarshal(raw, &open); err != nil {
			return nil, fmt.Errorf("malformed measurement %s: %w", key, err)
		}
		if open.IsOpen {
			states[key] = "Open"
		} else {
			states[key] = "Closed"
		}
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("%w: %s*", ErrMeasurementUnavailable, openStatePrefix)
	}
	return states, nil
}

// Closed reports whether every door, lid, window, and flap is shut.
func (v *Vehicle) Closed() (bool, error) {
	states, err := v.DoorsAndLids()
	if err != nil {
		return false, err
	}
	for _, state := range states {
		if state == "Open" {
			return false, nil
		}
	}
	return true, nil
}

// ClimatisationOn reports whether remote climatisation is running.
func (v *Vehicle) ClimatisationOn() (bool, error) {
	var climatizer struct {
		IsOn bool `json:"isOn"`
	}
	if err := v.Measurement(MeasurementClimatizerState, &climatizer); err != nil {
		return false, err
	}
	return climatizer.IsOn, nil
}

// HasRemoteClimatisation reports whether the vehicle supports remote climatisation.
func (v *Vehicle) HasRemoteClimatisation() bool {
	return v.HasMeasurement(MeasurementClimatizerState)
}

// PrivacyMode reports whether the vehicle suppresses location and telemetry reporting.
func (v *Vehicle) PrivacyMode() (bool, error) {
	var privacy struct {
		IsEnabled bool `json:"isEnabled"`
	}
	if err := v.Measurement(MeasurementPrivacyMode, &privacy); err != nil {
		return false, err
	}
	return privacy.IsEnabled, nil
}

// HasRemoteServices reports whether remote command execution is authorized for this account.
func (v *Vehicle) HasRemoteServices() bool {
	var access struct {
		IsEnabled bool `json:"isEnabled"`
	}
	if err := v.Measurement(MeasurementRemoteAccess, &access); err != nil {
		return false
	}
	return access.IsEnabled
}

// ChargingState describes the high-voltage battery charging status. Rate and power are
// zero-filled when no charge is in progress, and the rate is normalized to km/h (the wire format
// uses km/min).
type ChargingState struct {
	DirectChargingState string  `json:"directChargingState,omitempty"`
	ChargingRate        float64 `json:"chargingRate"`
	ChargingPower       float64 `json:"chargingPower"`
	ActiveProfileID     *int    `json:"activeProfileId,omitempty"`
}

// ChargingState returns the normalized charging status.
func (v *Vehicle) ChargingState() (*ChargingState, error) {
	var wire struct {
		DirectChargingState string   `json:"directChargingState"`
		ChargingRate        *float64 `json:"chargingRate"`
		ChargingPower       *float64 `json:"chargingPower"`
		ActiveProfileID     *int     `json:"activeProfileId"`
	}
	if err := v.Measurement(MeasurementBatteryCharging, &wire); err != nil {
		return nil, err
	}
	state := &ChargingState{
		DirectChargingState: wire.DirectChargingState,
		ActiveProfileID:     wire.ActiveProfileID,
	}
	if wire.ChargingRate != nil {
		state.ChargingRate = *wire.ChargingRate * 60
	}
	if wire.ChargingPower != nil {
		state.ChargingPower = *wire.ChargingPower
	}
	return state, nil
}

// HasDirectCharge reports whether the vehicle supports direct charging.
func (v *Vehicle) HasDirectCharge() bool {
	state, err := v.ChargingState()
	return err == nil && state.DirectChargingState != ""
}

// DirectChargeOn reports whether direct charging is enabled.
func (v *Vehicle) DirectChargeOn() (bool, error) {
	state, err := v.ChargingState()
	if err != nil {
		return false, err
	}
	return state.DirectChargingState == "ENABLED_ON", nil
}

// ChargingProfile is one entry of the vehicle's charging profile list. Fields the client does not
// model are preserved in Extra so profile edits round-trip without clobbering them.
type ChargingProfile struct {
	ID                 int
	MinimumChargeLevel int
	Extra              map[string]interface{}
}

func (p *ChargingProfile) MarshalJSON() ([]byte, error) {
	merged := make(map[string]interface{}, len(p.Extra)+2)
	for key, value := range p.Extra {
		merged[key] = value
	}
	merged["id"] = p.ID
	merged["minSoc"] = p.MinimumChargeLevel
	return json.Marshal(merged)
}

func (p *ChargingProfile) UnmarshalJSON(raw []byte) error {
	var merged map[string]interface{}
	if err := json.Unmarshal(raw, &merged); err != nil {
		return err
	}
	if id, ok := merged["id"].(float64); ok {
		p.ID = int(id)
	}
	if minSoc, ok := merged["minSoc"].(float64); ok {
		p.MinimumChargeLevel = int(minSoc)
	}
	delete(merged, "id")
	delete(merged, "minSoc")
	p.Extra = merged
	return nil
}

// ChargingProfiles returns the vehicle's configured charging profiles.
func (v *Vehicle) ChargingProfiles() ([]*ChargingProfile, error) {
	var profiles struct {
		List []*ChargingProfile `json:"list"`
	}
	if err := v.Measurement(MeasurementChargingProfiles, &profiles); err != nil {
		return nil, err
	}
	return profiles.List, nil
}

// ChargingTarget returns the target state of charge in percent: 100 in direct charging mode,
// otherwise the minimum charge level of the active charging profile.
func (v *Vehicle) ChargingTarget() (int, error) {
	var summary struct {
		Mode            string          `json:"mode"`
		ChargingProfile json.RawMessage `json:"chargingProfile"`
	}
	if err := v.Measurement(MeasurementChargingSummary, &summary); err == nil && summary.Mode == "DIRECT" {
		return 100, nil
	}
	state, err := v.ChargingState()
	if err != nil {
		return 0, err
	}
	if state.ActiveProfileID == nil {
		return 0, fmt.Errorf("%w: no active charging profile", ErrMeasurementUnavailable)
	}
	profiles, err := v.ChargingProfiles()
	if err != nil {
		return 0, err
	}
	for _, profile := range profiles {
		if profile.ID == *state.ActiveProfileID {
			return profile.MinimumChargeLevel, nil
		}
	}
	return 0, fmt.Errorf("%w: active charging profile %d not in profile list", ErrMeasurementUnavailable, *state.ActiveProfileID)
}

// TirePressure is a single tire's reading in bar.
type TirePressure struct {
	Actual     float64 `json:"actualPressure"`
	Optimal    float64 `json:"optimalPressure"`
	Difference float64 `json:"differenceBar"`
}

// TirePressures returns per-tire readings keyed by position (e.g. "frontLeftTire").
func (v *Vehicle) TirePressures() (map[string]TirePressure, error) {
	var wire map[string]json.RawMessage
	if err := v.Measurement(MeasurementTirePressure, &wire); err != nil {
		return nil, err
	}
	pressures := make(map[string]TirePressure)
	for key, raw := range wire {
		if !strings.HasSuffix(key, "Tire") {
			continue
		}
		var reading TirePressure
		if err := json.Unmarshal(raw, &reading); err != nil {
			return nil, fmt.Errorf("malformed tire reading %s: %w", key, err)
		}
		pressures[key] = reading
	}
	return pressures, nil
}

// HasTirePressureMonitoring reports whether the vehicle reports tire pressures.
func (v *Vehicle) HasTirePressureMonitoring() bool {
	return v.HasMeasurement(MeasurementTirePressure)
}

// TirePressuresOK reports whether every tire is within TirePressureTolerance of its target.
func (v *Vehicle) TirePressuresOK() (bool, error) {
	pressures, err := v.TirePressures()
	if err != nil {
		return false, err
	}
	deviations := make([]float64, 0, len(pressures))
	for _, reading := range pressures {
		deviations = append(deviations, math.Abs(reading.Difference))
	}
	sort.Float64s(deviations)
	if len(deviations) == 0 {
		return false, fmt.Errorf("%w: no tire readings", ErrMeasurementUnavailable)
	}
	return deviations[len(deviations)-1] <= TirePressureTolerance, nil
}
