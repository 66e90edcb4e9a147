package vehicle

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/porsche-community/porsche-connect/internal/log"
	"github.com/porsche-community/porsche-connect/pkg/action"
)

// ExecutionState tracks a remote command through the backend's delivery pipeline.
type ExecutionState string

const (
	StateInitiated ExecutionState = "INITIATED"
	StatePending   ExecutionState = "PENDING"
	StateDelivered ExecutionState = "DELIVERED"
	StateExecuted  ExecutionState = "EXECUTED"
	StateError     ExecutionState = "ERROR"
	StateIgnored   ExecutionState = "IGNORED"
	StateUnknown   ExecutionState = "UNKNOWN"
)

// Final reports whether the state is terminal.
func (s ExecutionState) Final() bool {
	return s == StateExecuted || s == StateError || s == StateIgnored
}

// CommandStatus is the backend's answer to a command submission or status poll.
type CommandStatus struct {
	RequestID string          `json:"requestId,omitempty"`
	Status    ExecutionState  `json:"eventStatus,omitempty"`
	Detail    json.RawMessage `json:"-"`
}

// statusPollInterval paces ExecuteAndWait's polling of the command status endpoint.
var statusPollInterval = 2 * time.Second

func decodeCommandStatus(raw []byte) (*CommandStatus, error) {
	var status CommandStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return nil, fmt.Errorf("malformed command response: %w", err)
	}
	if status.Status == "" {
		status.Status = StateUnknown
	}
	status.Detail = json.RawMessage(raw)
	return &status, nil
}

// Execute submits a remote command and returns without waiting for the vehicle to act on it. Use
// ExecuteAndWait to block until delivery is confirmed.
func (v *Vehicle) Execute(ctx context.Context, act *action.Action) (*CommandStatus, error) {
	log.Debug("Executing %s on vehicle %s", act.Key, v.vin)
	raw, err := v.conn.Post(ctx, fmt.Sprintf("connect/v1/vehicles/%s/commands", v.vin), act)
	if err != nil {
		return nil, err
	}
	return decodeCommandStatus(raw)
}

// ExecuteAndWait submits a remote command and polls its status until the backend reports a final
// state or ctx expires. The returned status may be non-final if the backend stopped reporting a
// request ID.
func (v *Vehicle) ExecuteAndWait(ctx context.Context, act *action.Action) (*CommandStatus, error) {
	status, err := v.Execute(ctx, act)
	if err != nil {
		return nil, err
	}
	for !status.Status.Final() {
		if status.RequestID == "" {
			return status, nil
		}
		select {
		case <-time.After(statusPollInterval):
		case <-ctx.Done():
			return status, ctx.Err()
		}
		polled, err := v.CommandStatus(ctx, status.RequestID)
		if err != nil {
			return status, err
		}
		if polled.RequestID == "" {
			polled.RequestID = status.RequestID
		}
		status = polled
		log.Debug("Command %s on vehicle %s is %s", status.RequestID, v.vin, status.Status)
	}
	return status, nil
}

// CommandStatus polls the execution state of a previously submitted command.
func (v *Vehicle) CommandStatus(ctx context.Context, requestID string) (*CommandStatus, error) {
	raw, err := v.conn.Get(ctx, fmt.Sprintf("connect/v1/vehicles/%s/commands/%s", v.vin, requestID))
	if err != nil {
		return nil, err
	}
	return decodeCommandStatus(raw)
}

// ChargingProfileAction builds a command payload that edits the vehicle's charging profile list.
// A zero profileID targets the active profile. The minimum charge level is clamped to [25, 100],
// the range the backend accepts. Requires a fetched overview.
func (v *Vehicle) ChargingProfileAction(profileID, minimumChargeLevel int) (*action.Action, error) {
	profiles, err := v.ChargingProfiles()
	if err != nil {
		return nil, err
	}
	if profileID == 0 {
		state, err := v.ChargingState()
		if err != nil {
			return nil, err
		}
		if state.ActiveProfileID == nil {
			return nil, fmt.Errorf("%w: no active charging profile", ErrMeasurementUnavailable)
		}
		profileID = *state.ActiveProfileID
	}

	minimumChargeLevel = min(max(minimumChargeLevel, 25), 100)
	found := false
	for _, profile := range profiles {
		if profile.ID == profileID {
			profile.MinimumChargeLevel = minimumChargeLevel
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("charging profile %d not found", profileID)
	}
	log.Debug("Editing charging profile %d for vehicle %s", profileID, v.vin)
	return action.EditChargingProfiles(profiles), nil
}

// UpdateChargingProfile edits the vehicle's charging profile list and waits for the backend to
// confirm delivery. See [Vehicle.ChargingProfileAction] for the payload semantics.
func (v *Vehicle) UpdateChargingProfile(ctx context.Context, profileID, minimumChargeLevel int) (*CommandStatus, error) {
	act, err := v.ChargingProfileAction(profileID, minimumChargeLevel)
	if err != nil {
		return nil, err
	}
	return v.ExecuteAndWait(ctx, act)
}
