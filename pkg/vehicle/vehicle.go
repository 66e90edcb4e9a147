// Package vehicle models the state of a Porsche Connect vehicle.
//
// A Vehicle is a handle bound to an account connection. Fetch operations (UpdateStoredOverview,
// UpdateCurrentOverview, ...) populate the vehicle's measurement store; typed accessors in
// state.go decode individual measurements on demand. Remote commands live in command.go and take
// their payloads from [pkg/action].
package vehicle

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/porsche-community/porsche-connect/internal/log"
)

// Connection dispatches authenticated API calls. [account.Account] implements it.
type Connection interface {
	Get(ctx context.Context, endpoint string) ([]byte, error)
	Post(ctx context.Context, endpoint string, payload interface{}) ([]byte, error)
}

// ModelType describes the vehicle hardware.
type ModelType struct {
	Code       string `json:"code,omitempty"`
	Year       string `json:"year,omitempty"`
	Body       string `json:"body,omitempty"`
	Generation string `json:"generation,omitempty"`
	Engine     string `json:"engine,omitempty"` // BEV, PHEV, or COMBUSTION
}

// overview is the wire layout of both the vehicle list entries and the status endpoint.
type overview struct {
	VIN          string          `json:"vin"`
	ModelName    string          `json:"modelName"`
	CustomName   string          `json:"customName"`
	ModelType    ModelType       `json:"modelType"`
	SystemInfo   json.RawMessage `json:"systemInfo,omitempty"`
	Timestamp    string          `json:"timestamp,omitempty"`
	Connect      bool            `json:"connect,omitempty"`
	Measurements []measurement   `json:"measurements,omitempty"`
}

type measurement struct {
	Key    string `json:"key"`
	Status struct {
		IsEnabled bool   `json:"isEnabled"`
		Cause     string `json:"cause,omitempty"`
	} `json:"status"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Vehicle is a handle for a single vehicle paired with a Porsche Connect account.
//
// A Vehicle is not safe for concurrent use; each goroutine should obtain its own handle from the
// account.
type Vehicle struct {
	conn Connection
	vin  string

	ModelName  string
	CustomName string
	ModelType  ModelType
	SystemInfo json.RawMessage
	Timestamp  string
	Connected  bool

	measurements map[string]json.RawMessage
}

// New returns a Vehicle handle with no cached state. Call one of the update methods before using
// the state accessors.
func New(conn Connection, vin string) *Vehicle {
	return &Vehicle{
		conn:         conn,
		vin:          vin,
		measurements: make(map[string]json.RawMessage),
	}
}

// DecodeList converts the vehicle list endpoint's response into Vehicle handles.
func DecodeList(conn Connection, raw []byte) ([]*Vehicle, error) {
	var entries []overview
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, err
	}
	vehicles := make([]*Vehicle, 0, len(entries))
	for i := range entries {
		v := New(conn, entries[i].VIN)
		v.applyOverview(&entries[i])
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

// VIN returns the vehicle identification number.
func (v *Vehicle) VIN() string {
	return v.vin
}

// Name returns the owner-assigned name, falling back to the model name.
func (v *Vehicle) Name() string {
	if v.CustomName != "" {
		return v.CustomName
	}
	return v.ModelName
}

// HasElectricDrivetrain reports whether the vehicle has a high-voltage battery.
func (v *Vehicle) HasElectricDrivetrain() bool {
	return v.ModelType.Engine == "BEV" || v.ModelType.Engine == "PHEV"
}

// HasICEDrivetrain reports whether the vehicle has an internal combustion engine.
func (v *Vehicle) HasICEDrivetrain() bool {
	return v.ModelType.Engine == "PHEV" || v.ModelType.Engine == "COMBUSTION"
}

func (v *Vehicle) String() string {
	return fmt.Sprintf("Vehicle(%s, drivetrain=%s)", v.vin, v.ModelType.Engine)
}

// UpdateStoredOverview fetches the backend's stored status for the vehicle. The backend serves
// whatever the vehicle last reported; the car is not contacted.
func (v *Vehicle) UpdateStoredOverview(ctx context.Context) error {
	log.Debug("Getting stored status for vehicle %s", v.vin)
	endpoint := fmt.Sprintf("connect/v1/vehicles/%s?%s", v.vin, statusQuery(Measurements, nil))
	return v.fetchOverview(ctx, endpoint)
}

// UpdateCurrentOverview asks the backend to poll the vehicle before answering. The wake-up job
// can take tens of seconds and drains the 12V battery if overused; prefer UpdateStoredOverview.
func (v *Vehicle) UpdateCurrentOverview(ctx context.Context) error {
	log.Debug("Getting current status for vehicle %s", v.vin)
	endpoint := fmt.Sprintf("connect/v1/vehicles/%s?%s&wakeUpJob=%s", v.vin, statusQuery(Measurements, nil), uuid.NewString())
	return v.fetchOverview(ctx, endpoint)
}

func (v *Vehicle) fetchOverview(ctx context.Context, endpoint string) error {
	raw, err := v.conn.Get(ctx, endpoint)
	if err != nil {
		return err
	}
	var status overview
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("malformed status for vehicle %s: %w", v.vin, err)
	}
	if status.VIN == "" {
		return fmt.Errorf("status for vehicle %s is missing base data", v.vin)
	}
	v.applyOverview(&status)
	return nil
}

func (v *Vehicle) applyOverview(status *overview) {
	v.ModelName = status.ModelName
	v.CustomName = status.CustomName
	v.ModelType = status.ModelType
	if len(status.SystemInfo) > 0 {
		v.SystemInfo = status.SystemInfo
	}
	if status.Timestamp != "" {
		v.Timestamp = status.Timestamp
	}
	v.Connected = status.Connect
	for _, m := range status.Measurements {
		if !m.Status.IsEnabled {
			log.Debug("Dropping disabled measurement %s (%s)", m.Key, m.Status.Cause)
			continue
		}
		v.measurements[m.Key] = m.Value
	}
}

// Capabilities returns the vehicle's measurement and command fitment. The response mirrors the
// status endpoint but includes per-command availability.
func (v *Vehicle) Capabilities(ctx context.Context) (json.RawMessage, error) {
	log.Debug("Getting capabilities for vehicle %s", v.vin)
	endpoint := fmt.Sprintf("connect/v1/vehicles/%s?%s", v.vin, statusQuery(Measurements, Commands))
	return v.conn.Get(ctx, endpoint)
}

// FetchTripStatistics returns short-term, long-term, and cyclic trip statistics.
func (v *Vehicle) FetchTripStatistics(ctx context.Context) (json.RawMessage, error) {
	log.Debug("Getting trip statistics for vehicle %s", v.vin)
	endpoint := fmt.Sprintf("connect/v1/vehicles/%s?%s", v.vin, statusQuery(TripStatistics, nil))
	return v.conn.Get(ctx, endpoint)
}

// PictureLocations returns vehicle picture URLs keyed by view.
func (v *Vehicle) PictureLocations(ctx context.Context) (map[string]string, error) {
	log.Debug("Getting picture URLs for vehicle %s", v.vin)
	raw, err := v.conn.Get(ctx, fmt.Sprintf("connect/v1/vehicles/%s/pictures", v.vin))
	if err != nil {
		return nil, err
	}
	var pictures []struct {
		View string `json:"view"`
		URL  string `json:"url"`
	}
	if err := json.Unmarshal(raw, &pictures); err != nil {
		return nil, fmt.Errorf("malformed picture list for vehicle %s: %w", v.vin, err)
	}
	locations := make(map[string]string, len(pictures))
	for _, p := range pictures {
		locations[p.View] = p.URL
	}
	return locations, nil
}

// Data returns the vehicle's base data and enabled measurements as a single JSON-serializable
// map, mirroring the layout older clients wrote to their session dumps.
func (v *Vehicle) Data() map[string]interface{} {
	data := map[string]interface{}{
		"vin":       v.vin,
		"name":      v.Name(),
		"modelName": v.ModelName,
		"modelType": v.ModelType,
	}
	if v.CustomName != "" {
		data["customName"] = v.CustomName
	}
	if v.Timestamp != "" {
		data["timestamp"] = v.Timestamp
	}
	if len(v.SystemInfo) > 0 {
		data["systemInfo"] = v.SystemInfo
	}
	for key, value := range v.measurements {
		data[key] = value
	}
	return data
}
