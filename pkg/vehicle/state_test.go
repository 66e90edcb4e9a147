package vehicle_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/porsche-community/porsche-connect/pkg/vehicle"
)

const testVIN = "WP0ZZZ00000000001"

// fakeConn satisfies vehicle.Connection with canned responses.
type fakeConn struct {
	getResponse  []byte
	getErr       error
	lastEndpoint string
}

func (f *fakeConn) Get(ctx context.Context, endpoint string) ([]byte, error) {
	f.lastEndpoint = endpoint
	return f.getResponse, f.getErr
}

func (f *fakeConn) Post(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	f.lastEndpoint = endpoint
	return []byte("{}"), nil
}

type wireMeasurement struct {
	Key    string `json:"key"`
	Status struct {
		IsEnabled bool   `json:"isEnabled"`
		Cause     string `json:"cause,omitempty"`
	} `json:"status"`
	Value interface{} `json:"value,omitempty"`
}

// overviewJSON serializes a status response with the given enabled measurements. Keys listed in
// disabled are included with isEnabled cleared, mirroring how the backend reports unavailable
// hardware.
func overviewJSON(measurements map[string]interface{}, disabled ...string) []byte {
	wire := make([]wireMeasurement, 0, len(measurements)+len(disabled))
	for key, value := range measurements {
		m := wireMeasurement{Key: key, Value: value}
		m.Status.IsEnabled = true
		wire = append(wire, m)
	}
	for _, key := range disabled {
		m := wireMeasurement{Key: key}
		m.Status.Cause = "NOT_SUPPORTED"
		wire = append(wire, m)
	}
	raw, err := json.Marshal(map[string]interface{}{
		"vin":        testVIN,
		"modelName":  "Taycan",
		"customName": "Silver Bullet",
		"modelType": map[string]string{
			"code":   "Y1ADB1",
			"year":   "2023",
			"engine": "BEV",
		},
		"connect":      true,
		"measurements": wire,
	})
	Expect(err).NotTo(HaveOccurred())
	return raw
}

func defaultMeasurements() map[string]interface{} {
	return map[string]interface{}{
		"BATTERY_LEVEL": map[string]interface{}{"percent": 80},
		"GPS_LOCATION": map[string]interface{}{
			"location":     "48.137154,11.576124",
			"direction":    90,
			"lastModified": "2023-05-01T12:00:00Z",
		},
		"E_RANGE":                      map[string]interface{}{"kilometers": 310},
		"MILEAGE":                      map[string]interface{}{"kilometers": 13567},
		"LOCK_STATE_VEHICLE":           map[string]interface{}{"isLocked": true},
		"OPEN_STATE_DOOR_FRONT_LEFT":   map[string]interface{}{"isOpen": false},
		"OPEN_STATE_WINDOW_FRONT_LEFT": map[string]interface{}{"isOpen": false},
		"OPEN_STATE_LID_REAR":          map[string]interface{}{"isOpen": true},
		"CLIMATIZER_STATE":             map[string]interface{}{"isOn": false},
		"GLOBAL_PRIVACY_MODE":          map[string]interface{}{"isEnabled": false},
		"REMOTE_ACCESS_AUTHORIZATION":  map[string]interface{}{"isEnabled": true},
		"BATTERY_CHARGING_STATE": map[string]interface{}{
			"directChargingState": "ENABLED_OFF",
			"chargingRate":        0.5,
			"chargingPower":       50.0,
			"activeProfileId":     1,
		},
		"CHARGING_PROFILES": map[string]interface{}{
			"list": []map[string]interface{}{
				{"id": 1, "minSoc": 30, "name": "Home", "active": true},
				{"id": 2, "minSoc": 50, "name": "Office"},
			},
		},
		"TIRE_PRESSURE": map[string]interface{}{
			"frontLeftTire":  map[string]interface{}{"actualPressure": 2.4, "optimalPressure": 2.5, "differenceBar": -0.1},
			"frontRightTire": map[string]interface{}{"actualPressure": 2.5, "optimalPressure": 2.5, "differenceBar": 0.0},
			"rearLeftTire":   map[string]interface{}{"actualPressure": 2.6, "optimalPressure": 2.7, "differenceBar": -0.1},
			"rearRightTire":  map[string]interface{}{"actualPressure": 2.7, "optimalPressure": 2.7, "differenceBar": 0.0},
			"lastModified":   "2023-05-01T12:00:00Z",
		},
	}
}

func loadVehicle(measurements map[string]interface{}, disabled ...string) (*vehicle.Vehicle, *fakeConn) {
	conn := &fakeConn{getResponse: overviewJSON(measurements, disabled...)}
	car := vehicle.New(conn, testVIN)
	Expect(car.UpdateStoredOverview(context.Background())).To(Succeed())
	return car, conn
}

var _ = Describe("Vehicle state", func() {
	var car *vehicle.Vehicle
	var conn *fakeConn

	BeforeEach(func() {
		car, conn = loadVehicle(defaultMeasurements(), "FUEL_LEVEL")
	})

	Describe("UpdateStoredOverview", func() {
		It("populates base data", func() {
			Expect(car.VIN()).To(Equal(testVIN))
			Expect(car.Name()).To(Equal("Silver Bullet"))
			Expect(car.ModelName).To(Equal("Taycan"))
			Expect(car.Connected).To(BeTrue())
			Expect(car.HasElectricDrivetrain()).To(BeTrue())
			Expect(car.HasICEDrivetrain()).To(BeFalse())
		})

		It("requests every known measurement", func() {
			Expect(conn.lastEndpoint).To(HavePrefix(fmt.Sprintf("connect/v1/vehicles/%s?", testVIN)))
			Expect(conn.lastEndpoint).To(ContainSubstring("mf=BATTERY_LEVEL"))
			Expect(conn.lastEndpoint).NotTo(ContainSubstring("wakeUpJob"))
		})

		It("drops disabled measurements", func() {
			Expect(car.HasMeasurement("FUEL_LEVEL")).To(BeFalse())
			Expect(car.HasMeasurement("BATTERY_LEVEL")).To(BeTrue())
		})
	})

	Describe("UpdateCurrentOverview", func() {
		It("attaches a wake-up job", func() {
			Expect(car.UpdateCurrentOverview(context.Background())).To(Succeed())
			Expect(conn.lastEndpoint).To(ContainSubstring("wakeUpJob="))
		})
	})

	Describe("BatteryLevel", func() {
		It("returns the charge percentage", func() {
			Expect(car.BatteryLevel()).To(Equal(80))
		})

		It("fails before any overview was fetched", func() {
			_, err := vehicle.New(conn, testVIN).BatteryLevel()
			Expect(err).To(MatchError(vehicle.ErrMeasurementUnavailable))
		})
	})

	Describe("Odometer readings", func() {
		It("returns the electric range in kilometers", func() {
			Expect(car.ERange()).To(Equal(310))
		})

		It("returns the mileage in kilometers", func() {
			Expect(car.Mileage()).To(Equal(13567))
		})
	})

	Describe("Location", func() {
		It("parses the coordinate pair", func() {
			location, err := car.Location()
			Expect(err).NotTo(HaveOccurred())
			Expect(location.Latitude).To(BeNumerically("~", 48.137154, 1e-6))
			Expect(location.Longitude).To(BeNumerically("~", 11.576124, 1e-6))
			Expect(location.Heading).To(Equal(90))
			Expect(location.UpdatedAt).To(Equal(time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)))
		})

		It("rejects malformed coordinates", func() {
			measurements := defaultMeasurements()
			measurements["GPS_LOCATION"] = map[string]interface{}{"location": "not-a-location"}
			car, _ := loadVehicle(measurements)
			_, err := car.Location()
			Expect(err).To(MatchError(ContainSubstring("malformed location")))
		})
	})

	Describe("Doors and lids", func() {
		It("reports each opening's state", func() {
			states, err := car.DoorsAndLids()
			Expect(err).NotTo(HaveOccurred())
			Expect(states).To(HaveKeyWithValue("OPEN_STATE_LID_REAR", "Open"))
			Expect(states).To(HaveKeyWithValue("OPEN_STATE_DOOR_FRONT_LEFT", "Closed"))
			for key := range states {
				Expect(key).To(HavePrefix("OPEN_STATE_"))
			}
		})

		It("reports the vehicle as open when any lid is open", func() {
			Expect(car.Closed()).To(BeFalse())
		})

		It("reports the vehicle as closed when everything is shut", func() {
			measurements := defaultMeasurements()
			measurements["OPEN_STATE_LID_REAR"] = map[string]interface{}{"isOpen": false}
			car, _ := loadVehicle(measurements)
			Expect(car.Closed()).To(BeTrue())
		})
	})

	Describe("Lock state", func() {
		It("reports the central locking state", func() {
			Expect(car.Locked()).To(BeTrue())
		})
	})

	Describe("Climatisation", func() {
		It("reports the climatizer state", func() {
			Expect(car.HasRemoteClimatisation()).To(BeTrue())
			Expect(car.ClimatisationOn()).To(BeFalse())
		})
	})

	Describe("Privacy and remote access", func() {
		It("reports privacy mode", func() {
			Expect(car.PrivacyMode()).To(BeFalse())
		})

		It("reports remote service authorization", func() {
			Expect(car.HasRemoteServices()).To(BeTrue())
		})
	})

	Describe("ChargingState", func() {
		It("normalizes the charging rate to km/h", func() {
			state, err := car.ChargingState()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.ChargingRate).To(BeNumerically("~", 30.0, 1e-9))
			Expect(state.ChargingPower).To(BeNumerically("~", 50.0, 1e-9))
			Expect(*state.ActiveProfileID).To(Equal(1))
		})

		It("zero-fills rate and power when no charge is in progress", func() {
			measurements := defaultMeasurements()
			measurements["BATTERY_CHARGING_STATE"] = map[string]interface{}{
				"directChargingState": "ENABLED_OFF",
			}
			car, _ := loadVehicle(measurements)
			state, err := car.ChargingState()
			Expect(err).NotTo(HaveOccurred())
			Expect(state.ChargingRate).To(BeZero())
			Expect(state.ChargingPower).To(BeZero())
		})

		It("reports direct charge support", func() {
			Expect(car.HasDirectCharge()).To(BeTrue())
			Expect(car.DirectChargeOn()).To(BeFalse())
		})
	})

	Describe("ChargingProfiles", func() {
		It("decodes known fields and preserves the rest", func() {
			profiles, err := car.ChargingProfiles()
			Expect(err).NotTo(HaveOccurred())
			Expect(profiles).To(HaveLen(2))
			Expect(profiles[0].ID).To(Equal(1))
			Expect(profiles[0].MinimumChargeLevel).To(Equal(30))
			Expect(profiles[0].Extra).To(HaveKeyWithValue("name", "Home"))
			Expect(profiles[0].Extra).NotTo(HaveKey("id"))
		})

		It("round-trips unknown fields through JSON", func() {
			profiles, err := car.ChargingProfiles()
			Expect(err).NotTo(HaveOccurred())
			raw, err := json.Marshal(profiles[0])
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring(`"name":"Home"`))
			Expect(string(raw)).To(ContainSubstring(`"id":1`))
			Expect(string(raw)).To(ContainSubstring(`"minSoc":30`))
		})
	})

	Describe("ChargingTarget", func() {
		It("returns the active profile's minimum charge level", func() {
			Expect(car.ChargingTarget()).To(Equal(30))
		})

		It("returns 100 in direct charging mode", func() {
			measurements := defaultMeasurements()
			measurements["CHARGING_SUMMARY"] = map[string]interface{}{"mode": "DIRECT"}
			car, _ := loadVehicle(measurements)
			Expect(car.ChargingTarget()).To(Equal(100))
		})
	})

	Describe("Tire pressures", func() {
		It("returns one reading per tire", func() {
			pressures, err := car.TirePressures()
			Expect(err).NotTo(HaveOccurred())
			Expect(pressures).To(HaveLen(4))
			for key := range pressures {
				Expect(strings.HasSuffix(key, "Tire")).To(BeTrue())
			}
			Expect(pressures["frontLeftTire"].Actual).To(BeNumerically("~", 2.4, 1e-9))
		})

		It("accepts deviations within tolerance", func() {
			Expect(car.HasTirePressureMonitoring()).To(BeTrue())
			Expect(car.TirePressuresOK()).To(BeTrue())
		})

		It("flags a deviation beyond tolerance", func() {
			measurements := defaultMeasurements()
			tires := measurements["TIRE_PRESSURE"].(map[string]interface{})
			tires["rearLeftTire"] = map[string]interface{}{
				"actualPressure": 2.2, "optimalPressure": 2.7, "differenceBar": -0.5,
			}
			car, _ := loadVehicle(measurements)
			Expect(car.TirePressuresOK()).To(BeFalse())
		})
	})

	Describe("Data", func() {
		It("merges base data and measurements", func() {
			data := car.Data()
			Expect(data).To(HaveKeyWithValue("vin", testVIN))
			Expect(data).To(HaveKeyWithValue("name", "Silver Bullet"))
			Expect(data).To(HaveKey("BATTERY_LEVEL"))
			Expect(data).NotTo(HaveKey("FUEL_LEVEL"))
		})
	})
})
