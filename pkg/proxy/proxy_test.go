package proxy_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/jarcoal/httpmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/porsche-community/porsche-connect/pkg/account"
	"github.com/porsche-community/porsche-connect/pkg/auth"
	"github.com/porsche-community/porsche-connect/pkg/proxy"
)

const vin = "WP0ZZZ00000000001"

const statusJSON = `{
	"vin": "` + vin + `",
	"modelName": "Taycan",
	"customName": "Silver Bullet",
	"modelType": {"code": "Y1ADB1", "year": "2023", "engine": "BEV"},
	"connect": true,
	"measurements": [
		{"key": "BATTERY_LEVEL", "status": {"isEnabled": true}, "value": {"percent": 80}},
		{"key": "GPS_LOCATION", "status": {"isEnabled": true}, "value": {
			"location": "48.137154,11.576124", "direction": 90, "lastModified": "2023-05-01T12:00:00Z"
		}}
	]
}`

type envelope struct {
	Response json.RawMessage `json:"response"`
	Error    string          `json:"error"`
}

var _ = Describe("Proxy", func() {
	var p *proxy.Proxy

	sendRequest := func(method, path string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		rr := httptest.NewRecorder()
		p.ServeHTTP(rr, req)
		return rr
	}

	decodeEnvelope := func(rr *httptest.ResponseRecorder) envelope {
		var reply envelope
		Expect(json.Unmarshal(rr.Body.Bytes(), &reply)).To(Succeed())
		return reply
	}

	BeforeEach(func() {
		httpmock.Activate()
		DeferCleanup(httpmock.DeactivateAndReset)

		token := &auth.Token{AccessToken: "at", ExpiresAt: time.Now().Add(time.Hour).Unix()}
		acct := account.NewWithToken(auth.Credentials{Email: "driver@example.com"}, token, "proxy-test/1.0")
		p = proxy.New(acct)
	})

	Describe("vehicle listing", func() {
		It("returns the account's vehicles", func() {
			httpmock.RegisterResponder("GET", "https://api.ppa.porsche.com/app/connect/v1/vehicles",
				httpmock.NewStringResponder(http.StatusOK, "["+statusJSON+"]"))

			rr := sendRequest("GET", "/api/1/vehicles", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			var vehicles []map[string]interface{}
			Expect(json.Unmarshal(decodeEnvelope(rr).Response, &vehicles)).To(Succeed())
			Expect(vehicles).To(HaveLen(1))
			Expect(vehicles[0]).To(HaveKeyWithValue("vin", vin))
		})
	})

	Describe("vehicle status", func() {
		It("serves the stored overview", func() {
			httpmock.RegisterResponder("GET", `=~^https://api\.ppa\.porsche\.com/app/connect/v1/vehicles/`+vin+`\?`,
				func(req *http.Request) (*http.Response, error) {
					Expect(req.URL.Query()["mf"]).NotTo(BeEmpty())
					Expect(req.URL.Query().Get("wakeUpJob")).To(BeEmpty())
					return httpmock.NewStringResponse(http.StatusOK, statusJSON), nil
				})

			rr := sendRequest("GET", "/api/1/vehicles/"+vin, nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			var data map[string]interface{}
			Expect(json.Unmarshal(decodeEnvelope(rr).Response, &data)).To(Succeed())
			Expect(data).To(HaveKey("BATTERY_LEVEL"))
		})

		It("wakes the vehicle when refresh is requested", func() {
			var sawWakeUpJob bool
			httpmock.RegisterResponder("GET", `=~^https://api\.ppa\.porsche\.com/app/connect/v1/vehicles/`+vin+`\?`,
				func(req *http.Request) (*http.Response, error) {
					sawWakeUpJob = req.URL.Query().Get("wakeUpJob") != ""
					return httpmock.NewStringResponse(http.StatusOK, statusJSON), nil
				})

			rr := sendRequest("GET", "/api/1/vehicles/"+vin+"?refresh=true", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(sawWakeUpJob).To(BeTrue())
		})

		It("passes backend errors through with their status code", func() {
			httpmock.RegisterResponder("GET", `=~^https://api\.ppa\.porsche\.com/app/connect/v1/vehicles/`+vin+`\?`,
				httpmock.NewStringResponder(http.StatusNotFound, ""))

			rr := sendRequest("GET", "/api/1/vehicles/"+vin, nil)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
			Expect(decodeEnvelope(rr).Error).To(Equal("NOT_FOUND"))
		})
	})

	Describe("vehicle location", func() {
		It("returns the parsed position", func() {
			httpmock.RegisterResponder("GET", `=~^https://api\.ppa\.porsche\.com/app/connect/v1/vehicles/`+vin+`\?`,
				httpmock.NewStringResponder(http.StatusOK, statusJSON))

			rr := sendRequest("GET", "/api/1/vehicles/"+vin+"/location", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			var location struct {
				Latitude  float64
				Longitude float64
			}
			Expect(json.Unmarshal(decodeEnvelope(rr).Response, &location)).To(Succeed())
			Expect(location.Latitude).To(BeNumerically("~", 48.137154, 1e-6))
			Expect(location.Longitude).To(BeNumerically("~", 11.576124, 1e-6))
		})
	})

	Describe("commands", func() {
		commandsURL := fmt.Sprintf("https://api.ppa.porsche.com/app/connect/v1/vehicles/%s/commands", vin)

		It("submits a command and reports the final state", func() {
			httpmock.RegisterResponder("POST", commandsURL,
				func(req *http.Request) (*http.Response, error) {
					var act struct {
						Key string `json:"key"`
					}
					Expect(json.NewDecoder(req.Body).Decode(&act)).To(Succeed())
					Expect(act.Key).To(Equal("LOCK"))
					return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
						"requestId":   "r1",
						"eventStatus": "EXECUTED",
					})
				})

			rr := sendRequest("POST", "/api/1/vehicles/"+vin+"/command/lock", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			var status struct {
				Status string `json:"eventStatus"`
			}
			Expect(json.Unmarshal(decodeEnvelope(rr).Response, &status)).To(Succeed())
			Expect(status.Status).To(Equal("EXECUTED"))
		})

		It("does not poll when wait is disabled", func() {
			httpmock.RegisterResponder("POST", commandsURL,
				httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]interface{}{
					"requestId":   "r2",
					"eventStatus": "INITIATED",
				}))

			rr := sendRequest("POST", "/api/1/vehicles/"+vin+"/command/flash_indicators?wait=false", nil)
			Expect(rr.Code).To(Equal(http.StatusOK))
			var status struct {
				Status string `json:"eventStatus"`
			}
			Expect(json.Unmarshal(decodeEnvelope(rr).Response, &status)).To(Succeed())
			Expect(status.Status).To(Equal("INITIATED"))
			Expect(httpmock.GetTotalCallCount()).To(Equal(1))
		})

		It("edits a charging profile without polling when wait is disabled", func() {
			const chargingStatusJSON = `{
				"vin": "` + vin + `",
				"measurements": [
					{"key": "BATTERY_CHARGING_STATE", "status": {"isEnabled": true}, "value": {
						"directChargingState": "ENABLED_OFF", "activeProfileId": 1
					}},
					{"key": "CHARGING_PROFILES", "status": {"isEnabled": true}, "value": {
						"list": [{"id": 1, "minSoc": 30, "name": "Home", "active": true}]
					}}
				]
			}`
			httpmock.RegisterResponder("GET", `=~^https://api\.ppa\.porsche\.com/app/connect/v1/vehicles/`+vin+`\?`,
				httpmock.NewStringResponder(http.StatusOK, chargingStatusJSON))
			httpmock.RegisterResponder("POST", commandsURL,
				func(req *http.Request) (*http.Response, error) {
					var act struct {
						Key string `json:"key"`
					}
					Expect(json.NewDecoder(req.Body).Decode(&act)).To(Succeed())
					Expect(act.Key).To(Equal("CHARGING_PROFILES_EDIT"))
					return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
						"requestId":   "r4",
						"eventStatus": "INITIATED",
					})
				})

			rr := sendRequest("POST", "/api/1/vehicles/"+vin+"/command/chargingprofile?wait=false",
				[]byte(`{"minimum_charge_level": 40}`))
			Expect(rr.Code).To(Equal(http.StatusOK))
			var status struct {
				Status string `json:"eventStatus"`
			}
			Expect(json.Unmarshal(decodeEnvelope(rr).Response, &status)).To(Succeed())
			Expect(status.Status).To(Equal("INITIATED"))
			// One overview fetch and one submission; a poll would add a third request.
			Expect(httpmock.GetTotalCallCount()).To(Equal(2))
		})

		It("forwards the unlock PIN", func() {
			httpmock.RegisterResponder("POST", commandsURL,
				func(req *http.Request) (*http.Response, error) {
					var act struct {
						Key     string            `json:"key"`
						Payload map[string]string `json:"payload"`
					}
					Expect(json.NewDecoder(req.Body).Decode(&act)).To(Succeed())
					Expect(act.Key).To(Equal("UNLOCK"))
					Expect(act.Payload).To(HaveKeyWithValue("spin", "1234"))
					return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
						"requestId":   "r3",
						"eventStatus": "EXECUTED",
					})
				})

			rr := sendRequest("POST", "/api/1/vehicles/"+vin+"/command/unlock", []byte(`{"pin": "1234"}`))
			Expect(rr.Code).To(Equal(http.StatusOK))
		})

		It("rejects unlock without a PIN", func() {
			rr := sendRequest("POST", "/api/1/vehicles/"+vin+"/command/unlock", nil)
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeEnvelope(rr).Error).To(ContainSubstring("pin"))
		})

		It("rejects unknown commands", func() {
			rr := sendRequest("POST", "/api/1/vehicles/"+vin+"/command/fly", nil)
			Expect(rr.Code).To(Equal(http.StatusNotFound))
			Expect(decodeEnvelope(rr).Error).To(ContainSubstring("unrecognized command"))
		})

		It("rejects malformed request bodies", func() {
			rr := sendRequest("POST", "/api/1/vehicles/"+vin+"/command/lock", []byte("{not json"))
			Expect(rr.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
