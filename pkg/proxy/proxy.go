// Package proxy exposes a Porsche Connect account over a local REST API.
//
// The proxy owns the account credentials and session, so clients on the local network (home
// automation bridges, dashboards) can query vehicles and send commands over plain HTTP without
// handling the vendor's login flow themselves. Vendor API errors pass through with their original
// status codes.
package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/porsche-community/porsche-connect/internal/log"
	"github.com/porsche-community/porsche-connect/pkg/account"
	"github.com/porsche-community/porsche-connect/pkg/action"
	"github.com/porsche-community/porsche-connect/pkg/vehicle"
)

const (
	// DefaultTimeout bounds a single proxied request. Current-overview fetches and command
	// polling wake the vehicle and routinely take tens of seconds.
	DefaultTimeout = 60 * time.Second

	maxRequestBodyBytes = 512
)

// Proxy exposes an HTTP API for a single Porsche Connect account.
type Proxy struct {
	Timeout time.Duration

	acct    *account.Account
	router  *mux.Router
	vinLock sync.Map
}

// New creates an HTTP proxy serving the given account.
func New(acct *account.Account) *Proxy {
	p := &Proxy{
		Timeout: DefaultTimeout,
		acct:    acct,
		router:  mux.NewRouter(),
	}
	p.router.HandleFunc("/api/1/vehicles", p.handleVehicles).Methods("GET")
	p.router.HandleFunc("/api/1/vehicles/{vin}", p.handleStatus).Methods("GET")
	p.router.HandleFunc("/api/1/vehicles/{vin}/capabilities", p.handleCapabilities).Methods("GET")
	p.router.HandleFunc("/api/1/vehicles/{vin}/location", p.handleLocation).Methods("GET")
	p.router.HandleFunc("/api/1/vehicles/{vin}/trip_statistics", p.handleTripStatistics).Methods("GET")
	p.router.HandleFunc("/api/1/vehicles/{vin}/command/{command}", p.handleCommand).Methods("POST")
	return p
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	log.Info("Received %s %s", req.Method, req.URL.Path)
	p.router.ServeHTTP(w, req)
}

// lockVIN locks a VIN-specific mutex, blocking until the operation succeeds or ctx expires.
// Commands to the same vehicle are serialized; the backend rejects concurrent wake-up jobs.
func (p *Proxy) lockVIN(ctx context.Context, vin string) error {
	lock := make(chan bool, 1)
	for {
		if obj, loaded := p.vinLock.LoadOrStore(vin, lock); loaded {
			select {
			case <-obj.(chan bool):
				// The goroutine that reads from the channel doesn't necessarily own the mutex.
				// This allows the mutex owner to delete the entry from the map, limiting the
				// size of the map to the number of concurrent vehicle commands.
			case <-ctx.Done():
				return ctx.Err()
			}
		} else {
			return nil
		}
	}
}

// unlockVIN releases a VIN-specific mutex.
func (p *Proxy) unlockVIN(vin string) {
	obj, ok := p.vinLock.Load(vin)
	if !ok {
		panic("called unlock without owning mutex")
	}
	p.vinLock.Delete(vin)  // Allow someone else to claim the mutex
	close(obj.(chan bool)) // Unblock goroutines
}

// Response contains the proxy's answer to a client request.
type Response struct {
	Response interface{} `json:"response,omitempty"`
	Error    string      `json:"error,omitempty"`
}

func writeJSONResponse(w http.ResponseWriter, payload interface{}) {
	jsonBytes, err := json.Marshal(&Response{Response: payload})
	if err != nil {
		log.Error("Error serializing response: %s", err)
		writeJSONError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(append(jsonBytes, '\n'))
}

func writeJSONError(w http.ResponseWriter, code int, err error) {
	reply := Response{}

	var httpErr *account.HttpError
	if errors.As(err, &httpErr) {
		// Pass vendor API errors through with their original status code.
		code = httpErr.Code
	}
	if err == nil {
		reply.Error = http.StatusText(code)
	} else {
		reply.Error = err.Error()
	}
	jsonBytes, marshalErr := json.Marshal(&reply)
	if marshalErr != nil {
		log.Error("Error serializing error %+v: %s", &reply, marshalErr)
		code = http.StatusInternalServerError
		jsonBytes = []byte("{\"error\": \"internal server error\"}")
	}
	if code != http.StatusOK {
		log.Error("Returning error %s: %s", http.StatusText(code), reply.Error)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(append(jsonBytes, '\n'))
}

func (p *Proxy) context(req *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(req.Context(), p.Timeout)
}

func (p *Proxy) handleVehicles(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := p.context(req)
	defer cancel()

	vehicles, err := p.acct.Vehicles(ctx)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err)
		return
	}
	summaries := make([]map[string]interface{}, 0, len(vehicles))
	for _, car := range vehicles {
		summaries = append(summaries, car.Data())
	}
	writeJSONResponse(w, summaries)
}

// fetchStatus populates a vehicle handle using the stored overview, or the (slow) current
// overview when the client passed ?refresh=true.
func (p *Proxy) fetchStatus(ctx context.Context, req *http.Request) (*vehicle.Vehicle, error) {
	car := p.acct.Vehicle(mux.Vars(req)["vin"])
	if req.URL.Query().Get("refresh") == "true" {
		return car, car.UpdateCurrentOverview(ctx)
	}
	return car, car.UpdateStoredOverview(ctx)
}

func (p *Proxy) handleStatus(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := p.context(req)
	defer cancel()

	car, err := p.fetchStatus(ctx, req)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err)
		return
	}
	writeJSONResponse(w, car.Data())
}

func (p *Proxy) handleCapabilities(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := p.context(req)
	defer cancel()

	capabilities, err := p.acct.Vehicle(mux.Vars(req)["vin"]).Capabilities(ctx)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err)
		return
	}
	writeJSONResponse(w, capabilities)
}

func (p *Proxy) handleLocation(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := p.context(req)
	defer cancel()

	car, err := p.fetchStatus(ctx, req)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err)
		return
	}
	location, err := car.Location()
	if err != nil {
		writeJSONError(w, http.StatusNotFound, err)
		return
	}
	writeJSONResponse(w, location)
}

func (p *Proxy) handleTripStatistics(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := p.context(req)
	defer cancel()

	trips, err := p.acct.Vehicle(mux.Vars(req)["vin"]).FetchTripStatistics(ctx)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err)
		return
	}
	writeJSONResponse(w, trips)
}

type commandParams struct {
	PIN                string `json:"pin,omitempty"`
	ProfileID          int    `json:"profile_id,omitempty"`
	MinimumChargeLevel int    `json:"minimum_charge_level,omitempty"`
}

var commandActions = map[string]func(params *commandParams) (*action.Action, error){
	"lock": func(*commandParams) (*action.Action, error) {
		return action.Lock(), nil
	},
	"unlock": func(params *commandParams) (*action.Action, error) {
		if params.PIN == "" {
			return nil, fmt.Errorf("unlock requires a \"pin\" parameter")
		}
		return action.Unlock(params.PIN), nil
	},
	"climatise_on": func(*commandParams) (*action.Action, error) {
		return action.ClimatiseOn(), nil
	},
	"climatise_off": func(*commandParams) (*action.Action, error) {
		return action.ClimatiseOff(), nil
	},
	"direct_charge_on": func(*commandParams) (*action.Action, error) {
		return action.DirectChargeOn(), nil
	},
	"direct_charge_off": func(*commandParams) (*action.Action, error) {
		return action.DirectChargeOff(), nil
	},
	"flash_indicators": func(*commandParams) (*action.Action, error) {
		return action.FlashIndicators(), nil
	},
	"honk_and_flash": func(*commandParams) (*action.Action, error) {
		return action.HonkAndFlash(), nil
	},
}

func (p *Proxy) handleCommand(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := p.context(req)
	defer cancel()

	vars := mux.Vars(req)
	vin := vars["vin"]
	name := vars["command"]

	var params commandParams
	body, err := io.ReadAll(io.LimitReader(req.Body, maxRequestBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &params); err != nil {
			writeJSONError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
			return
		}
	}

	var act *action.Action
	if name != "chargingprofile" {
		build, ok := commandActions[name]
		if !ok {
			writeJSONError(w, http.StatusNotFound, fmt.Errorf("unrecognized command: %s", name))
			return
		}
		var err error
		if act, err = build(&params); err != nil {
			writeJSONError(w, http.StatusBadRequest, err)
			return
		}
	}

	if err := p.lockVIN(ctx, vin); err != nil {
		writeJSONError(w, http.StatusServiceUnavailable, err)
		return
	}
	defer p.unlockVIN(vin)

	car := p.acct.Vehicle(vin)
	wait := req.URL.Query().Get("wait") != "false"
	status, err := p.executeCommand(ctx, car, act, &params, wait)
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err)
		return
	}
	writeJSONResponse(w, status)
}

func (p *Proxy) executeCommand(ctx context.Context, car *vehicle.Vehicle, act *action.Action, params *commandParams, wait bool) (*vehicle.CommandStatus, error) {
	if act == nil {
		// Profile edits need the current profile list as a base.
		if err := car.UpdateStoredOverview(ctx); err != nil {
			return nil, err
		}
		var err error
		if act, err = car.ChargingProfileAction(params.ProfileID, params.MinimumChargeLevel); err != nil {
			return nil, err
		}
	}
	if wait {
		return car.ExecuteAndWait(ctx, act)
	}
	return car.Execute(ctx, act)
}
