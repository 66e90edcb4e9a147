package main

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/porsche-community/porsche-connect/pkg/account"
	"github.com/porsche-community/porsche-connect/pkg/auth"
	"github.com/porsche-community/porsche-connect/pkg/cli"
)

func TestCheckReadiness(t *testing.T) {
	type params struct {
		command string
		haveVIN bool
		err     error
	}
	testCases := []params{
		{command: "list", haveVIN: false},
		{command: "list", haveVIN: true},
		{command: "token", haveVIN: false},
		{command: "battery", haveVIN: true},
		{command: "battery", haveVIN: false, err: ErrRequiresVIN},
		{command: "unlock_vehicle", haveVIN: false, err: ErrRequiresVIN},
		{command: "teleport", haveVIN: true, err: ErrUnknownCommand},
	}
	for _, test := range testCases {
		_, err := checkReadiness(test.command, test.haveVIN)
		if !errors.Is(err, test.err) {
			t.Errorf("expected '%s' (haveVIN=%t) to result in error %v, but got %v", test.command, test.haveVIN, test.err, err)
		}
	}
}

func TestConfigureFlags(t *testing.T) {
	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		t.Fatal(err)
	}

	if err := configureFlags(config, "battery"); err != nil {
		t.Fatal(err)
	}
	if config.Flags&cli.FlagVIN == 0 {
		t.Error("vehicle command did not request a VIN")
	}

	if err := configureFlags(config, "list"); err != nil {
		t.Fatal(err)
	}
	if config.Flags&cli.FlagVIN != 0 {
		t.Error("account command requested a VIN")
	}

	if err := configureFlags(config, "teleport"); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestExecuteArgumentCounts(t *testing.T) {
	// Command handlers must not run when the argument count is wrong, so a nil account and
	// vehicle are safe here.
	err := execute(context.Background(), nil, nil, []string{"token", "extra"})
	if !errors.Is(err, ErrCommandLineArgs) {
		t.Errorf("expected ErrCommandLineArgs, got %v", err)
	}

	err = execute(context.Background(), nil, nil, []string{})
	if err == nil {
		t.Error("expected an error for a missing command")
	}
}

func TestExecuteAllVehicles(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()
	defer func(all bool) { commandAll = all }(commandAll)
	commandAll = true

	const vehicleListJSON = `[
		{"vin": "WP0ZZZ00000000001", "modelName": "Taycan", "modelType": {"engine": "BEV"}},
		{"vin": "WP0ZZZ00000000002", "modelName": "Macan", "modelType": {"engine": "BEV"}}
	]`
	const overviewJSON = `{
		"measurements": [
			{"key": "BATTERY_LEVEL", "status": {"isEnabled": true}, "value": {"percent": 80}}
		]
	}`
	httpmock.RegisterResponder("GET", "https://api.ppa.porsche.com/app/connect/v1/vehicles",
		httpmock.NewStringResponder(http.StatusOK, vehicleListJSON))
	const statusPattern = `GET =~^https://api\.ppa\.porsche\.com/app/connect/v1/vehicles/WP0ZZZ`
	httpmock.RegisterResponder("GET", `=~^https://api\.ppa\.porsche\.com/app/connect/v1/vehicles/WP0ZZZ`,
		httpmock.NewStringResponder(http.StatusOK, overviewJSON))

	token := &auth.Token{AccessToken: "at", ExpiresAt: time.Now().Add(time.Hour).Unix()}
	acct := account.NewWithToken(auth.Credentials{Email: "driver@example.com"}, token, "cli-test/1.0")

	if err := execute(context.Background(), acct, nil, []string{"battery"}); err != nil {
		t.Fatal(err)
	}
	if calls := httpmock.GetCallCountInfo()[statusPattern]; calls != 2 {
		t.Errorf("expected one status fetch per vehicle, got %d", calls)
	}
}

func TestExecuteWithoutVINOrAll(t *testing.T) {
	err := execute(context.Background(), nil, nil, []string{"battery"})
	if !errors.Is(err, ErrRequiresVIN) {
		t.Errorf("expected ErrRequiresVIN, got %v", err)
	}
}

func TestCommandHelpText(t *testing.T) {
	for name, info := range commands {
		if info.help == "" {
			t.Errorf("command %s has no help text", name)
		}
		if info.handler == nil {
			t.Errorf("command %s has no handler", name)
		}
		for _, arg := range append(append([]Argument{}, info.args...), info.optional...) {
			if arg.name == "" || arg.help == "" {
				t.Errorf("command %s has an undocumented argument", name)
			}
		}
	}
}
