package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/porsche-community/porsche-connect/pkg/account"
	"github.com/porsche-community/porsche-connect/pkg/action"
	"github.com/porsche-community/porsche-connect/pkg/cli"
	"github.com/porsche-community/porsche-connect/pkg/vehicle"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrRequiresVIN     = errors.New("command requires a VIN")
	ErrUnknownCommand  = errors.New("unrecognized command")
)

// commandWait is cleared by the -no-wait flag. When set, remote commands block until the backend
// reports a final execution state.
var commandWait = true

// commandAll is set by the -all flag. Vehicle commands then run on every vehicle on the account
// instead of a single configured VIN.
var commandAll = false

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error

type Command struct {
	help        string
	requiresVIN bool // True if the command targets a vehicle rather than the account
	refresh     bool // True if the command needs a status overview before running
	args        []Argument
	optional    []Argument
	handler     Handler
}

// configureFlags verifies that c contains all the information required to execute a command.
func configureFlags(c *cli.Config, commandName string) error {
	info, ok := commands[commandName]
	if !ok {
		return ErrUnknownCommand
	}
	c.Flags = cli.FlagCredentials | cli.FlagCache
	if info.requiresVIN {
		c.Flags |= cli.FlagVIN
	}
	return nil
}

func checkReadiness(commandName string, haveVIN bool) (*Command, error) {
	info, ok := commands[commandName]
	if !ok {
		return nil, ErrUnknownCommand
	}
	if info.requiresVIN && !haveVIN {
		return nil, ErrRequiresVIN
	}
	return info, nil
}

func execute(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	info, err := checkReadiness(args[0], car != nil || commandAll)
	if err != nil {
		return err
	}

	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		targets := []*vehicle.Vehicle{car}
		if info.requiresVIN && car == nil {
			// -all mode: run the command on every vehicle on the account.
			targets, err = acct.Vehicles(ctx)
		}
		for _, target := range targets {
			if err != nil {
				break
			}
			if len(targets) > 1 {
				fmt.Printf("%s (%s):\n", target.VIN(), target.Name())
			}
			if info.refresh {
				err = target.UpdateStoredOverview(ctx)
			}
			if err == nil {
				err = info.handler(ctx, acct, target, keywords)
			}
		}
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%*s%s\n", arg.name, maxLength-len(arg.name), " ", arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%*s%s\n", arg.name, maxLength-len(arg.name), " ", arg.help)
	}
}

func printJSON(value interface{}) error {
	out, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runAction(ctx context.Context, car *vehicle.Vehicle, act *action.Action) error {
	var status *vehicle.CommandStatus
	var err error
	if commandWait {
		status, err = car.ExecuteAndWait(ctx, act)
	} else {
		status, err = car.Execute(ctx, act)
	}
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", act.Key, status.Status)
	return nil
}

var commands = map[string]*Command{
	"list": &Command{
		help: "List vehicles on the account",
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			vehicles, err := acct.Vehicles(ctx)
			if err != nil {
				return err
			}
			for _, car := range vehicles {
				fmt.Printf("%s\t%s\t%s %s\n", car.VIN(), car.Name(), car.ModelType.Year, car.ModelName)
			}
			return nil
		},
	},
	"token": &Command{
		help: "Print a valid OAuth access token for the account",
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			token, err := acct.Token(ctx)
			if err != nil {
				return err
			}
			fmt.Println(token.AccessToken)
			return nil
		},
	},
	"capabilities": &Command{
		help:        "Print the vehicle's measurement and command fitment",
		requiresVIN: true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			capabilities, err := car.Capabilities(ctx)
			if err != nil {
				return err
			}
			return printJSON(capabilities)
		},
	},
	"storedoverview": &Command{
		help:        "Print the vehicle status last reported to the backend",
		requiresVIN: true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			if err := car.UpdateStoredOverview(ctx); err != nil {
				return err
			}
			return printJSON(car.Data())
		},
	},
	"currentoverview": &Command{
		help:        "Wake the vehicle and print its live status (slow, drains 12V battery)",
		requiresVIN: true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			if err := car.UpdateCurrentOverview(ctx); err != nil {
				return err
			}
			return printJSON(car.Data())
		},
	},
	"battery": &Command{
		help:        "Print the high-voltage battery charge level",
		requiresVIN: true,
		refresh:     true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			level, err := car.BatteryLevel()
			if err != nil {
				return err
			}
			fmt.Printf("%d%%\n", level)
			return nil
		},
	},
	"range": &Command{
		help:        "Print the remaining electric driving range in kilometers",
		requiresVIN: true,
		refresh:     true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			distance, err := car.ERange()
			if err != nil {
				return err
			}
			fmt.Printf("%d km\n", distance)
			return nil
		},
	},
	"mileage": &Command{
		help:        "Print the odometer reading in kilometers",
		requiresVIN: true,
		refresh:     true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			distance, err := car.Mileage()
			if err != nil {
				return err
			}
			fmt.Printf("%d km\n", distance)
			return nil
		},
	},
	"charging": &Command{
		help:        "Print the battery charging status",
		requiresVIN: true,
		refresh:     true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			state, err := car.ChargingState()
			if err != nil {
				return err
			}
			return printJSON(state)
		},
	},
	"charging_target": &Command{
		help:        "Print the target state of charge",
		requiresVIN: true,
		refresh:     true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			target, err := car.ChargingTarget()
			if err != nil {
				return err
			}
			fmt.Printf("%d%%\n", target)
			return nil
		},
	},
	"connected": &Command{
		help:        "Print whether the vehicle is reachable from the backend",
		requiresVIN: true,
		refresh:     true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			fmt.Println(car.Connected)
			return nil
		},
	},
	"doors_and_lids": &Command{
		help:        "Print the open/closed state of doors, lids, and windows",
		requiresVIN: true,
		refresh:     true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			states, err := car.DoorsAndLids()
			if err != nil {
				return err
			}
			var keys []string
			for key := range states {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Printf("%s\t%s\n", key, states[key])
			}
			return nil
		},
	},
	"vehicle_closed": &Command{
		help:        "Print whether every door, lid, and window is shut",
		requiresVIN: true,
		refresh:     true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			closed, err := car.Closed()
			if err != nil {
				return err
			}
			fmt.Println(closed)
			return nil
		},
	},
	"location": &Command{
		help:        "Print the vehicle's last reported GPS position",
		requiresVIN: true,
		refresh:     true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			location, err := car.Location()
			if err != nil {
				return err
			}
			fmt.Printf("(%f, %f) heading %d\n", location.Latitude, location.Longitude, location.Heading)
			return nil
		},
	},
	"tire_pressures": &Command{
		help:        "Print per-tire pressure readings in bar",
		requiresVIN: true,
		refresh:     true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			pressures, err := car.TirePressures()
			if err != nil {
				return err
			}
			var keys []string
			for key := range pressures {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				reading := pressures[key]
				fmt.Printf("%s\t%.1f bar (optimal %.1f)\n", key, reading.Actual, reading.Optimal)
			}
			return nil
		},
	},
	"tire_status": &Command{
		help:        "Print whether all tires are within tolerance of their target pressure",
		requiresVIN: true,
		refresh:     true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			ok, err := car.TirePressuresOK()
			if err != nil {
				return err
			}
			if ok {
				fmt.Println("OK")
			} else {
				fmt.Println("CHECK PRESSURE")
			}
			return nil
		},
	},
	"trip_statistics": &Command{
		help:        "Print short-term, long-term, and cyclic trip statistics",
		requiresVIN: true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			trips, err := car.FetchTripStatistics(ctx)
			if err != nil {
				return err
			}
			return printJSON(trips)
		},
	},
	"pictures": &Command{
		help:        "Print vehicle picture URLs by view",
		requiresVIN: true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			pictures, err := car.PictureLocations(ctx)
			if err != nil {
				return err
			}
			var views []string
			for view := range pictures {
				views = append(views, view)
			}
			sort.Strings(views)
			for _, view := range views {
				fmt.Printf("%s\t%s\n", view, pictures[view])
			}
			return nil
		},
	},
	"lock_vehicle": &Command{
		help:        "Lock the vehicle",
		requiresVIN: true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			return runAction(ctx, car, action.Lock())
		},
	},
	"unlock_vehicle": &Command{
		help:        "Unlock the vehicle",
		requiresVIN: true,
		args: []Argument{
			Argument{name: "PIN", help: "Porsche Connect security PIN"},
		},
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			return runAction(ctx, car, action.Unlock(args["PIN"]))
		},
	},
	"climatise_on": &Command{
		help:        "Start remote climatisation",
		requiresVIN: true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			return runAction(ctx, car, action.ClimatiseOn())
		},
	},
	"climatise_off": &Command{
		help:        "Stop remote climatisation",
		requiresVIN: true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			return runAction(ctx, car, action.ClimatiseOff())
		},
	},
	"direct_charge_on": &Command{
		help:        "Enable direct charging",
		requiresVIN: true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			return runAction(ctx, car, action.DirectChargeOn())
		},
	},
	"direct_charge_off": &Command{
		help:        "Disable direct charging",
		requiresVIN: true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			return runAction(ctx, car, action.DirectChargeOff())
		},
	},
	"flash_indicators": &Command{
		help:        "Flash the turn indicators",
		requiresVIN: true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			return runAction(ctx, car, action.FlashIndicators())
		},
	},
	"honk_and_flash": &Command{
		help:        "Honk the horn and flash the turn indicators",
		requiresVIN: true,
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			return runAction(ctx, car, action.HonkAndFlash())
		},
	},
	"chargingprofile": &Command{
		help:        "Set the minimum charge level of a charging profile",
		requiresVIN: true,
		refresh:     true,
		args: []Argument{
			Argument{name: "LEVEL", help: "Minimum charge level in percent (25-100)"},
		},
		optional: []Argument{
			Argument{name: "PROFILE_ID", help: "Profile to edit; defaults to the active profile"},
		},
		handler: func(ctx context.Context, acct *account.Account, car *vehicle.Vehicle, args map[string]string) error {
			level, err := strconv.Atoi(args["LEVEL"])
			if err != nil {
				return fmt.Errorf("%w: LEVEL must be an integer", ErrCommandLineArgs)
			}
			profileID := 0
			if value, ok := args["PROFILE_ID"]; ok {
				if profileID, err = strconv.Atoi(value); err != nil {
					return fmt.Errorf("%w: PROFILE_ID must be an integer", ErrCommandLineArgs)
				}
			}
			status, err := car.UpdateChargingProfile(ctx, profileID, level)
			if err != nil {
				return err
			}
			fmt.Printf("CHARGING_PROFILES_EDIT: %s\n", status.Status)
			return nil
		},
	},
}
