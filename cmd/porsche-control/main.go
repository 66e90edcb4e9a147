package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"

	"github.com/porsche-community/porsche-connect/internal/log"
	"github.com/porsche-community/porsche-connect/pkg/account"
	"github.com/porsche-community/porsche-connect/pkg/auth"
	"github.com/porsche-community/porsche-connect/pkg/cli"
	"github.com/porsche-community/porsche-connect/pkg/vehicle"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * Commands that target a vehicle require a VIN.
 * Account-management commands only require credentials.`

func Usage() {
	fmt.Printf("Usage: %s [OPTION...] COMMAND [ARG...]\n", os.Args[0])
	fmt.Printf("\nRun %s help COMMAND for more information. Valid COMMANDs are listed below.", os.Args[0])
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	flag.PrintDefaults()
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	var labels []string
	for command := range commands {
		labels = append(labels, command)
		if len(command) > maxLength {
			maxLength = len(command)
		}
	}
	sort.Strings(labels)
	for _, command := range labels {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

func runCommand(acct *account.Account, car *vehicle.Vehicle, args []string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := execute(ctx, acct, car, args); err != nil {
		var httpErr *account.HttpError
		if errors.As(err, &httpErr) && httpErr.MayHaveSucceeded() {
			writeErr("Couldn't verify success: %s", err)
		} else if errors.Is(err, auth.ErrWrongCredentials) {
			writeErr("Login failed: check your email address and password")
		} else {
			writeErr("Failed to execute command: %s", err)
		}
		return 1
	}
	return 0
}

func runInteractiveShell(acct *account.Account, car *vehicle.Vehicle, timeout time.Duration) int {
	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Printf("> "); scanner.Scan(); fmt.Printf("> ") {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		runCommand(acct, car, args, timeout)
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return 0
}

// solveCaptcha writes the server's captcha challenge to disk and reads the solution from in.
func solveCaptcha(in io.Reader, captchaErr *auth.CaptchaError) (*auth.Captcha, error) {
	const captchaFilename = "captcha.svg"
	if err := os.WriteFile(captchaFilename, []byte(captchaErr.Captcha), 0644); err != nil {
		return nil, fmt.Errorf("login requires solving a captcha, but writing %s failed: %w", captchaFilename, err)
	}
	fmt.Fprintf(os.Stderr, "Login requires solving a captcha. Open %s and enter the solution.\n", captchaFilename)
	fmt.Fprint(os.Stderr, "Captcha: ")
	solution, err := bufio.NewReader(in).ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("error reading captcha solution: %w", err)
	}
	return &auth.Captcha{Code: strings.TrimSpace(solution), State: captchaErr.State}, nil
}

// retryWithCaptcha prompts for the captcha solution and retries the login. The retry timeout
// starts only after the solution is entered; humans answer captchas slower than login timeouts.
// The account's identity-server session survives between attempts, so the server accepts the
// solution without restarting the flow.
func retryWithCaptcha(config *cli.Config, captchaErr *auth.CaptchaError, timeout time.Duration) (*account.Account, *vehicle.Vehicle, error) {
	captcha, err := solveCaptcha(os.Stdin, captchaErr)
	if err != nil {
		return nil, nil, err
	}
	acct, err := config.Account()
	if err != nil {
		return nil, nil, err
	}
	acct.SetCaptcha(captcha)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return config.Connect(ctx)
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		debug          bool
		noWait         bool
		commandTimeout time.Duration
		connTimeout    time.Duration
	)
	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load credential configuration: %s\n", err)
		os.Exit(1)
	}
	flag.Usage = Usage
	flag.BoolVar(&debug, "debug", false, "Enable verbose debugging messages")
	flag.BoolVar(&noWait, "no-wait", false, "Do not wait for remote commands to reach a final state")
	flag.DurationVar(&commandTimeout, "command-timeout", 2*time.Minute, "Set timeout for commands sent to the vehicle.")
	flag.DurationVar(&connTimeout, "connect-timeout", 90*time.Second, "Set timeout for logging in to the account.")

	config.RegisterCommandLineFlags()
	flag.Parse()
	commandWait = !noWait
	commandAll = config.All
	if !debug {
		if debugEnv, ok := os.LookupEnv("PORSCHE_VERBOSE"); ok {
			debug = debugEnv != "false" && debugEnv != "0"
		}
	}
	if debug {
		log.SetLevel(log.LevelDebug)
	}
	config.ReadFromEnvironment()
	if err := config.ReadFromConfigFile(); err != nil {
		writeErr("Error reading config file: %s", err)
		return
	}

	args := flag.Args()
	if len(args) > 0 {
		if args[0] == "help" {
			if len(args) == 1 {
				Usage()
				return
			}
			info, ok := commands[args[1]]
			if !ok {
				writeErr("Unrecognized command: %s", args[1])
				return
			}
			info.Usage(args[1])
			status = 0
			return
		}
		if err := configureFlags(config, args[0]); err != nil {
			writeErr("Error: %s", err)
			return
		}
	}

	if err := config.LoadCredentials(); err != nil {
		writeErr("Error loading credentials: %s", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
	defer cancel()

	acct, car, err := config.Connect(ctx)
	if err != nil {
		var captchaErr *auth.CaptchaError
		if errors.As(err, &captchaErr) {
			acct, car, err = retryWithCaptcha(config, captchaErr, connTimeout)
		}
	}
	if err != nil {
		writeErr("Error: %s", err)
		return
	}
	defer config.UpdateCachedToken(context.Background())

	if flag.NArg() > 0 {
		status = runCommand(acct, car, flag.Args(), commandTimeout)
	} else {
		status = runInteractiveShell(acct, car, commandTimeout)
	}
}
