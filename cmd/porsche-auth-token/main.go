// Utility for stashing OAuth tokens in the system keyring

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/porsche-community/porsche-connect/pkg/auth"
	"github.com/porsche-community/porsche-connect/pkg/cli"
)

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "usage: %s [-token-name token_name] [file]\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Reads an OAuth token (JSON) from stdin or file and saves it under token_name in the")
	fmt.Fprintf(w, "system keyring. The token_name defaults to $%s.\n", cli.EnvPorscheTokenName)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "With -print, loads the named token from the keyring and writes it to stdout instead.")
}

func main() {
	returnCode := 1
	defer func() {
		os.Exit(returnCode)
	}()

	config, err := cli.NewConfig(cli.FlagCredentials)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load credential configuration: %s\n", err)
		return
	}

	var printToken bool
	flag.StringVar(&config.KeyringTokenName, "token-name", "", "Name to use for keyring entry")
	flag.BoolVar(&printToken, "print", false, "Print the named token instead of storing one")
	flag.Usage = usage
	flag.Parse()
	config.ReadFromEnvironment()

	if config.KeyringTokenName == "" {
		fmt.Fprintf(os.Stderr, "Must provide system keyring name using -token-name or $%s\n", cli.EnvPorscheTokenName)
		return
	}

	if printToken {
		token, err := config.LoadTokenFromKeyring()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading token from keyring: %s\n", err)
			return
		}
		if err := json.NewEncoder(os.Stdout).Encode(token); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing token: %s\n", err)
			return
		}
		returnCode = 0
		return
	}

	var data []byte
	switch flag.NArg() {
	case 0:
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading token from stdin: %s\n", err)
			return
		}
	case 1:
		data, err = os.ReadFile(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading token from file: %s\n", err)
			return
		}
	default:
		fmt.Fprintln(os.Stderr, "Too many command-line arguments")
		return
	}

	var token auth.Token
	if err := json.Unmarshal(data, &token); err != nil {
		fmt.Fprintf(os.Stderr, "Malformed token: %s\n", err)
		return
	}
	if token.AccessToken == "" {
		fmt.Fprintln(os.Stderr, "Malformed token: missing access_token")
		return
	}

	if err := config.SaveTokenToKeyring(&token); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving token to keyring: %s\n", err)
		return
	}

	returnCode = 0
}
