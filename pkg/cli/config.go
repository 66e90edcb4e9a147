/*
Package cli facilitates building command-line applications that talk to the Porsche Connect API.
It defines a [Config] type that can be used to register common command-line flags (using the
Golang flag package), environment variable equivalents, and the `~/.porscheconnect.cfg` config
file.

The package uses [keyring]'s platform-agnostic interface for storing sensitive values (account
passwords and OAuth tokens) in an OS-dependent credential store; values missing from every source
are prompted for interactively.

# Examples

	import flag

	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		panic(err)
	}
	config.RegisterCommandLineFlags() // Adds command-line flags for credentials, VIN, etc.
	flag.Parse()
	config.ReadFromEnvironment()      // Fills in missing fields using environment variables
	if err := config.ReadFromConfigFile(); err != nil {
		panic(err)
	}
	if err := config.LoadCredentials(); err != nil { // Prompts for email/password if needed
		panic(err)
	}

	acct, car, err := config.Connect(ctx)
	if err != nil {
		panic(err)
	}
	defer config.UpdateCachedToken(ctx)

The car is nil unless a VIN was configured. Fields are filled in priority order: command-line
flags, then environment variables, then the config file, then interactive prompts.
*/
package cli

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/99designs/keyring"
	"github.com/spf13/viper"

	"github.com/porsche-community/porsche-connect/internal/log"
	"github.com/porsche-community/porsche-connect/pkg/account"
	"github.com/porsche-community/porsche-connect/pkg/auth"
	"github.com/porsche-community/porsche-connect/pkg/cache"
	"github.com/porsche-community/porsche-connect/pkg/vehicle"
)

// Environment variable names used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvPorscheEmail        = "PORSCHE_EMAIL"
	EnvPorschePassword     = "PORSCHE_PASSWORD"
	EnvPorscheVIN          = "PORSCHE_VIN"
	EnvPorscheSessionFile  = "PORSCHE_SESSION_FILE"
	EnvPorscheConfigFile   = "PORSCHE_CONFIG_FILE"
	EnvPorscheTokenName    = "PORSCHE_TOKEN_NAME"
	EnvPorscheKeyringType  = "PORSCHE_KEYRING_TYPE"
	EnvPorscheKeyringPass  = "PORSCHE_KEYRING_PASSWORD"
	EnvPorscheKeyringPath  = "PORSCHE_KEYRING_PATH"
	EnvPorscheKeyringDebug = "PORSCHE_KEYRING_DEBUG"
)

// DefaultSessionFilename is where tokens are cached when no session file is configured.
const DefaultSessionFilename = ".session"

const configFileBasename = ".porscheconnect.cfg"

// Flag controls what options should be scanned from the command line and/or environment
// variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagVIN         Flag = 1 // Enable VIN option.
	FlagCredentials Flag = 2 // Enable email/password/keyring options.
	FlagCache       Flag = 4 // Enable session-file token caching.
	FlagAll         Flag = FlagVIN | FlagCredentials | FlagCache
)

// ErrNoCredentials indicates neither flags, environment, config file, nor prompts produced an
// email and password.
var ErrNoCredentials = errors.New("account credentials not provided")

// ErrConflictingTargets indicates both a single VIN and -all were configured.
var ErrConflictingTargets = errors.New("-vin and -all are mutually exclusive")

// Config fields determine how a client authenticates to the Porsche Connect backend.
type Config struct {
	Flags            Flag   // Controls which set of environment variables/CLI flags to use.
	Email            string
	Password         string
	VIN              string
	All              bool   // Target every vehicle on the account instead of a single VIN.
	SessionFilename  string
	ConfigFilename   string
	KeyringTokenName string // Name for OAuth token entries in the system keyring
	Backend          keyring.Config
	BackendType      backendType
	Debug            bool // Enable keyring debug messages

	keyringPassword *string
	tokens          *cache.TokenCache
	acct            *account.Account
}

func NewConfig(flags Flag) (*Config, error) {
	c := Config{
		Flags: flags,
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
	}
	c.BackendType = backendType{&c}
	c.Backend.KeychainPasswordFunc = c.getPassword
	c.Backend.FilePasswordFunc = c.getPassword

	return &c, nil
}

func (c *Config) RegisterCommandLineFlags() {
	flag.StringVar(&c.ConfigFilename, "config-file", "", "Load settings from `file`. Defaults to $PORSCHE_CONFIG_FILE, then ~/"+configFileBasename+".")
	if c.Flags.isSet(FlagVIN) {
		flag.StringVar(&c.VIN, "vin", "", "Vehicle Identification Number. Defaults to $PORSCHE_VIN.")
		flag.BoolVar(&c.All, "all", false, "Run the command on every vehicle on the account. Mutually exclusive with -vin.")
	}
	if c.Flags.isSet(FlagCache) {
		flag.StringVar(&c.SessionFilename, "session-file", "", "Cache OAuth tokens in `file`. Defaults to $PORSCHE_SESSION_FILE, then "+DefaultSessionFilename+".")
	}
	if c.Flags.isSet(FlagCredentials) {
		flag.StringVar(&c.Email, "email", "", "Porsche Connect account email. Defaults to $PORSCHE_EMAIL.")
		flag.StringVar(&c.Password, "password", "", "Porsche Connect account password. Prefer the keyring or an interactive prompt over this flag.")
		var names []string
		for _, name := range keyring.AvailableBackends() {
			names = append(names, string(name))
		}
		sort.Strings(names)
		flag.Var(&c.BackendType, "keyring-type", "Keyring `type` ("+strings.Join(names, "|")+"). Defaults to $PORSCHE_KEYRING_TYPE.")
		flag.StringVar(&c.Backend.FileDir, "keyring-file-dir", keyringDirectory, "keyring `directory` for file-backed keyring types")
		flag.BoolVar(&c.Debug, "keyring-debug", false, "Enable keyring debug logging")
	}
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() (or other initialization method) will prevent
// the environment from overriding explicit command-line parameters.
func (c *Config) ReadFromEnvironment() {
	if c.ConfigFilename == "" {
		c.ConfigFilename = os.Getenv(EnvPorscheConfigFile)
	}
	if c.Flags.isSet(FlagVIN) && c.VIN == "" {
		c.VIN = os.Getenv(EnvPorscheVIN)
		log.Debug("Set VIN to '%s'", c.VIN)
	}
	if c.Flags.isSet(FlagCache) && c.SessionFilename == "" {
		c.SessionFilename = os.Getenv(EnvPorscheSessionFile)
		log.Debug("Set session file to '%s'", c.SessionFilename)
	}
	if c.Flags.isSet(FlagCredentials) {
		if c.Email == "" {
			c.Email = os.Getenv(EnvPorscheEmail)
			log.Debug("Set email to '%s'", c.Email)
		}
		if c.Password == "" {
			c.Password = os.Getenv(EnvPorschePassword)
			if c.Password != "" {
				log.Debug("Set password from environment")
			}
		}
		if c.KeyringTokenName == "" {
			c.KeyringTokenName = os.Getenv(EnvPorscheTokenName)
		}
		if c.BackendType.String() == string(keyring.InvalidBackend) {
			if err := c.BackendType.Set(os.Getenv(EnvPorscheKeyringType)); err == nil {
				log.Debug("Set keyring type to '%s'", c.BackendType)
			}
		}
		if c.keyringPassword == nil {
			password := os.Getenv(EnvPorscheKeyringPass)
			c.keyringPassword = &password
		}
		if c.Backend.FileDir == "" {
			c.Backend.FileDir = os.Getenv(EnvPorscheKeyringPath)
		}
		if !c.Debug {
			_, c.Debug = os.LookupEnv(EnvPorscheKeyringDebug)
		}
	}
}

// ReadFromConfigFile fills in missing fields from an INI config file:
//
//	[porsche]
//	email = driver@example.com
//	password = hunter2
//	session_file = /home/driver/.session
//
// The file is c.ConfigFilename if set, otherwise ./.porscheconnect.cfg, otherwise
// ~/.porscheconnect.cfg. A missing file is not an error; a malformed one is.
func (c *Config) ReadFromConfigFile() error {
	filename := c.ConfigFilename
	if filename == "" {
		filename = findConfigFile()
	}
	if filename == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(filename)
	v.SetConfigType("ini")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) && c.ConfigFilename == "" {
			return nil
		}
		return fmt.Errorf("could not read config file %s: %w", filename, err)
	}
	log.Debug("Using config file %s", v.ConfigFileUsed())

	if c.Flags.isSet(FlagCredentials) {
		if c.Email == "" {
			c.Email = v.GetString("porsche.email")
		}
		if c.Password == "" {
			c.Password = v.GetString("porsche.password")
		}
	}
	if c.Flags.isSet(FlagCache) && c.SessionFilename == "" {
		c.SessionFilename = v.GetString("porsche.session_file")
	}
	return nil
}

func findConfigFile() string {
	if _, err := os.Stat(configFileBasename); err == nil {
		return configFileBasename
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	filename := filepath.Join(home, configFileBasename)
	if _, err := os.Stat(filename); err == nil {
		return filename
	}
	return ""
}

// LoadCredentials ensures an email and password are available, trying the system keyring for the
// password and prompting interactively as a last resort. Call this method before
// [Config.Connect] to prevent interactive prompts from counting against timeouts.
func (c *Config) LoadCredentials() error {
	if !c.Flags.isSet(FlagCredentials) {
		return nil
	}
	if c.Email == "" {
		fmt.Fprint(os.Stderr, "Porsche Connect email: ")
		email, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil {
			return fmt.Errorf("%w: %s", ErrNoCredentials, err)
		}
		c.Email = strings.TrimSpace(email)
		if c.Email == "" {
			return ErrNoCredentials
		}
	}
	if c.Password == "" {
		if password, err := c.LoadPasswordFromKeyring(c.Email); err == nil {
			log.Debug("Loaded password from keyring")
			c.Password = password
		}
	}
	if c.Password == "" {
		password, err := c.getPassword("Porsche Connect password")
		if err != nil {
			return fmt.Errorf("%w: %s", ErrNoCredentials, err)
		}
		c.Password = password
	}
	if c.Password == "" {
		return ErrNoCredentials
	}
	return nil
}

// Credentials returns the configured account credentials.
func (c *Config) Credentials() auth.Credentials {
	return auth.Credentials{Email: c.Email, Password: c.Password}
}

func (c *Config) loadCache() error {
	if c.tokens != nil {
		return nil
	}
	if !c.Flags.isSet(FlagCache) {
		c.tokens = cache.New(0)
		return nil
	}
	if c.SessionFilename == "" {
		c.SessionFilename = DefaultSessionFilename
	}
	log.Debug("Loading session cache from %s...", c.SessionFilename)
	var err error
	c.tokens, err = cache.ImportFromFile(c.SessionFilename)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load session cache: %s", err)
		}
		// Create a new cache if one couldn't be loaded from the file
		c.tokens = cache.New(0)
	}
	return nil
}

// Account logs into and returns the configured Porsche Connect account. The login is lazy: no
// requests are sent until the first API call.
func (c *Config) Account() (*account.Account, error) {
	if c.acct != nil {
		return c.acct, nil
	}
	if c.Email == "" || c.Password == "" {
		return nil, ErrNoCredentials
	}
	if err := c.loadCache(); err != nil {
		return nil, err
	}
	token, _ := c.tokens.GetToken(c.Email)
	c.acct = account.NewWithToken(c.Credentials(), token, "")
	return c.acct, nil
}

// Connect logs in to the configured Porsche Connect account, and, if c includes a VIN, also
// returns the corresponding vehicle handle. With All set, no handle is returned; callers iterate
// the account's vehicle list instead.
func (c *Config) Connect(ctx context.Context) (acct *account.Account, car *vehicle.Vehicle, err error) {
	if c.All && c.VIN != "" {
		return nil, nil, ErrConflictingTargets
	}
	acct, err = c.Account()
	if err != nil {
		return nil, nil, err
	}
	// Force the login now so callers get credential errors here rather than on an arbitrary
	// later call.
	if _, err := acct.Token(ctx); err != nil {
		return nil, nil, err
	}
	if c.Flags.isSet(FlagVIN) && c.VIN != "" {
		car = acct.Vehicle(c.VIN)
	}
	return acct, car, nil
}

// UpdateCachedToken writes the account's current token back to the session file.
//
// If no session file is configured or no account was connected, then this method does nothing.
func (c *Config) UpdateCachedToken(ctx context.Context) {
	if !c.Flags.isSet(FlagCache) || c.acct == nil || c.tokens == nil {
		return
	}
	token, err := c.acct.Token(ctx)
	if err != nil {
		log.Error("Error fetching token for cache update: %s", err)
		return
	}
	c.tokens.Update(c.Email, token)
	if err := c.tokens.ExportToFile(c.SessionFilename); err != nil {
		log.Error("Error updating session cache: %s", err)
	}
}
