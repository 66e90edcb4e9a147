package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/porsche-community/porsche-connect/internal/log"
	"github.com/porsche-community/porsche-connect/pkg/cli"
	"github.com/porsche-community/porsche-connect/pkg/proxy"
)

const defaultPort = 8080

const (
	EnvTlsCert = "PORSCHE_HTTP_PROXY_TLS_CERT"
	EnvTlsKey  = "PORSCHE_HTTP_PROXY_TLS_KEY"
	EnvHost    = "PORSCHE_HTTP_PROXY_HOST"
	EnvPort    = "PORSCHE_HTTP_PROXY_PORT"
	EnvTimeout = "PORSCHE_HTTP_PROXY_TIMEOUT"
	EnvVerbose = "PORSCHE_VERBOSE"
)

const nonLocalhostWarning = `
Do not listen on a network interface without adding client authentication. Unauthorized clients
can send commands to your vehicles and may create excessive traffic from your IP address to
Porsche's servers, which Porsche may respond to by rate limiting or locking your account.`

type HttpProxyConfig struct {
	keyFilename  string
	certFilename string
	verbose      bool
	host         string
	port         int
	timeout      time.Duration
}

var (
	httpConfig = &HttpProxyConfig{}
)

func init() {
	flag.StringVar(&httpConfig.certFilename, "cert", "", "TLS certificate chain `file` with concatenated server, intermediate CA, and root CA certificates")
	flag.StringVar(&httpConfig.keyFilename, "tls-key", "", "Server TLS private key `file`")
	flag.BoolVar(&httpConfig.verbose, "verbose", false, "Enable verbose logging")
	flag.StringVar(&httpConfig.host, "host", "localhost", "Proxy server `hostname`")
	flag.IntVar(&httpConfig.port, "port", defaultPort, "`Port` to listen on")
	flag.DurationVar(&httpConfig.timeout, "timeout", proxy.DefaultTimeout, "Timeout interval when sending commands")
}

func Usage() {
	out := flag.CommandLine.Output()
	fmt.Fprintf(out, "Usage: %s [OPTION...]\n", os.Args[0])
	fmt.Fprintf(out, "\nA server that exposes a REST API for querying and commanding Porsche vehicles")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, nonLocalhostWarning)
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	flag.PrintDefaults()
}

func main() {
	config, err := cli.NewConfig(cli.FlagCredentials | cli.FlagCache)

	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load credential configuration: %s\n", err)
		os.Exit(1)
	}

	defer func() {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
	}()

	flag.Usage = Usage
	config.RegisterCommandLineFlags()
	flag.Parse()
	if err = readFromEnvironment(); err != nil {
		return
	}
	config.ReadFromEnvironment()
	if err = config.ReadFromConfigFile(); err != nil {
		return
	}

	if httpConfig.verbose {
		log.SetLevel(log.LevelDebug)
	}

	if httpConfig.host != "localhost" {
		fmt.Fprintln(os.Stderr, nonLocalhostWarning)
	}

	if err = config.LoadCredentials(); err != nil {
		return
	}

	// Log in before accepting requests so credential problems surface at startup.
	ctx, cancel := context.WithTimeout(context.Background(), httpConfig.timeout)
	acct, _, connectErr := config.Connect(ctx)
	cancel()
	if connectErr != nil {
		err = connectErr
		return
	}
	config.UpdateCachedToken(context.Background())

	log.Debug("Creating proxy")
	p := proxy.New(acct)
	p.Timeout = httpConfig.timeout
	addr := fmt.Sprintf("%s:%d", httpConfig.host, httpConfig.port)
	log.Info("Listening on %s", addr)

	// To add more application logic, such as alternative client authentication, create a
	// http.HandlerFunc implementation that performs your business logic and then, if the request
	// is authorized, invokes p.ServeHTTP, and pass it to the listen call below in place of p.
	if httpConfig.certFilename != "" || httpConfig.keyFilename != "" {
		err = http.ListenAndServeTLS(addr, httpConfig.certFilename, httpConfig.keyFilename, p)
	} else {
		err = http.ListenAndServe(addr, p)
	}
	log.Error("Server stopped: %s", err)
}

// readFromEnvironment applies configuration from environment variables.
// Values are not overwritten.
func readFromEnvironment() error {
	if httpConfig.certFilename == "" {
		httpConfig.certFilename = os.Getenv(EnvTlsCert)
	}

	if httpConfig.keyFilename == "" {
		httpConfig.keyFilename = os.Getenv(EnvTlsKey)
	}

	if httpConfig.host == "localhost" {
		host, ok := os.LookupEnv(EnvHost)
		if ok {
			httpConfig.host = host
		}
	}

	if !httpConfig.verbose {
		if verbose, ok := os.LookupEnv(EnvVerbose); ok {
			httpConfig.verbose = verbose != "false" && verbose != "0"
		}
	}

	var err error
	if httpConfig.port == defaultPort {
		if port, ok := os.LookupEnv(EnvPort); ok {
			httpConfig.port, err = strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("invalid port: %s", port)
			}
		}
	}

	if httpConfig.timeout == proxy.DefaultTimeout {
		if timeoutEnv, ok := os.LookupEnv(EnvTimeout); ok {
			httpConfig.timeout, err = time.ParseDuration(timeoutEnv)
			if err != nil {
				return fmt.Errorf("invalid timeout: %s", timeoutEnv)
			}
		}
	}

	return nil
}
