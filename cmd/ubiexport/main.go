// ubiexport pulls Ubidots sensor devices of one type, reshapes their
// variables into one row per device and writes the result as CSV.
//
// Commands:
//
//	ubiexport export  [-config path] [-type T]   write one CSV export (default)
//	ubiexport serve   [-config path]             run the session HTTP API
//	ubiexport history [-config path] [-type T] [-limit N]
//	ubiexport tokens  [-config path] [-type T]   check per-device tokens
//	ubiexport values  [-config path] -device L -var L [-limit N]
//	ubiexport version
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/awqp/ubidots-export/internal/infrastructure/config"
	"github.com/awqp/ubidots-export/internal/infrastructure/logging"
	"github.com/awqp/ubidots-export/internal/ubidots"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	configPathEnv     = "UBIEXPORT_CONFIG"
)

func main() {
	// Cancel on Ctrl+C and SIGTERM so in-flight requests and the exit delay
	// stop promptly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run dispatches to a command. It is separated from main for testability.
func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd := "export"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	if cmd == "version" {
		fmt.Fprintf(stdout, "ubiexport %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stdout)
	configPath := fs.String("config", getConfigPath(), "configuration file")
	deviceType := fs.String("type", "", "device type tag (default from config)")
	limit := fs.Int("limit", 20, "number of history runs or values to show")
	deviceLabel := fs.String("device", "", "values: device label")
	variableLabel := fs.String("var", "", "values: variable label")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath, stdin, stdout)
	if err != nil {
		return err
	}
	if *deviceType == "" {
		*deviceType = a.cfg.Ubidots.DeviceType
	}

	switch cmd {
	case "export":
		return a.runExport(ctx, *deviceType)
	case "serve":
		return a.runServe(ctx)
	case "history":
		return a.runHistory(ctx, *deviceType, *limit)
	case "tokens":
		return a.runTokens(ctx, *deviceType)
	case "values":
		return a.runValues(ctx, *deviceLabel, *variableLabel, *limit)
	default:
		return fmt.Errorf("unknown command %q (want export, serve, history, tokens, values or version)", cmd)
	}
}

// getConfigPath returns the configuration file path.
// Uses UBIEXPORT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configPathEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// app holds what every command needs.
type app struct {
	cfg *config.Config
	log *logging.Logger
	in  *bufio.Reader
	out io.Writer
}

func newApp(configPath string, stdin io.Reader, stdout io.Writer) (*app, error) {
	log := logging.Default()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log.Debug("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	return &app{
		cfg: cfg,
		log: log,
		in:  bufio.NewReader(stdin),
		out: stdout,
	}, nil
}

// token returns the configured token or prompts for one.
func (a *app) token() (string, error) {
	if a.cfg.Ubidots.Token != "" {
		return a.cfg.Ubidots.Token, nil
	}

	fmt.Fprint(a.out, "Ubidots token: ")
	line, err := a.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading token: %w", err)
	}
	tok := strings.TrimSpace(line)
	if tok == "" {
		return "", ubidots.ErrMissingToken
	}
	return tok, nil
}

// newClient builds an upstream client for token.
func (a *app) newClient(token string) (*ubidots.Client, error) {
	opts := ubidots.OptionsFromConfig(a.cfg.Ubidots)
	opts.Token = token
	opts.Logger = a.log
	return ubidots.New(opts)
}

// connect resolves a token, builds a client and checks the token upstream.
func (a *app) connect(ctx context.Context) (*ubidots.Client, error) {
	tok, err := a.token()
	if err != nil {
		return nil, err
	}
	client, err := a.newClient(tok)
	if err != nil {
		return nil, err
	}
	if err := client.ValidateToken(ctx); err != nil {
		if errors.Is(err, ubidots.ErrUnauthorized) {
			return nil, fmt.Errorf("token %s rejected: %w", logging.Redact(tok), err)
		}
		return nil, fmt.Errorf("validating token: %w", err)
	}
	a.log.Info("token accepted", "token", logging.Redact(tok))
	return client, nil
}
