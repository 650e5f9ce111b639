// Command avrctl is a console for the home theater receiver.
//
// It drives the receiver directly with the same controller the catspaw
// daemon uses, so it works when the daemon is stopped:
//
//	avrctl --host 192.168.1.20            interactive console
//	avrctl --host 192.168.1.20 -e "vol up 3"
//	avrctl --config configs/config.yaml -e refresh
//	avrctl token --subject kitchen-panel  mint an API token
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/Dlizzz/catspaw/internal/api"
	"github.com/Dlizzz/catspaw/internal/avr"
	"github.com/Dlizzz/catspaw/internal/infrastructure/config"
	"github.com/Dlizzz/catspaw/internal/infrastructure/logging"
)

var version = "dev"

const prompt = "avr> "

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches to the console or to a subcommand and returns the exit
// status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "token" {
		return runToken(args[1:], stdout, stderr)
	}
	return runConsole(ctx, args, stdout, stderr)
}

func runConsole(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("avrctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "read the avr section of a catspaw config file")
	host := fs.String("host", "", "receiver host or address")
	port := fs.Int("port", 0, "receiver port (tcp transport)")
	transport := fs.String("transport", "", `"tcp" or "http"`)
	timeout := fs.Duration("timeout", 0, "bound for one command")
	execLine := fs.StringP("exec", "e", "", "run one command and exit")
	verbose := fs.BoolP("verbose", "v", false, "log protocol traffic to stderr")
	showVersion := fs.Bool("version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if *showVersion {
		fmt.Fprintln(stdout, "avrctl", version)
		return 0
	}

	cfg := config.Default().AVR
	if *configPath != "" {
		full, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		cfg = full.AVR
	}
	if fs.Changed("host") {
		cfg.Host = *host
	}
	if fs.Changed("port") {
		cfg.Port = *port
	}
	if fs.Changed("transport") {
		cfg.Transport = strings.ToLower(*transport)
	}
	if fs.Changed("timeout") {
		cfg.CommandTimeout = *timeout
	}
	if cfg.Host == "" {
		fmt.Fprintln(stderr, "Error: --host or --config is required")
		return 2
	}

	level := "warn"
	if *verbose {
		level = "debug"
	}
	log := logging.New(config.LoggingConfig{Level: level, Format: "text", Output: "stderr"}, version)

	tr, err := avr.NewTransport(cfg, nil, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	controller := avr.NewController(tr, avr.ControllerOptions{
		CommandTimeout: cfg.CommandTimeout,
		Logger:         log,
	})
	defer controller.Close() //nolint:errcheck // always nil

	ctx = avr.WithSource(ctx, "avrctl")

	if *execLine != "" {
		out, execErr := executeInterruptible(ctx, controller, *execLine)
		if execErr != nil && !errors.Is(execErr, errQuit) {
			fmt.Fprintf(stderr, "Error: %v\n", execErr)
			return 2
		}
		if out != "" {
			fmt.Fprintln(stdout, out)
		}
		if strings.HasPrefix(out, "failed") {
			return 1
		}
		return 0
	}

	editor := newLineEditor()
	defer editor.close()
	if editor.interactive() {
		fmt.Fprintf(stdout, "connected to %s (%s), type help for commands\n", cfg.Host, cfg.Transport)
	}
	if err := console(ctx, controller, editor, stdout, stderr); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// console reads lines until quit or end of input. Usage errors are
// reported and the loop goes on.
func console(ctx context.Context, r receiver, editor *lineEditor, stdout, stderr io.Writer) error {
	for {
		line, err := editor.readLine(prompt)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		out, err := executeInterruptible(ctx, r, line)
		switch {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Fprintln(stderr, err)
		case out != "":
			fmt.Fprintln(stdout, out)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// executeInterruptible runs one line; Ctrl-C cancels the command in
// flight without leaving the console.
func executeInterruptible(ctx context.Context, r receiver, line string) (string, error) {
	cmdCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	return execute(cmdCtx, r, line)
}

func runToken(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("avrctl token", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "read security.jwt.secret from a catspaw config file")
	secret := fs.String("secret", "", "signing secret (default: $CATSPAW_JWT_SECRET)")
	subject := fs.String("subject", "avrctl", "token subject")
	ttl := fs.Duration("ttl", 0, "token lifetime (default: security.jwt.access_token_ttl, else 24h)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	key, lifetime := *secret, *ttl
	if key == "" {
		key = os.Getenv("CATSPAW_JWT_SECRET")
	}
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		if key == "" {
			key = cfg.Security.JWT.Secret
		}
		if lifetime == 0 && cfg.Security.JWT.AccessTokenTTL > 0 {
			lifetime = time.Duration(cfg.Security.JWT.AccessTokenTTL) * time.Minute
		}
	}

	token, err := api.IssueToken(key, *subject, lifetime)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, token)
	return 0
}
