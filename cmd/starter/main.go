package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bhandras/starter/internal/api"
	"github.com/bhandras/starter/internal/app"
	"github.com/bhandras/starter/internal/config"
	"github.com/bhandras/starter/internal/console"
	"github.com/bhandras/starter/internal/logger"
)

const version = "starter v0.1.0"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run(argv []string, stdout, stderr io.Writer) error {
	var overrides config.Overrides
	args, err := parseFlags(&overrides, argv)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		printUsage(stdout)
		return nil
	}

	switch args[0] {
	case "help", "--help", "-h":
		printUsage(stdout)
		return nil
	case "version", "--version", "-v":
		fmt.Fprintln(stdout, version)
		return nil
	case "presets":
		for _, p := range console.Presets() {
			fmt.Fprintf(stdout, "%-18s %-6s %s\n", p.Name, p.Input.Method, p.Input.Address)
			if p.Input.Body != "" {
				fmt.Fprintf(stdout, "%-18s body   %s\n", "", p.Input.Body)
			}
		}
		return nil
	}

	cfg, err := config.Load(overrides)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if args[0] == "serve" {
		return serveCommand(ctx, cfg)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	switch args[0] {
	case "call":
		return callCommand(ctx, a, args[1:], stdout, stderr)
	case "login":
		return loginCommand(ctx, a, args[1:], stdout)
	case "me":
		if _, err := a.Account.EnsureAccessToken(ctx); err != nil {
			return fmt.Errorf("not signed in; run `starter login` first: %w", err)
		}
		identity, err := a.Account.CurrentUser(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, identity.Email)
		return nil
	case "refresh":
		if _, err := a.Account.Refresh(ctx); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Access token refreshed.")
		return nil
	case "logout":
		a.Account.Logout(ctx)
		fmt.Fprintln(stdout, "Signed out.")
		return nil
	case "external":
		url := console.Presets()[0].Input.Address
		if len(args) > 1 {
			url = args[1]
		}
		resp, err := a.Account.FetchExternal(ctx, url)
		if err != nil {
			return err
		}
		fmt.Fprint(stdout, console.Format(console.Result{
			Method:  "GET",
			Address: url,
			Data:    strings.TrimSpace(string(resp.Body)),
		}))
		return nil
	}

	printUsage(stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

func parseFlags(overrides *config.Overrides, argv []string) ([]string, error) {
	fs := flag.NewFlagSet("starter", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	baseURL := fs.String("base-url", "", "API base URL for relative addresses")
	home := fs.String("home", "", "Directory for local state")
	addr := fs.String("addr", "", "Listen address for `serve`")
	debug := fs.Bool("debug", false, "Enable debug logging")

	if err := fs.Parse(argv); err != nil {
		return nil, err
	}

	if *baseURL != "" {
		overrides.APIBaseURL = baseURL
	}
	if *home != "" {
		overrides.Home = home
	}
	if *addr != "" {
		overrides.ServerAddr = addr
	}
	if *debug {
		overrides.Debug = debug
	}
	return fs.Args(), nil
}

func serveCommand(ctx context.Context, cfg *config.Config) error {
	srv, err := api.NewServer(ctx, cfg)
	if err != nil {
		return err
	}
	defer srv.Close()
	return srv.Run(ctx)
}

func callCommand(ctx context.Context, a *app.App, argv []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("call", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	method := fs.String("X", "GET", "HTTP method")
	body := fs.String("d", "", "JSON request body")
	timeout := fs.Duration("timeout", 0, "Per-call timeout")

	if err := fs.Parse(argv); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: starter call [-X METHOD] [-d BODY] [-timeout D] ADDRESS")
	}

	in := console.Input{
		Address: fs.Arg(0),
		Method:  *method,
		Body:    *body,
		Timeout: *timeout,
	}

	// Best-effort: anonymous calls are fine when no session exists.
	if _, err := a.Account.EnsureAccessToken(ctx); err != nil {
		logger.Debugf("call: continuing without access token: %v", err)
	}

	stopWatch := a.Console.Watch(stderr, a.Console.TaskID(in), "")
	res := a.Console.Run(ctx, in)
	stopWatch()

	fmt.Fprint(stdout, console.Format(res))
	if res.Error != "" {
		return errors.New("call failed")
	}
	return nil
}

func loginCommand(ctx context.Context, a *app.App, argv []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	email := fs.String("email", a.Config.Server.DemoEmail, "Account email")
	password := fs.String("password", "", "Account password")

	if err := fs.Parse(argv); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("STARTER_PASSWORD")
	}

	loginCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	identity, err := a.Account.Login(loginCtx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Signed in as %s\n", identity.Email)
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `starter - tracked API client and dev backend

Usage:
  starter [flags] <command> [args]

Commands:
  serve                                 Run the dev backend
  call [-X M] [-d BODY] [-timeout D] A  Call address A and print the result
  presets                               List the quick test calls
  login -email E -password P            Sign in
  me                                    Show the signed-in user
  refresh                               Renew the access token
  logout                                Sign out
  external [URL]                        GET an absolute URL
  version                               Show version

Flags:
  -base-url URL   API base URL (default http://localhost:3000/api)
  -home DIR       Local state directory (default ~/.starter)
  -addr ADDR      Listen address for serve (default :3000)
  -debug          Enable debug logging

Configuration is read from ~/.config/starter/config.toml (or $STARTER_CONFIG)
and STARTER_* environment variables.
`)
}
