// Command controlplane runs the dispatch core: either a one-shot turn from
// the command line or an HTTP service exposing the turn endpoint.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/odvcencio/controlplane/pkg/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "turn":
		runTurn(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `controlplane — cognitive dispatch core

Usage:
  controlplane serve [-config path]
  controlplane turn  [-config path] [-session id] -m "message"
`)
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "controlplane.yaml", "path to config file")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}

	app, err := buildApp(cfg)
	if err != nil {
		fatal(err)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, app); err != nil {
		fatal(err)
	}
}

func runTurn(args []string) {
	fs := flag.NewFlagSet("turn", flag.ExitOnError)
	configPath := fs.String("config", "controlplane.yaml", "path to config file")
	sessionID := fs.String("session", "", "existing session id (empty starts a new session)")
	message := fs.String("m", "", "user message")
	_ = fs.Parse(args)

	if *message == "" {
		fmt.Fprintln(os.Stderr, "turn requires -m \"message\"")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}

	app, err := buildApp(cfg)
	if err != nil {
		fatal(err)
	}
	defer app.Close()

	result := app.Supervisor.HandleTurn(context.Background(), *sessionID, *message)
	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(out))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "controlplane: %v\n", err)
	os.Exit(1)
}
