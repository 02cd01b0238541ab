// Package main provides the gradgraph CLI.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
)

const version = "v0.1.0-dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		usage(stdout)
		return nil
	}

	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "gradgraph %s\n", version)
		return nil
	case "demo":
		return runDemo(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		usage(stderr)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "gradgraph - tensors and reverse-mode autodiff for Go")
	fmt.Fprintf(w, "Version: %s\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  version    Show version")
	fmt.Fprintln(w, "  demo       Fit a small tanh network to sin(2x)")
}

func runDemo(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("demo", flag.ContinueOnError)
	fs.SetOutput(stderr)

	cfg := defaultDemoConfig()
	fs.IntVar(&cfg.Steps, "steps", cfg.Steps, "training steps")
	fs.IntVar(&cfg.Batch, "batch", cfg.Batch, "samples per step")
	fs.IntVar(&cfg.Hidden, "hidden", cfg.Hidden, "hidden units")
	fs.Float64Var(&cfg.LR, "lr", cfg.LR, "learning rate")
	fs.Float64Var(&cfg.Momentum, "momentum", cfg.Momentum, "SGD momentum")
	fs.Float64Var(&cfg.Dropout, "dropout", cfg.Dropout, "dropout rate on the hidden layer")
	fs.StringVar(&cfg.Optimizer, "optimizer", cfg.Optimizer, "sgd or adam")
	fs.Uint64Var(&cfg.Seed, "seed", cfg.Seed, "RNG seed")
	fs.IntVar(&cfg.LogEvery, "log-every", cfg.LogEvery, "log the loss every n steps")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	res, err := trainDemo(cfg, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "initial loss %.6f, final loss %.6f after %d steps\n", res.InitialLoss, res.FinalLoss, cfg.Steps)
	return nil
}
