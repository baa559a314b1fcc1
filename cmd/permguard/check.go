package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"

	"github.com/kazz187/permguard/internal/engine"
	"github.com/kazz187/permguard/internal/policy"
)

// errDenied makes the process exit with status 2 without printing anything
// further.
var errDenied = errors.New("permission denied")

func runCheck(name string, attrs map[string]string) error {
	ctx := context.Background()
	b, err := newBootstrap(ctx)
	if err != nil {
		return err
	}
	res := b.engine.Check(ctx, engine.Request{Permission: name, Context: policy.Context(attrs)})
	printResult(os.Stdout, res)
	if !res.Granted {
		return errDenied
	}
	return nil
}

func printResult(w io.Writer, res engine.Result) {
	if res.Granted {
		color.New(color.FgGreen, color.Bold).Fprint(w, "GRANTED")
	} else {
		color.New(color.FgRed, color.Bold).Fprint(w, "DENIED")
	}
	fmt.Fprintf(w, " %s", res.Permission)
	color.New(color.FgHiBlack).Fprintf(w, " (%s)", res.Source)
	fmt.Fprintln(w)
	if res.Reason != "" {
		fmt.Fprintf(w, "  reason: %s\n", res.Reason)
	}
	if res.Rule != nil {
		fmt.Fprintf(w, "  rule:   %s allow=%t\n", res.Rule.Pattern, res.Rule.Allow)
	}
}
