package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/kazz187/permguard/internal/audit"
)

func runAudit(w io.Writer, filter string, limit int) error {
	ctx := context.Background()
	b, err := newBootstrap(ctx)
	if err != nil {
		return err
	}
	f, err := audit.ParseFilter(filter)
	if err != nil {
		return err
	}
	entries, err := b.auditRepo.List(ctx, f)
	if err != nil {
		return err
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	printEntries(w, entries)
	return nil
}

func printEntries(w io.Writer, entries []*audit.Entry) {
	granted := color.New(color.FgGreen)
	denied := color.New(color.FgRed)
	for _, e := range entries {
		fmt.Fprintf(w, "%s ", e.Timestamp.Local().Format(time.DateTime))
		if e.Result.Granted {
			granted.Fprint(w, "GRANTED")
		} else {
			denied.Fprint(w, "DENIED ")
		}
		fmt.Fprintf(w, " %-20s %-12s %s\n", e.Permission, e.Result.Source, e.Result.Reason)
	}
}
