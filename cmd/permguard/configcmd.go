package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/kazz187/permguard/internal/engine"
	configrepo "github.com/kazz187/permguard/internal/engine/repositoryimpl"
)

func runExport(w io.Writer) error {
	ctx := context.Background()
	b, err := newBootstrap(ctx)
	if err != nil {
		return err
	}
	data, err := encodeConfig(b.engine)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func encodeConfig(eng *engine.Engine) ([]byte, error) {
	cfg := eng.ExportConfig()
	return configrepo.Encode(&cfg)
}

func runImport(w io.Writer, file string, dryRun bool) error {
	ctx := context.Background()
	b, err := newBootstrap(ctx)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}
	cfg, err := configrepo.Decode(data)
	if err != nil {
		return err
	}

	before, err := encodeConfig(b.engine)
	if err != nil {
		return err
	}
	b.engine.ImportConfig(*cfg)
	after, err := encodeConfig(b.engine)
	if err != nil {
		return err
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(before)),
		B:        difflib.SplitLines(string(after)),
		FromFile: "stored",
		ToFile:   file,
		Context:  3,
	})
	if err != nil {
		return fmt.Errorf("failed to diff config: %w", err)
	}
	if diff == "" {
		fmt.Fprintln(w, "No changes.")
		return nil
	}
	printDiff(w, diff)

	if dryRun {
		color.New(color.FgYellow).Fprintln(w, "Dry run: config not saved.")
		return nil
	}
	if err := b.engine.SaveConfig(ctx, b.configRepo); err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintln(w, "Config saved.")
	return nil
}

func printDiff(w io.Writer, diff string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	hunk := color.New(color.FgCyan)
	for _, line := range strings.SplitAfter(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			fmt.Fprint(w, line)
		case strings.HasPrefix(line, "+"):
			added.Fprint(w, line)
		case strings.HasPrefix(line, "-"):
			removed.Fprint(w, line)
		case strings.HasPrefix(line, "@@"):
			hunk.Fprint(w, line)
		default:
			fmt.Fprint(w, line)
		}
	}
}
