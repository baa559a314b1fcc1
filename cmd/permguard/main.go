package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
)

var (
	app = kingpin.New("permguard", "Permission and policy evaluation engine for AI agent tool calls")

	serveCmd = app.Command("serve", "Serve the HTTP API")

	checkCmd        = app.Command("check", "Evaluate a single permission against the stored config")
	checkPermission = checkCmd.Arg("permission", "Permission name, e.g. file.read").Required().String()
	checkContext    = checkCmd.Flag("context", "Context attribute (key=value), repeatable").Short('c').StringMap()

	hookCmd = app.Command("hook", "Run as a Claude Code PreToolUse hook (JSON on stdin, decision on stdout)")

	exportCmd = app.Command("export", "Print the stored config as YAML")

	importCmd    = app.Command("import", "Replace the stored config with a YAML file")
	importFile   = importCmd.Arg("file", "YAML config file").Required().ExistingFile()
	importDryRun = importCmd.Flag("dry-run", "Print the diff without saving").Bool()

	auditCmd    = app.Command("audit", "List persisted audit entries")
	auditFilter = auditCmd.Flag("filter", "Which decisions to show").Default("all").Enum("all", "granted", "denied")
	auditLimit  = auditCmd.Flag("limit", "Show only the most recent N entries (0 for all)").Default("50").Int()
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	var err error
	switch command {
	case serveCmd.FullCommand():
		err = runServe()
	case checkCmd.FullCommand():
		err = runCheck(*checkPermission, *checkContext)
	case hookCmd.FullCommand():
		// The hook always answers; failures become a deny decision.
		runHook(os.Stdin, os.Stdout)
	case exportCmd.FullCommand():
		err = runExport(os.Stdout)
	case importCmd.FullCommand():
		err = runImport(os.Stdout, *importFile, *importDryRun)
	case auditCmd.FullCommand():
		err = runAudit(os.Stdout, *auditFilter, *auditLimit)
	}
	if errors.Is(err, errDenied) {
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
