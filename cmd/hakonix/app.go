package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"

	"github.com/hakonix/hakonix/common/cmdexec"
	"github.com/hakonix/hakonix/internal/hakonix/config"
	"github.com/hakonix/hakonix/internal/hakonix/lifecycle"
	"github.com/hakonix/hakonix/internal/hakonix/modules"
	"github.com/hakonix/hakonix/internal/hakonix/observability"
	"github.com/hakonix/hakonix/internal/hakonix/ownership"
	"github.com/hakonix/hakonix/internal/hakonix/storage"
	"github.com/hakonix/hakonix/internal/hakonix/store"
	"github.com/hakonix/hakonix/internal/hakonix/workload"
)

// app holds the wired component graph behind every subcommand.
type app struct {
	cfg       *config.Config
	storage   *storage.Provisioner
	orch      *lifecycle.Orchestrator
	resolver  *ownership.Resolver
	lister    *workload.Lister
	inspector *workload.Inspector
	catalog   *modules.Catalog
	store     *store.Store // nil when auditing is disabled
}

// newApp loads configuration, sets up logging, and wires the components.
func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	observability.Setup(cfg.LogLevel, cfg.LogFormat)

	runner := cmdexec.NewExec()
	provisioner := storage.New(runner, cfg)

	var st *store.Store
	var auditor lifecycle.Auditor
	if cfg.DatabasePath != "" {
		st, err = store.Open(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open operations log: %w", err)
		}
		auditor = st
	}

	static := ownership.NewSystemPath(cfg.ConfDir)
	resolver := ownership.NewResolver(ownership.NewLive(runner, cfg.QueryTimeout), static)

	return &app{
		cfg:       cfg,
		storage:   provisioner,
		orch:      lifecycle.New(runner, provisioner, cfg, auditor),
		resolver:  resolver,
		lister:    workload.NewLister(runner, cfg, resolver, static),
		inspector: workload.NewInspector(runner, cfg, resolver, provisioner),
		catalog:   modules.NewCatalog(runner, cfg.FlakePath),
		store:     st,
	}, nil
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

// report prints a lifecycle result and converts failure into a command error.
func report(res lifecycle.Result) error {
	if res.Success {
		fmt.Println(res.Message)
		return nil
	}
	if res.Err != nil {
		return fmt.Errorf("%s: %w", res.Message, res.Err)
	}
	return fmt.Errorf("%s", res.Message)
}

func printTable(header []string, data [][]string) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetBorders(tablewriter.Border{Left: true, Top: false, Right: true, Bottom: false})
	table.SetCenterSeparator("|")
	for _, row := range data {
		table.Append(row)
	}
	table.Render()
}
