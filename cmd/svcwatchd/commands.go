package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"svcwatch/internal/classify"
	"svcwatch/internal/config"
	"svcwatch/internal/metrics"
	"svcwatch/internal/probe"
	"svcwatch/internal/store"
	logx "svcwatch/pkg/logx"
)

// runCommand handles the one-shot management verbs. The daemon itself runs
// when no verb is given.
func runCommand(cfgPath string, args []string) int {
	verb := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		return 1
	}
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = "./svcwatch.db"
	}
	st, err := store.Open(store.Config{Path: path}, logx.Nop())
	if err != nil {
		fmt.Fprintln(os.Stderr, "store:", err)
		return 1
	}
	defer st.Close()

	switch verb {
	case "list":
		return cmdList(ctx, st)
	case "track":
		return cmdTrack(ctx, st, args[1:])
	case "untrack":
		return withService(args[1:], func(name string) error { return st.Remove(ctx, name) })
	case "enable":
		return withService(args[1:], func(name string) error { return st.SetEnabled(ctx, name, true) })
	case "disable":
		return withService(args[1:], func(name string) error { return st.SetEnabled(ctx, name, false) })
	case "metrics":
		return cmdMetrics(ctx, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (use: list, track, untrack, enable, disable, metrics)\n", verb)
		return 2
	}
}

func withService(args []string, fn func(name string) error) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "expected exactly one service name")
		return 2
	}
	if err := fn(normalizeUnit(args[0])); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func cmdList(ctx context.Context, st *store.Store) int {
	services, err := st.List(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDISPLAY\tCATEGORY\tENABLED")
	for _, s := range services {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", s.Name, s.DisplayName, s.Category, s.Enabled)
	}
	_ = w.Flush()
	return 0
}

func cmdTrack(ctx context.Context, st *store.Store, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "expected exactly one service name")
		return 2
	}
	name := normalizeUnit(args[0])
	added, err := st.Add(ctx, name, displayName(name), classify.Describe(name), classify.Category(name))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	fmt.Printf("tracking %s (%s)\n", added.Name, added.Category)
	return 0
}

func cmdMetrics(ctx context.Context, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "expected exactly one service name")
		return 2
	}
	sd, err := probe.NewSystemd(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "systemd:", err)
		return 1
	}
	defer sd.Close()

	agg := metrics.NewAggregator(sd, probe.NewFinder(sd), probe.NewProcProbe(), logx.Nop())
	snap, err := agg.Collect(ctx, normalizeUnit(args[0]))
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	out, _ := json.MarshalIndent(snap, "", "  ")
	fmt.Println(string(out))
	return 0
}

func normalizeUnit(name string) string {
	if strings.Contains(name, ".") {
		return name
	}
	return name + ".service"
}

func displayName(unit string) string {
	base := strings.TrimSuffix(unit, ".service")
	if base == "" {
		return unit
	}
	return strings.ToUpper(base[:1]) + base[1:]
}
