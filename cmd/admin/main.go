package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	persistlog "lifesupport.ai/internal/persistence/log"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "audit":
			auditCmd(os.Args[2:])
			return
		case "history":
			historyCmd(os.Args[2:])
			return
		case "summary":
			summaryCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "unload":
			unloadCmd(os.Args[2:])
			return
		case "reload-planets":
			reloadPlanetsCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(persistlog.AuditDir(*dataDir))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		fmt.Printf("%s\t%s\n", e.Name(), humanize.Bytes(uint64(info.Size())))
	}
}

func auditCmd(args []string) {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	world := fs.String("world", "", "world-space filter (optional)")
	kind := fs.String("kind", "", "OXYGEN or GRAVITY (optional)")
	action := fs.String("action", "", "CLAIM, RELEASE, CLEAR_WORLD or INVALIDATE_CACHE (optional)")
	anchor := fs.String("anchor", "", "device anchor filter: x,y,z (optional)")
	pos := fs.String("pos", "", "coordinate filter: x,y,z (optional)")
	limit := fs.Int("limit", 0, "print only the last N matches (0 = all)")
	_ = fs.Parse(args)

	f := persistlog.Filter{
		World:  strings.TrimSpace(*world),
		Kind:   strings.ToUpper(strings.TrimSpace(*kind)),
		Action: strings.ToUpper(strings.TrimSpace(*action)),
	}
	if strings.TrimSpace(*anchor) != "" {
		c, err := parseCoord(*anchor)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -anchor:", err)
			os.Exit(2)
		}
		f.Anchor = &c
	}
	if strings.TrimSpace(*pos) != "" {
		c, err := parseCoord(*pos)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -pos:", err)
			os.Exit(2)
		}
		f.Coord = &c
	}

	events, err := persistlog.ReadAudit(persistlog.AuditDir(*dataDir), f)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read audit:", err)
		os.Exit(1)
	}
	if *limit > 0 && len(events) > *limit {
		events = events[len(events)-*limit:]
	}
	enc := json.NewEncoder(os.Stdout)
	for _, ev := range events {
		_ = enc.Encode(ev)
	}
	fmt.Fprintf(os.Stderr, "%s events\n", humanize.Comma(int64(len(events))))
}

func parseCoord(s string) ([3]int, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return [3]int{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var out [3]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return [3]int{}, fmt.Errorf("%q: %w", p, err)
		}
		out[i] = v
	}
	return out, nil
}
