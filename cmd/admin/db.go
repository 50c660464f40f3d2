package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lifesupport.ai/internal/persistence/indexdb"
)

func openIndex(dataDir, dbPath string) *indexdb.Reader {
	path := strings.TrimSpace(dbPath)
	if path == "" {
		path = filepath.Join(dataDir, "index", "zones.sqlite")
	}
	r, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	return r
}

func historyCmd(args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	world := fs.String("world", "", "world-space (required)")
	kind := fs.String("kind", "", "OXYGEN or GRAVITY (optional)")
	pos := fs.String("pos", "", "coordinate: x,y,z (required)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	if strings.TrimSpace(*world) == "" || strings.TrimSpace(*pos) == "" {
		fmt.Fprintln(os.Stderr, "missing -world or -pos")
		os.Exit(2)
	}
	c, err := parseCoord(*pos)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -pos:", err)
		os.Exit(2)
	}

	r := openIndex(*dataDir, *dbPath)
	defer r.Close()
	rows, err := r.CoordHistory(context.Background(), strings.TrimSpace(*world), strings.ToUpper(strings.TrimSpace(*kind)), c, *limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, row := range rows {
		_ = enc.Encode(row)
	}
}

func summaryCmd(args []string) {
	fs := flag.NewFlagSet("summary", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	world := fs.String("world", "", "world-space (required)")
	kind := fs.String("kind", "OXYGEN", "OXYGEN or GRAVITY")
	anchor := fs.String("anchor", "", "device anchor: x,y,z (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*world) == "" || strings.TrimSpace(*anchor) == "" {
		fmt.Fprintln(os.Stderr, "missing -world or -anchor")
		os.Exit(2)
	}
	a, err := parseCoord(*anchor)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -anchor:", err)
		os.Exit(2)
	}

	r := openIndex(*dataDir, *dbPath)
	defer r.Close()
	ctx := context.Background()
	s, err := r.AnchorSummary(ctx, strings.TrimSpace(*world), strings.ToUpper(strings.TrimSpace(*kind)), a)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	digest, _ := r.PlanetsDigest(ctx)
	_ = json.NewEncoder(os.Stdout).Encode(map[string]any{"summary": s, "planets_digest": digest})
}
