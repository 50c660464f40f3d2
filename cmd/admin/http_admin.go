package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"lifesupport.ai/internal/protocol"
)

func adminURL(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}

func doAdmin(req *http.Request, timeout time.Duration) {
	cl := &http.Client{Timeout: timeout}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	req, _ := http.NewRequest(http.MethodGet, adminURL(*baseURL, "/admin/v1/state"), nil)
	doAdmin(req, 5*time.Second)
}

func unloadCmd(args []string) {
	fs := flag.NewFlagSet("unload", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	world := fs.String("world", "", "world-space to unload (required)")
	_ = fs.Parse(args)

	if strings.TrimSpace(*world) == "" {
		fmt.Fprintln(os.Stderr, "missing -world")
		os.Exit(2)
	}
	body, _ := json.Marshal(protocol.UnloadReq{World: strings.TrimSpace(*world)})
	req, _ := http.NewRequest(http.MethodPost, adminURL(*baseURL, "/admin/v1/worlds/unload"), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	doAdmin(req, 10*time.Second)
}

func reloadPlanetsCmd(args []string) {
	fs := flag.NewFlagSet("reload-planets", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	req, _ := http.NewRequest(http.MethodPost, adminURL(*baseURL, "/admin/v1/planets/reload"), nil)
	doAdmin(req, 10*time.Second)
}
