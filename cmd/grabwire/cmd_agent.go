package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/grabwire/grabwire/internal/config"
)

// handleAgentCommand talks to a running agent over its HTTP surface.
func handleAgentCommand(cfg *config.RuntimeConfig, command string) {
	agentURL := os.Getenv("GRABWIRE_AGENT_URL")
	jsonOut := false
	for _, arg := range os.Args[2:] {
		if arg == "--json" {
			jsonOut = true
		}
	}
	if agentURL == "" {
		agentURL = "http://" + cfg.ListenAddr()
	}

	client := &http.Client{Timeout: 2 * time.Minute}

	var res *http.Response
	var err error
	switch command {
	case "status":
		res, err = client.Get(agentURL + "/status")
	case "rescan":
		res, err = client.Post(agentURL+"/rescan", "application/json", nil)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: %v (is the agent running?)\n", command, err)
		os.Exit(1)
	}
	defer func() { _ = res.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusAccepted {
		fmt.Fprintf(os.Stderr, "%s failed: agent returned %d: %s\n", command, res.StatusCode, string(body))
		os.Exit(1)
	}

	if jsonOut {
		fmt.Println(string(body))
		return
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		fmt.Fprintf(os.Stderr, "%s failed: invalid response: %v\n", command, err)
		os.Exit(1)
	}

	switch command {
	case "status":
		fmt.Printf("server: %v\n", payload["status"])
		if port, ok := payload["port"].(float64); ok && port > 0 {
			fmt.Printf("port: %d\n", int(port))
		}
		if payload["scanInProgress"] == true {
			fmt.Println("scan in progress")
		}
	case "rescan":
		if payload["status"] == "already-scanning" {
			fmt.Println("a scan is already running")
			return
		}
		if payload["found"] == true {
			fmt.Printf("server found on port %d\n", int(payload["port"].(float64)))
		} else {
			fmt.Println("server not found")
		}
	}
}
