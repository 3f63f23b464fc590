package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
)

// devServerPorts are the default ports of common JS dev servers
var devServerPorts = []struct {
	pattern *regexp.Regexp
	port    int
}{
	{regexp.MustCompile(`\bvite\b`), 5173},
	{regexp.MustCompile(`\bastro\b`), 4321},
	{regexp.MustCompile(`\bnuxt\b`), 3000},
	{regexp.MustCompile(`\bnext\b`), 3000},
	{regexp.MustCompile(`\bng serve\b`), 4200},
}

var portFlag = regexp.MustCompile(`(?:--port[= ]|-p )(\d{2,5})\b`)

// detectServer guesses how to start the application under test from
// package.json. ok is false when no dev script is found.
func detectServer(root string) (server ServerConfig, baseURL string, ok bool) {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return ServerConfig{}, "", false
	}

	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return ServerConfig{}, "", false
	}

	script := "dev"
	cmd, found := pkg.Scripts[script]
	if !found {
		script = "start"
		if cmd, found = pkg.Scripts[script]; !found {
			return ServerConfig{}, "", false
		}
	}

	runner := "npm run"
	if fileExists(filepath.Join(root, "bun.lock")) || fileExists(filepath.Join(root, "bun.lockb")) {
		runner = "bun run"
	} else if fileExists(filepath.Join(root, "pnpm-lock.yaml")) {
		runner = "pnpm run"
	}

	baseURL = fmt.Sprintf("http://localhost:%d", scriptPort(cmd))
	return ServerConfig{
		Start:        runner + " " + script,
		Ready:        baseURL,
		ReadyTimeout: 60,
	}, baseURL, true
}

func scriptPort(cmd string) int {
	if m := portFlag.FindStringSubmatch(cmd); m != nil {
		if port, err := strconv.Atoi(m[1]); err == nil && port > 0 && port < 65536 {
			return port
		}
	}
	for _, d := range devServerPorts {
		if d.pattern.MatchString(cmd) {
			return d.port
		}
	}
	return 3000
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
