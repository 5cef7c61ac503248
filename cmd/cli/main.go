package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hamed0406/reachcheck/internal/diagnose"
	"github.com/hamed0406/reachcheck/internal/report"
)

// cli asks a running API server for a diagnostic and prints it. The exit
// code is the report's severity, or 3 when the server could not be asked.
func main() {
	os.Exit(run())
}

func run() int {
	latest := flag.Bool("latest", false, "show the last periodic run instead of starting one")
	flag.Parse()

	api := strings.TrimRight(os.Getenv("API_BASE"), "/")
	if api == "" {
		api = "http://127.0.0.1:8089"
	}
	path := "/api/diagnose"
	if *latest {
		path += "/latest"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, api+path, nil)
	if err != nil {
		fmt.Println("Invalid API_BASE:", err)
		return 3
	}
	if key := os.Getenv("API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Println("Error contacting API:", err)
		return 3
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Println("API returned status:", resp.Status)
		return 3
	}

	var rep diagnose.Report
	if err := json.NewDecoder(resp.Body).Decode(&rep); err != nil {
		fmt.Println("Unreadable report:", err)
		return 3
	}
	_ = report.Text(os.Stdout, rep)
	return rep.ExitCode()
}
