package tailscale

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"strings"
)

// tsStatus is a minimal subset of `tailscale status --json` output.
type tsStatus struct {
	Self struct {
		DNSName string `json:"DNSName"`
	} `json:"Self"`
}

// EnsureInstalled checks that the tailscale CLI is available.
func EnsureInstalled() error {
	if _, err := exec.LookPath("tailscale"); err != nil {
		return fmt.Errorf("tailscale CLI not found in PATH, install from https://tailscale.com/download")
	}
	return nil
}

// PublicURL returns the deterministic HTTPS URL for a funnelled port,
// e.g. "https://machine.tailnet.ts.net".
func PublicURL() (string, error) {
	out, err := exec.Command("tailscale", "status", "--json").Output()
	if err != nil {
		return "", fmt.Errorf("tailscale status: %w (is tailscale running?)", err)
	}
	return parsePublicURL(out)
}

func parsePublicURL(statusJSON []byte) (string, error) {
	var status tsStatus
	if err := json.Unmarshal(statusJSON, &status); err != nil {
		return "", fmt.Errorf("parse tailscale status: %w", err)
	}

	dns := strings.TrimSuffix(status.Self.DNSName, ".")
	if dns == "" {
		return "", fmt.Errorf("tailscale: empty DNS name, is the node connected?")
	}

	return "https://" + dns, nil
}

// StartFunnel runs `tailscale funnel <port>` in the background for the
// listen address addr. It returns the public URL of the SMS endpoint, to be
// entered as the inbound webhook URL at the provider.
// The caller owns the process and must kill it on shutdown.
func StartFunnel(addr, endpoint string, logger *slog.Logger) (webhookURL string, proc *os.Process, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := EnsureInstalled(); err != nil {
		return "", nil, err
	}

	port, err := PortFromAddr(addr)
	if err != nil {
		return "", nil, err
	}

	baseURL, err := PublicURL()
	if err != nil {
		return "", nil, err
	}

	cmd := exec.Command("tailscale", "funnel", port)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return "", nil, fmt.Errorf("start tailscale funnel: %w", err)
	}

	webhookURL = baseURL + endpoint
	logger.Info("tailscale funnel started", "port", port, "webhook_url", webhookURL)

	return webhookURL, cmd.Process, nil
}

// PortFromAddr extracts the port from a listen address like ":18791" or
// "0.0.0.0:18791".
func PortFromAddr(addr string) (string, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("listen address %q: %w", addr, err)
	}
	if port == "" || port == "0" {
		return "", fmt.Errorf("listen address %q has no fixed port", addr)
	}
	return port, nil
}
