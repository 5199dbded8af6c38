package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Enriquefft/openclaw-sms-webhook/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "simulate":
		handleSimulate(os.Args[2:])
	case "status":
		handleStatus()
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

type simulateArgs struct {
	mode   string
	from   string
	to     string
	text   string
	fields map[string]string
}

func parseSimulateArgs(args []string) (simulateArgs, error) {
	sa := simulateArgs{mode: "get", fields: map[string]string{}}

	for i := 0; i < len(args); i++ {
		flag := args[i]
		switch flag {
		case "--mode", "--from", "--to", "--text", "--field":
			if i+1 >= len(args) {
				return sa, fmt.Errorf("%s needs a value", flag)
			}
			val := args[i+1]
			i++
			switch flag {
			case "--mode":
				sa.mode = strings.ToLower(val)
			case "--from":
				sa.from = val
			case "--to":
				sa.to = val
			case "--text":
				sa.text = val
			case "--field":
				k, v, ok := strings.Cut(val, "=")
				if !ok || k == "" {
					return sa, fmt.Errorf("--field wants key=value, got %q", val)
				}
				sa.fields[k] = v
			}
		default:
			// Allow positional: simulate +NUMBER "message"
			if sa.from == "" && strings.HasPrefix(flag, "+") {
				sa.from = flag
			} else if sa.text == "" {
				sa.text = flag
			} else {
				return sa, fmt.Errorf("unexpected argument %q", flag)
			}
		}
	}

	switch sa.mode {
	case "get", "form", "json":
	default:
		return sa, fmt.Errorf("unknown mode %q (want get, form or json)", sa.mode)
	}
	if sa.from == "" || sa.text == "" {
		return sa, fmt.Errorf("--from and --text are required")
	}
	return sa, nil
}

// payload builds the provider-style inbound SMS fields.
func (sa simulateArgs) payload(now time.Time) map[string]string {
	p := map[string]string{
		"msisdn":            strings.TrimPrefix(sa.from, "+"),
		"to":                strings.TrimPrefix(sa.to, "+"),
		"messageId":         uuid.New().String(),
		"text":              sa.text,
		"type":              "text",
		"message-timestamp": now.UTC().Format("2006-01-02 15:04:05"),
	}
	if sa.to == "" {
		delete(p, "to")
	}
	for k, v := range sa.fields {
		p[k] = v
	}
	return p
}

// buildRequest encodes fields the way the provider does for each mode.
func buildRequest(mode, endpointURL string, fields map[string]string) (*http.Request, error) {
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}

	switch mode {
	case "get":
		u, err := url.Parse(endpointURL)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		u.RawQuery = values.Encode()
		return http.NewRequest(http.MethodGet, u.String(), nil)

	case "form":
		req, err := http.NewRequest(http.MethodPost, endpointURL, strings.NewReader(values.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
		return req, nil

	case "json":
		body, err := json.Marshal(fields)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		req, err := http.NewRequest(http.MethodPost, endpointURL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}
	return nil, fmt.Errorf("unknown mode %q", mode)
}

func handleSimulate(args []string) {
	sa, err := parseSimulateArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fmt.Fprintln(os.Stderr, `usage: sms-webhook-cli simulate --from +NUMBER --text "message" [--to +NUMBER] [--mode get|form|json] [--field key=value]`)
		os.Exit(1)
	}

	endpointURL := baseURL() + endpointPath()
	req, err := buildRequest(sa.mode, endpointURL, sa.payload(time.Now()))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "webhook server unreachable: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "webhook rejected the message (status %d)\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Printf("delivered via %s to %s\n", sa.mode, endpointURL)
}

func handleStatus() {
	resp, err := http.Get(baseURL() + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "webhook server unreachable: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		fmt.Println("webhook server: ok")
	} else {
		fmt.Fprintf(os.Stderr, "webhook server: unhealthy (status %d)\n", resp.StatusCode)
		os.Exit(1)
	}
}

func baseURL() string {
	if v := os.Getenv("SMS_WEBHOOK_URL"); v != "" {
		return strings.TrimRight(v, "/")
	}
	return "http://localhost:18791"
}

func endpointPath() string {
	if v := os.Getenv("NEXMO_WEBHOOKS_INCOMING_SMS_ENDPOINT"); v != "" {
		if !strings.HasPrefix(v, "/") {
			v = "/" + v
		}
		return v
	}
	return config.DefaultIncomingSMSEndpoint
}

func printUsage() {
	fmt.Println(`sms-webhook-cli - Exercise a running SMS webhook receiver

Commands:
  simulate --from +NUMBER --text "message"   Post a fake inbound SMS
           [--to +NUMBER] [--mode get|form|json] [--field key=value]
  status                                      Check webhook server health
  help                                        Show this help

Environment:
  SMS_WEBHOOK_URL                        Webhook server base URL (default: http://localhost:18791)
  NEXMO_WEBHOOKS_INCOMING_SMS_ENDPOINT   Inbound SMS path (default: /webhooks/sms)`)
}
