// nbwatchctl controls and inspects a running nbwatchd daemon.
//
//	nbwatchctl status            Show daemon status
//	nbwatchctl check             Trigger an immediate poll cycle
//	nbwatchctl config show       Print the active configuration
//	nbwatchctl config set k=v    Update settings (validated before applying)
//	nbwatchctl journal           Show recent reconciliation decisions
//	nbwatchctl ping              Check daemon liveness
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"nbwatchd/internal/config"
	"nbwatchd/internal/ipc"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(args)
	case "check":
		err = cmdCheck(args)
	case "config":
		err = cmdConfig(args)
	case "journal":
		err = cmdJournal(args)
	case "ping":
		err = cmdPing(args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println(`nbwatchctl - control a running nbwatchd daemon

USAGE:
    nbwatchctl <command> [options]

COMMANDS:
    status              Show daemon status
    check               Trigger an immediate poll cycle
    config show         Print the active configuration as JSON
    config set k=v ...  Update settings, e.g. refresh_delay_ms=750
    journal             Show recent reconciliation decisions
    ping                Check daemon liveness
    help                Show this help message

OPTIONS:
    -socket <path>      Daemon socket (default: from environment/XDG)
    journal -path <p>   Limit journal output to one document
    journal -n <count>  Number of entries (default 20)

SETTABLE KEYS:
    enabled, refresh_delay_ms, echo_window_ms, poll_interval_ms,
    extensions (comma-separated), conflict_resolution,
    show_notifications, log_level, show_welcome_banner`)
}

func connect(socketPath string) (*ipc.Client, error) {
	if socketPath == "" {
		cfg := config.DefaultConfig()
		cfg.ApplyEnvOverrides()
		socketPath = cfg.IPC.SocketPath
	}
	client := ipc.NewClient(ipc.DefaultClientConfig(socketPath))
	if err := client.Connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func socketFlag(fs *flag.FlagSet) *string {
	return fs.String("socket", "", "daemon socket path")
}

func cmdStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	socket := socketFlag(fs)
	fs.Parse(args)

	client, err := connect(*socket)
	if err != nil {
		return err
	}
	defer client.Close()

	st, err := client.Status()
	if err != nil {
		return err
	}

	fmt.Printf("nbwatchd %s\n", st.Version)
	fmt.Printf("  Running:          %v\n", st.Running)
	fmt.Printf("  Uptime:           %s\n", st.Uptime)
	fmt.Printf("  Editor connected: %v\n", st.EditorConnected)
	fmt.Printf("  Tracked files:    %d\n", st.TrackedCount)
	fmt.Printf("  Pending reloads:  %d\n", st.PendingReloads)
	if st.JournalEntries > 0 {
		fmt.Printf("  Journal entries:  %d\n", st.JournalEntries)
	}
	return nil
}

func cmdCheck(args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	socket := socketFlag(fs)
	fs.Parse(args)

	client, err := connect(*socket)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.CheckNow(); err != nil {
		return err
	}
	fmt.Println("Poll cycle triggered.")
	return nil
}

func cmdConfig(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: nbwatchctl config <show|set>")
	}

	switch args[0] {
	case "show":
		return cmdConfigShow(args[1:])
	case "set":
		return cmdConfigSet(args[1:])
	default:
		return fmt.Errorf("unknown config subcommand: %s", args[0])
	}
}

func cmdConfigShow(args []string) error {
	fs := flag.NewFlagSet("config show", flag.ExitOnError)
	socket := socketFlag(fs)
	fs.Parse(args)

	client, err := connect(*socket)
	if err != nil {
		return err
	}
	defer client.Close()

	raw, err := client.GetConfig()
	if err != nil {
		return err
	}

	var pretty map[string]any
	if err := json.Unmarshal(raw, &pretty); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
	return nil
}

func cmdConfigSet(args []string) error {
	fs := flag.NewFlagSet("config set", flag.ExitOnError)
	socket := socketFlag(fs)
	fs.Parse(args)

	pairs := fs.Args()
	if len(pairs) == 0 {
		return fmt.Errorf("usage: nbwatchctl config set key=value [key=value ...]")
	}

	settings, err := parseSettings(pairs)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(settings)
	if err != nil {
		return err
	}

	client, err := connect(*socket)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.ApplySettings(payload); err != nil {
		return err
	}
	fmt.Println("Settings applied.")
	return nil
}

// parseSettings converts key=value arguments into the typed settings
// document the daemon validates.
func parseSettings(pairs []string) (map[string]any, error) {
	boolKeys := map[string]bool{
		"enabled": true, "show_notifications": true, "show_welcome_banner": true,
	}
	intKeys := map[string]bool{
		"refresh_delay_ms": true, "echo_window_ms": true, "poll_interval_ms": true,
	}

	settings := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}

		switch {
		case boolKeys[key]:
			b, err := strconv.ParseBool(value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			settings[key] = b
		case intKeys[key]:
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			settings[key] = n
		case key == "extensions":
			settings[key] = strings.Split(value, ",")
		default:
			settings[key] = value
		}
	}
	return settings, nil
}

func cmdJournal(args []string) error {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	socket := socketFlag(fs)
	path := fs.String("path", "", "limit to one document path")
	count := fs.Int("n", 20, "number of entries")
	fs.Parse(args)

	client, err := connect(*socket)
	if err != nil {
		return err
	}
	defer client.Close()

	entries, err := client.Journal(*path, *count)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No journal entries.")
		return nil
	}

	for _, e := range entries {
		line := fmt.Sprintf("%s  %-8s %-8s %-7s %s",
			e.RecordedAt.Format("2006-01-02 15:04:05"),
			e.Source, e.Class, e.Action, e.Path)
		if e.Outcome != "" {
			line += "  [" + e.Outcome + "]"
		}
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		fmt.Println(line)
	}
	return nil
}

func cmdPing(args []string) error {
	fs := flag.NewFlagSet("ping", flag.ExitOnError)
	socket := socketFlag(fs)
	fs.Parse(args)

	client, err := connect(*socket)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Ping(); err != nil {
		return err
	}
	fmt.Println("Daemon is responsive.")
	return nil
}
