// ABOUTME: Admin CLI for the heddle coordinator's HTTP API
// ABOUTME: Manages agents, work items, dead letters, and spin-up targets

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/threadworks/heddle/internal/capacity"
	"github.com/threadworks/heddle/internal/deadletter"
	"github.com/threadworks/heddle/internal/registry"
	"github.com/threadworks/heddle/internal/stats"
	"github.com/threadworks/heddle/internal/work"
)

const banner = `
  _            _     _ _                      _           _
 | |__   ___ _| | __| | | ___        __ _  __| |_ __ ___ (_)_ __
 | '_ \ / _ \ _  |/ _' | |/ _ \_____/ _' |/ _' | '_ ' _ \| | '_ \
 | | | |  __/ (_| | (_| | |  __/____| (_| | (_| | | | | | | | | |
 |_| |_|\___|\__,_|\__,_|_|\___|     \__,_|\__,_|_| |_| |_|_|_| |_|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	baseURL := os.Getenv("HEDDLE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:3000"
	}
	c := &apiClient{baseURL: strings.TrimRight(baseURL, "/")}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(c)
	case "agents":
		err = cmdAgents(c, args)
	case "work":
		err = cmdWork(c, args)
	case "deadletter", "dlq":
		err = cmdDeadLetter(c, args)
	case "targets":
		err = cmdTargets(c, args)
	case "stats":
		err = cmdStats(c)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: heddle-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  status                       Show coordinator status")
	fmt.Println("  agents                       List registered agents")
	fmt.Println("  agents list                  List registered agents")
	fmt.Println("  agents show <guid>           Show one agent")
	fmt.Println("  agents shutdown <guid>       Request an agent shut down")
	fmt.Println("  work                         List work items")
	fmt.Println("  work list                    List work items")
	fmt.Println("  work show <id>               Show one work item")
	fmt.Println("  work submit                  Submit a work item")
	fmt.Println("  deadletter                   List dead-lettered work")
	fmt.Println("  deadletter retry <id>        Requeue a dead letter")
	fmt.Println("  deadletter discard <id>      Discard a dead letter")
	fmt.Println("  targets                      List spin-up targets")
	fmt.Println("  targets create               Create a spin-up target")
	fmt.Println("  targets show <id>            Show one target")
	fmt.Println("  targets enable <id>          Enable a target")
	fmt.Println("  targets disable <id>         Disable a target")
	fmt.Println("  targets spin-up <id>         Trigger a spin-up")
	fmt.Println("  targets test <id>            Probe a target's health")
	fmt.Println("  targets delete <id>          Delete a target")
	fmt.Println("  stats                        Show fleet statistics")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  HEDDLE_URL                   Coordinator URL (default: http://localhost:3000)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  heddle-admin work submit --capability go-dev --boundary backend --description 'Fix the build'")
	fmt.Println("  heddle-admin targets create --name rust-pool --mechanism local-command --capability rust-dev \\")
	fmt.Println("      --config command='start-rust-agent.sh'")
	fmt.Println()
}

// apiClient is a thin wrapper over the coordinator's REST API.
type apiClient struct {
	baseURL string
}

type apiError struct {
	Message string `json:"error"`
	Code    string `json:"code"`
}

func (c *apiClient) do(method, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s (%s)", apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *apiClient) get(path string, out any) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *apiClient) post(path string, body, out any) error {
	return c.do(http.MethodPost, path, body, out)
}

func (c *apiClient) delete(path string, out any) error {
	return c.do(http.MethodDelete, path, nil, out)
}

func cmdStatus(c *apiClient) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()

	var health struct {
		Status string `json:"status"`
	}
	if err := c.get("/health", &health); err != nil {
		yellow.Printf("  Coordinator:  ")
		color.Red("UNREACHABLE (%v)\n", err)
		return nil
	}

	green.Printf("  Coordinator:  ")
	fmt.Printf("%s at %s\n", health.Status, c.baseURL)

	var snap stats.Snapshot
	if err := c.get("/api/stats", &snap); err == nil {
		green.Printf("  Agents:       ")
		fmt.Printf("%d\n", snap.Totals.Agents)
		green.Printf("  Pending work: ")
		fmt.Printf("%d\n", snap.Totals.PendingWork)
		green.Printf("  Projects:     ")
		fmt.Printf("%d\n", snap.TotalProjects)
	}

	fmt.Println()
	return nil
}

// cmdAgents handles agents subcommands.
func cmdAgents(c *apiClient, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdAgentsList(c)
	case "show":
		if len(args) < 1 {
			return fmt.Errorf("usage: agents show <guid>")
		}
		var agent registry.Agent
		if err := c.get("/api/agents/"+args[0], &agent); err != nil {
			return err
		}
		return printDetail(agent)
	case "shutdown":
		return cmdAgentsShutdown(c, args)
	default:
		return fmt.Errorf("unknown agents subcommand: %s (use list, show, shutdown)", subcmd)
	}
}

func cmdAgentsList(c *apiClient) error {
	var resp struct {
		Agents []registry.Agent `json:"agents"`
		Count  int              `json:"count"`
	}
	if err := c.get("/api/agents", &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Agents")
	cyan.Println("  ------")

	if len(resp.Agents) == 0 {
		fmt.Println("  (no agents)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  GUID\tHANDLE\tSTATUS\tCAPABILITIES\tTASKS\tLAST SEEN")
	fmt.Fprintln(w, "  ----\t------\t------\t------------\t-----\t---------")

	for _, a := range resp.Agents {
		status := a.Status
		if a.ShutdownRequested != nil {
			status += " (draining)"
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%d/%d\t%s\n",
			truncate(a.GUID, 12),
			truncate(a.Handle, 20),
			status,
			truncate(strings.Join(a.Capabilities, ","), 28),
			a.CurrentTaskCount, a.MaxConcurrentTasks,
			a.LastHeartbeat.Format("Jan 02 15:04:05"),
		)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdAgentsShutdown(c *apiClient, args []string) error {
	var guid, reason string
	graceful := true

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--reason", "-r":
			if i+1 < len(args) {
				reason = args[i+1]
				i++
			}
		case "--immediate":
			graceful = false
		default:
			if guid == "" && !strings.HasPrefix(args[i], "-") {
				guid = args[i]
			}
		}
	}

	if guid == "" {
		return fmt.Errorf("usage: agents shutdown <guid> [--reason <text>] [--immediate]")
	}

	body := map[string]any{"graceful": graceful}
	if reason != "" {
		body["reason"] = reason
	}
	if err := c.post("/api/agents/"+guid+"/shutdown", body, nil); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Shutdown requested for %s\n", guid)
	return nil
}

// cmdWork handles work subcommands.
func cmdWork(c *apiClient, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdWorkList(c, args)
	case "show":
		if len(args) < 1 {
			return fmt.Errorf("usage: work show <id>")
		}
		var item work.Item
		if err := c.get("/api/work/"+args[0], &item); err != nil {
			return err
		}
		return printDetail(item)
	case "submit", "add":
		return cmdWorkSubmit(c, args)
	default:
		return fmt.Errorf("unknown work subcommand: %s (use list, show, submit)", subcmd)
	}
}

func cmdWorkList(c *apiClient, args []string) error {
	query := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--capability", "-c":
			if i+1 < len(args) {
				query = appendQuery(query, "capability", args[i+1])
				i++
			}
		case "--status", "-s":
			if i+1 < len(args) {
				query = appendQuery(query, "status", args[i+1])
				i++
			}
		}
	}

	var resp struct {
		WorkItems []work.Item `json:"workItems"`
	}
	if err := c.get("/api/work"+query, &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Work Items")
	cyan.Println("  ----------")

	if len(resp.WorkItems) == 0 {
		fmt.Println("  (no work items)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tCAPABILITY\tBOUNDARY\tSTATUS\tATTEMPTS\tDESCRIPTION")
	fmt.Fprintln(w, "  --\t----------\t--------\t------\t--------\t-----------")

	for _, item := range resp.WorkItems {
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%d\t%s\n",
			truncate(item.ID, 12),
			item.Capability,
			item.Boundary,
			item.Status,
			item.Attempts,
			truncate(item.Description, 40),
		)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdWorkSubmit(c *apiClient, args []string) error {
	var description, capability, boundary, taskID string
	var priority int

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--description", "-d":
			if i+1 < len(args) {
				description = args[i+1]
				i++
			}
		case "--capability", "-c":
			if i+1 < len(args) {
				capability = args[i+1]
				i++
			}
		case "--boundary", "-b":
			if i+1 < len(args) {
				boundary = args[i+1]
				i++
			}
		case "--task", "-t":
			if i+1 < len(args) {
				taskID = args[i+1]
				i++
			}
		case "--priority", "-p":
			if i+1 < len(args) {
				priority, _ = strconv.Atoi(args[i+1])
				i++
			}
		}
	}

	if description == "" || capability == "" || boundary == "" {
		return fmt.Errorf("usage: work submit --capability <name> --boundary <tag> --description <text> [--task <id>] [--priority <n>]")
	}

	body := map[string]any{
		"description": description,
		"capability":  capability,
		"boundary":    boundary,
		"priority":    priority,
		"offeredBy":   "heddle-admin",
	}
	if taskID != "" {
		body["taskId"] = taskID
	}

	var item work.Item
	if err := c.post("/api/work", body, &item); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Submitted work item %s (%s)\n", item.ID, item.Status)
	return nil
}

// cmdDeadLetter handles deadletter subcommands.
func cmdDeadLetter(c *apiClient, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdDeadLetterList(c)
	case "retry":
		return cmdDeadLetterRetry(c, args)
	case "discard", "rm":
		if len(args) < 1 {
			return fmt.Errorf("usage: deadletter discard <id>")
		}
		if err := c.delete("/api/deadletter/"+args[0], nil); err != nil {
			return err
		}
		green := color.New(color.FgGreen)
		green.Print("✓ ")
		fmt.Printf("Discarded %s\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown deadletter subcommand: %s (use list, retry, discard)", subcmd)
	}
}

func cmdDeadLetterList(c *apiClient) error {
	var resp struct {
		DeadLetters []deadletter.Entry `json:"deadLetters"`
		Count       int                `json:"count"`
	}
	if err := c.get("/api/deadletter", &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Dead Letters")
	cyan.Println("  ------------")

	if len(resp.DeadLetters) == 0 {
		fmt.Println("  (no dead letters)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tCAPABILITY\tATTEMPTS\tFAILED\tREASON")
	fmt.Fprintln(w, "  --\t----------\t--------\t------\t------")

	for _, e := range resp.DeadLetters {
		fmt.Fprintf(w, "  %s\t%s\t%d\t%s\t%s\n",
			truncate(e.ID, 12),
			e.WorkItem.Capability,
			e.Attempts,
			e.FailedAt.Format("Jan 02 15:04"),
			truncate(e.Reason, 40),
		)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdDeadLetterRetry(c *apiClient, args []string) error {
	var id string
	reset := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--reset":
			reset = true
		default:
			if id == "" && !strings.HasPrefix(args[i], "-") {
				id = args[i]
			}
		}
	}

	if id == "" {
		return fmt.Errorf("usage: deadletter retry <id> [--reset]")
	}

	var resp struct {
		Success  bool      `json:"success"`
		WorkItem work.Item `json:"workItem"`
	}
	if err := c.post("/api/deadletter/"+id+"/retry", map[string]any{"resetAttempts": reset}, &resp); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Requeued %s (attempts: %d)\n", resp.WorkItem.ID, resp.WorkItem.Attempts)
	return nil
}

// cmdTargets handles targets subcommands.
func cmdTargets(c *apiClient, args []string) error {
	subcmd := "list"
	if len(args) > 0 {
		subcmd = args[0]
		args = args[1:]
	}

	switch subcmd {
	case "list", "ls":
		return cmdTargetsList(c)
	case "create", "add":
		return cmdTargetsCreate(c, args)
	case "show":
		if len(args) < 1 {
			return fmt.Errorf("usage: targets show <id>")
		}
		var target capacity.Target
		if err := c.get("/api/targets/"+args[0], &target); err != nil {
			return err
		}
		return printDetail(target)
	case "enable":
		return cmdTargetsSetStatus(c, args, "enable")
	case "disable":
		return cmdTargetsSetStatus(c, args, "disable")
	case "spin-up", "spinup":
		return cmdTargetsSpinUp(c, args)
	case "test":
		return cmdTargetsTest(c, args)
	case "delete", "rm", "remove":
		if len(args) < 1 {
			return fmt.Errorf("usage: targets delete <id>")
		}
		if err := c.delete("/api/targets/"+args[0], nil); err != nil {
			return err
		}
		green := color.New(color.FgGreen)
		green.Print("✓ ")
		fmt.Printf("Deleted target %s\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown targets subcommand: %s (use list, create, show, enable, disable, spin-up, test, delete)", subcmd)
	}
}

func cmdTargetsList(c *apiClient) error {
	var resp struct {
		Targets []capacity.Target `json:"targets"`
		Count   int               `json:"count"`
	}
	if err := c.get("/api/targets", &resp); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Spin-Up Targets")
	cyan.Println("  ---------------")

	if len(resp.Targets) == 0 {
		fmt.Println("  (no targets)")
		fmt.Println()
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  ID\tNAME\tMECHANISM\tSTATUS\tCAPABILITIES\tLAST SPIN-UP")
	fmt.Fprintln(w, "  --\t----\t---------\t------\t------------\t------------")

	for _, t := range resp.Targets {
		lastSpinUp := "(never)"
		if t.LastSpinUp != nil {
			lastSpinUp = t.LastSpinUp.Format("Jan 02 15:04:05")
		}
		fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			truncate(t.ID, 12),
			truncate(t.Name, 20),
			t.Mechanism,
			t.Status,
			truncate(strings.Join(t.Capabilities, ","), 28),
			lastSpinUp,
		)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func cmdTargetsCreate(c *apiClient, args []string) error {
	var name, agentType, mechanism string
	var capabilities, boundaries []string
	cfg := map[string]string{}

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--name", "-n":
			if i+1 < len(args) {
				name = args[i+1]
				i++
			}
		case "--type":
			if i+1 < len(args) {
				agentType = args[i+1]
				i++
			}
		case "--mechanism", "-m":
			if i+1 < len(args) {
				mechanism = args[i+1]
				i++
			}
		case "--capability", "-c":
			if i+1 < len(args) {
				capabilities = append(capabilities, args[i+1])
				i++
			}
		case "--boundary", "-b":
			if i+1 < len(args) {
				boundaries = append(boundaries, args[i+1])
				i++
			}
		case "--config":
			if i+1 < len(args) {
				if k, v, ok := strings.Cut(args[i+1], "="); ok {
					cfg[k] = v
				}
				i++
			}
		}
	}

	if name == "" || mechanism == "" || len(capabilities) == 0 {
		return fmt.Errorf("usage: targets create --name <name> --mechanism <name> --capability <cap> [--capability ...] [--config key=value]")
	}

	body := map[string]any{
		"name":         name,
		"mechanism":    mechanism,
		"capabilities": capabilities,
	}
	if agentType != "" {
		body["agentType"] = agentType
	}
	if len(boundaries) > 0 {
		body["boundaries"] = boundaries
	}
	if len(cfg) > 0 {
		body["config"] = cfg
	}

	var target capacity.Target
	if err := c.post("/api/targets", body, &target); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Created target %s (%s)\n", target.ID, target.Name)
	return nil
}

func cmdTargetsSetStatus(c *apiClient, args []string, action string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: targets %s <id>", action)
	}

	var resp struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}
	if err := c.post("/api/targets/"+args[0]+"/"+action, nil, &resp); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Print("✓ ")
	fmt.Printf("Target %s is now %s\n", args[0], resp.Status)
	return nil
}

func cmdTargetsSpinUp(c *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: targets spin-up <id>")
	}

	var res capacity.SpinUpResult
	if err := c.post("/api/targets/"+args[0]+"/spin-up", nil, &res); err != nil {
		return err
	}

	if res.Triggered {
		green := color.New(color.FgGreen)
		green.Print("✓ ")
		fmt.Println("Spin-up triggered")
	} else {
		yellow := color.New(color.FgYellow)
		yellow.Print("- ")
		fmt.Printf("Not triggered: %s\n", res.Reason)
	}
	return nil
}

func cmdTargetsTest(c *apiClient, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: targets test <id>")
	}

	var res capacity.ProbeResult
	if err := c.post("/api/targets/"+args[0]+"/test", nil, &res); err != nil {
		return err
	}

	if res.Healthy {
		green := color.New(color.FgGreen)
		green.Print("✓ ")
		fmt.Println("Target is healthy")
	} else {
		color.Red("✗ Target is unhealthy: %s\n", res.Error)
	}
	return nil
}

func cmdStats(c *apiClient) error {
	var snap stats.Snapshot
	if err := c.get("/api/stats", &snap); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	fmt.Println()
	cyan.Println("  Fleet Statistics")
	cyan.Println("  ----------------")
	fmt.Printf("  Agents:        %d\n", snap.Totals.Agents)
	fmt.Printf("  Pending work:  %d\n", snap.Totals.PendingWork)
	fmt.Printf("  Projects:      %d\n", snap.TotalProjects)
	fmt.Println()

	if len(snap.ByProject) == 0 {
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "  PROJECT\tAGENTS\tONLINE\tPENDING\tLAST ACTIVITY")
	fmt.Fprintln(w, "  -------\t------\t------\t-------\t-------------")

	for project, ps := range snap.ByProject {
		lastActivity := "(none)"
		if !ps.LastActivity.IsZero() {
			lastActivity = ps.LastActivity.Format("Jan 02 15:04:05")
		}
		fmt.Fprintf(w, "  %s\t%d\t%d\t%d\t%s\n",
			project, ps.Agents, ps.OnlineAgents, ps.PendingWork, lastActivity,
		)
	}
	w.Flush()
	fmt.Println()

	return nil
}

// appendQuery grows a URL query string, starting it with "?" and chaining
// further pairs with "&".
func appendQuery(query, key, value string) string {
	sep := "&"
	if query == "" {
		sep = "?"
	}
	return query + sep + key + "=" + url.QueryEscape(value)
}

// printDetail pretty-prints a single record as indented JSON.
func printDetail(v any) error {
	data, err := json.MarshalIndent(v, "  ", "  ")
	if err != nil {
		return err
	}
	fmt.Println()
	fmt.Printf("  %s\n", data)
	fmt.Println()
	return nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
