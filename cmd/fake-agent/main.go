// ABOUTME: Minimal fake agent for E2E testing — registers, heartbeats, and works a capability queue.
// ABOUTME: Usage: fake-agent [-nats nats://localhost:4222] [-capability go-dev] [-fail-rate 0.0]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/threadworks/heddle/internal/deadletter"
	"github.com/threadworks/heddle/internal/dedupe"
	"github.com/threadworks/heddle/internal/mailbox"
	"github.com/threadworks/heddle/internal/registry"
	"github.com/threadworks/heddle/internal/store"
	"github.com/threadworks/heddle/internal/stream"
	"github.com/threadworks/heddle/internal/work"
)

func main() {
	natsURL := flag.String("nats", "nats://localhost:4222", "NATS server URL")
	project := flag.String("project", "default", "Project ID")
	name := flag.String("name", "Echo Agent", "Agent display name")
	capability := flag.String("capability", "go-dev", "Capability to work (comma-separated for multiple)")
	boundary := flag.String("boundary", "", "Boundary tags accepted (comma-separated)")
	failRate := flag.Float64("fail-rate", 0.0, "Fraction of work items to fail (0.0-1.0)")
	workTime := flag.Duration("work-time", 200*time.Millisecond, "Simulated time per work item")
	maxTasks := flag.Int("max-tasks", 5, "Max concurrent tasks to advertise")
	flag.Parse()

	if err := run(*natsURL, *project, *name, *capability, *boundary, *failRate, *workTime, *maxTasks); err != nil {
		log.Fatal(err)
	}
}

func run(natsURL, project, name, capability, boundary string, failRate float64, workTime time.Duration, maxTasks int) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	st, err := store.NewNATSStore(natsURL, logger)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer st.Close()

	strLog, err := stream.NewNATSLog(st.Conn())
	if err != nil {
		return fmt.Errorf("failed to open stream log: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	agentKV, err := st.Bucket(ctx, store.BucketAgents)
	if err != nil {
		return err
	}
	workKV, err := st.Bucket(ctx, store.BucketWorkItems)
	if err != nil {
		return err
	}
	dlKV, err := st.Bucket(ctx, store.BucketDeadLetters)
	if err != nil {
		return err
	}

	capabilities := splitList(capability)
	boundaries := splitList(boundary)

	reg := registry.New(agentKV, logger)
	agent, err := reg.Register(ctx, registry.Agent{
		Handle:             name,
		AgentType:          "fake",
		Capabilities:       capabilities,
		Boundaries:         boundaries,
		MaxConcurrentTasks: maxTasks,
		ProjectID:          project,
	})
	if err != nil {
		return fmt.Errorf("failed to register: %w", err)
	}
	fmt.Fprintf(os.Stderr, "registered as %s (guid: %s)\n", agent.Handle, agent.GUID)

	router := work.NewRouter(workKV, strLog, project, logger)
	escalator := deadletter.NewManager(dlKV, router, logger)
	seen := dedupe.New(30*time.Minute, 10000)
	defer seen.Close()
	inbox := mailbox.New(strLog, project, 1000, 24*time.Hour, logger)

	var inFlight atomic.Int64

	handler := func(ctx context.Context, item work.Item) error {
		inFlight.Add(1)
		defer inFlight.Add(-1)

		log.Printf("working item [%s]: %s", item.ID, item.Description)

		select {
		case <-time.After(workTime):
		case <-ctx.Done():
			return ctx.Err()
		}

		if rand.Float64() < failRate {
			return fmt.Errorf("simulated failure")
		}
		return nil
	}

	// One consumer per capability, sharing the capability's durable group so
	// multiple fake agents split the queue.
	consumerErr := make(chan error, len(capabilities))
	for _, capName := range capabilities {
		consumer := work.NewConsumer(router, escalator, seen, strLog, project, 3, logger)
		go func(capName string) {
			consumerErr <- consumer.Run(ctx, capName, "", boundaries, handler)
		}(capName)
	}

	heartbeat := time.NewTicker(10 * time.Second)
	defer heartbeat.Stop()
	checkMail := time.NewTicker(5 * time.Second)
	defer checkMail.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = reg.MarkOffline(context.Background(), agent.GUID)
			return nil
		case err := <-consumerErr:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("consumer stopped: %w", err)
			}
		case <-heartbeat.C:
			if err := reg.Heartbeat(ctx, agent.GUID, int(inFlight.Load())); err != nil {
				log.Printf("heartbeat error: %v", err)
			}
		case <-checkMail.C:
			msgs, err := inbox.Read(ctx, agent.GUID, mailbox.ReadFilter{
				MessageType: mailbox.MessageTypeShutdownRequest,
			})
			if err != nil {
				log.Printf("mailbox read error: %v", err)
				continue
			}
			if len(msgs) > 0 {
				last := msgs[len(msgs)-1]
				fmt.Fprintf(os.Stderr, "shutdown requested (%s): %s\n", last.Metadata["mode"], last.Metadata["reason"])
				_ = reg.MarkOffline(context.Background(), agent.GUID)
				return nil
			}
		}
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
