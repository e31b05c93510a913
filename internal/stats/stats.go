// ABOUTME: Fleet statistics rolled up from the registry and work records
// ABOUTME: Snapshots are computed on demand, nothing here mutates state

package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/threadworks/heddle/internal/registry"
	"github.com/threadworks/heddle/internal/work"
)

type agentLister interface {
	List(ctx context.Context, f registry.Filter) ([]registry.Agent, error)
}

type workLister interface {
	List(ctx context.Context, f work.Filter) ([]work.Item, error)
}

// Totals is the fleet-wide rollup.
type Totals struct {
	Agents      int `json:"agents"`
	PendingWork int `json:"pendingWork"`
}

// ProjectStats is the per-project rollup. LastActivity is the newest
// agent activity seen in the project; zero means no agent ever reported.
type ProjectStats struct {
	Agents       int       `json:"agents"`
	OnlineAgents int       `json:"onlineAgents"`
	PendingWork  int       `json:"pendingWork"`
	LastActivity time.Time `json:"lastActivity,omitzero"`
}

// Snapshot is one point-in-time view of the fleet.
type Snapshot struct {
	Timestamp     time.Time               `json:"timestamp"`
	Totals        Totals                  `json:"totals"`
	TotalProjects int                     `json:"totalProjects"`
	ByProject     map[string]ProjectStats `json:"byProject"`
}

// Aggregator computes fleet snapshots. Pending work from the local
// coordinator's project is attributed to that project.
type Aggregator struct {
	agents    agentLister
	items     workLister
	projectID string
	logger    *slog.Logger
}

// New creates an Aggregator. projectID names the project this
// coordinator's work records belong to.
func New(agents agentLister, items workLister, projectID string, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		agents:    agents,
		items:     items,
		projectID: projectID,
		logger:    logger.With("component", "stats"),
	}
}

// Snapshot computes the current rollup.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	agents, err := a.agents.List(ctx, registry.Filter{})
	if err != nil {
		return Snapshot{}, fmt.Errorf("listing agents: %w", err)
	}
	pending, err := a.items.List(ctx, work.Filter{Status: work.StatusPending})
	if err != nil {
		return Snapshot{}, fmt.Errorf("listing pending work: %w", err)
	}

	snap := Snapshot{
		Timestamp: time.Now().UTC(),
		Totals:    Totals{Agents: len(agents), PendingWork: len(pending)},
		ByProject: make(map[string]ProjectStats),
	}

	for _, agent := range agents {
		project := agent.ProjectID
		if project == "" {
			project = a.projectID
		}
		ps := snap.ByProject[project]
		ps.Agents++
		if agent.Status == registry.StatusOnline {
			ps.OnlineAgents++
		}
		if agent.LastActivity.After(ps.LastActivity) {
			ps.LastActivity = agent.LastActivity
		}
		snap.ByProject[project] = ps
	}

	if len(pending) > 0 {
		ps := snap.ByProject[a.projectID]
		ps.PendingWork = len(pending)
		snap.ByProject[a.projectID] = ps
	}

	snap.TotalProjects = len(snap.ByProject)
	return snap, nil
}
