package main

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stackmesh/runboard/internal/domain"
	"github.com/stackmesh/runboard/internal/monitor"
	"github.com/stackmesh/runboard/internal/runnerapi"
	"github.com/stackmesh/runboard/internal/runnerstub"
	"github.com/stackmesh/runboard/tui"
)

// demoPlan is the scripted plan the stub runner plays back
func demoPlan() domain.Plan {
	return domain.Plan{
		Spec: "demo",
		Batches: []domain.PlanBatch{
			{
				ID:            "schema",
				Name:          "Database schema",
				Tasks:         []string{"create migration", "add indexes"},
				Model:         "sonnet",
				EstimatedCost: 0.8,
				EstimatedMins: 4,
			},
			{
				ID:            "api",
				Name:          "API endpoints",
				Tasks:         []string{"add handlers", "wire routes", "write tests"},
				DependsOn:     []string{"schema"},
				Model:         "sonnet",
				EstimatedCost: 2.1,
				EstimatedMins: 11,
			},
			{
				ID:            "docs",
				Name:          "Documentation",
				Tasks:         []string{"update README"},
				DependsOn:     []string{"api"},
				Model:         "haiku",
				EstimatedCost: 0.2,
				EstimatedMins: 2,
			},
		},
	}
}

func runDemo(cmd *cobra.Command, args []string) error {
	stub := runnerstub.New(runnerstub.Config{
		Plan:         demoPlan(),
		StepInterval: 600 * time.Millisecond,
		FailBatch:    demoFail,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return stub.Start(ctx, demoAddr)
	})

	g.Go(func() error {
		defer cancel()

		client := runnerapi.NewClient("http://" + demoAddr)

		// Give the stub a moment to bind
		plan, err := fetchWithRetry(ctx, client, "demo")
		if err != nil {
			return err
		}

		mon, err := monitor.New(monitor.Config{
			StreamURL: client.StreamURL,
			Runner:    client,
		})
		if err != nil {
			return err
		}
		mon.SetPlan(plan)

		model := tui.NewModel(tui.ModelConfig{Monitor: mon, Spec: "demo"})
		p := tea.NewProgram(model, tea.WithAltScreen())
		_, err = p.Run()
		return err
	})

	return g.Wait()
}

func fetchWithRetry(ctx context.Context, client *runnerapi.Client, spec string) (*domain.Plan, error) {
	var lastErr error
	for i := 0; i < 20; i++ {
		plan, err := client.FetchPlan(ctx, spec)
		if err == nil {
			return plan, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return nil, fmt.Errorf("stub runner never came up: %w", lastErr)
}
