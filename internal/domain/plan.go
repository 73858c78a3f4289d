package domain

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Plan is a fetched execution plan: the ordered set of batches a run
// will execute. Plans are external inputs; the monitor never mutates
// them.
type Plan struct {
	Spec    string      `yaml:"spec" json:"spec"`
	Batches []PlanBatch `yaml:"batches" json:"batches"`
}

// PlanBatch is the plan-file schema for one batch
type PlanBatch struct {
	ID            string   `yaml:"id" json:"id"`
	Name          string   `yaml:"name" json:"name"`
	Tasks         []string `yaml:"tasks" json:"tasks"`
	DependsOn     []string `yaml:"depends_on" json:"depends_on"`
	Model         string   `yaml:"model" json:"model"`
	EstimatedCost float64  `yaml:"estimated_cost" json:"estimated_cost"`
	EstimatedMins int      `yaml:"estimated_minutes" json:"estimated_minutes"`
}

// ParsePlan parses a YAML plan document
func ParsePlan(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks plan consistency
func (p *Plan) Validate() error {
	seen := make(map[string]bool, len(p.Batches))
	for i, b := range p.Batches {
		if b.ID == "" {
			return fmt.Errorf("batch %d: id is required", i)
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate batch id %q", b.ID)
		}
		seen[b.ID] = true
	}
	for _, b := range p.Batches {
		for _, dep := range b.DependsOn {
			if !seen[dep] {
				return fmt.Errorf("batch %s depends on unknown batch %q", b.ID, dep)
			}
		}
	}
	return nil
}

// ToBatches converts plan entries into domain batches, defaulting the
// display name to the id when the plan omits it.
func (p *Plan) ToBatches() []Batch {
	batches := make([]Batch, 0, len(p.Batches))
	for _, pb := range p.Batches {
		name := strings.TrimSpace(pb.Name)
		if name == "" {
			name = pb.ID
		}
		batches = append(batches, Batch{
			ID:            pb.ID,
			Name:          name,
			Tasks:         pb.Tasks,
			DependsOn:     pb.DependsOn,
			Model:         pb.Model,
			EstimatedCost: pb.EstimatedCost,
			EstimatedMins: pb.EstimatedMins,
		})
	}
	return batches
}

// TotalEstimatedCost sums the per-batch cost estimates
func (p *Plan) TotalEstimatedCost() float64 {
	var total float64
	for _, b := range p.Batches {
		total += b.EstimatedCost
	}
	return total
}
