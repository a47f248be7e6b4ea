// Package schedule runs stored workflows on their cron triggers.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/weftworks/weft/internal/engine"
	"github.com/weftworks/weft/internal/store"
	"github.com/weftworks/weft/pkg/models"
)

const reloadInterval = time.Minute

// Scheduler scans stored workflows for trigger-schedule nodes carrying a
// cronExpression and fires each one through the driver. The registration
// set is rebuilt periodically so edits in the UI take effect without a
// restart.
type Scheduler struct {
	store  store.Store
	driver *engine.Driver
	cron   *cron.Cron

	mu      sync.Mutex
	entries map[string]cron.EntryID // workflowID+nodeID+expr
	cancel  context.CancelFunc
}

func New(s store.Store, driver *engine.Driver) *Scheduler {
	return &Scheduler{
		store:   s,
		driver:  driver,
		cron:    cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// Start loads the initial schedule and begins the reload loop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.reload(ctx)
	s.cron.Start()

	go func() {
		ticker := time.NewTicker(reloadInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reload(ctx)
			}
		}
	}()

	log.Info().Msg("⏰ Scheduler started")
}

// Stop halts the cron runner and waits for in-flight jobs.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
}

// reload reconciles cron entries with the stored workflows: new triggers
// are registered, removed or changed ones are dropped.
func (s *Scheduler) reload(ctx context.Context) {
	workflows, err := s.store.ListWorkflows(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Scheduler reload failed")
		return
	}

	want := make(map[string]scheduledTrigger)
	for _, wf := range workflows {
		for _, node := range wf.Nodes {
			if node.Kind != "trigger-schedule" {
				continue
			}
			expr, ok := node.Config["cronExpression"].(string)
			if !ok || expr == "" {
				continue
			}
			key := wf.ID + "\x00" + node.ID + "\x00" + expr
			want[key] = scheduledTrigger{workflowID: wf.ID, nodeID: node.ID, expr: expr}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for key, id := range s.entries {
		if _, ok := want[key]; !ok {
			s.cron.Remove(id)
			delete(s.entries, key)
		}
	}

	for key, trig := range want {
		if _, ok := s.entries[key]; ok {
			continue
		}
		trig := trig
		id, err := s.cron.AddFunc(trig.expr, func() {
			s.fire(trig)
		})
		if err != nil {
			log.Warn().
				Err(err).
				Str("workflow_id", trig.workflowID).
				Str("expression", trig.expr).
				Msg("Invalid cron expression, trigger skipped")
			continue
		}
		s.entries[key] = id
		log.Info().
			Str("workflow_id", trig.workflowID).
			Str("expression", trig.expr).
			Msg("Schedule trigger registered")
	}
}

func (s *Scheduler) fire(trig scheduledTrigger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	resp := s.driver.Execute(ctx, &models.ExecuteWorkflowRequest{
		WorkflowID:    trig.workflowID,
		TriggerNodeID: trig.nodeID,
	})
	if !resp.Success {
		log.Warn().
			Str("workflow_id", trig.workflowID).
			Str("execution_id", resp.ExecutionID).
			Msg("Scheduled execution failed")
	}
}

type scheduledTrigger struct {
	workflowID string
	nodeID     string
	expr       string
}
