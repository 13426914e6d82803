package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"crowdvolt_tracker/config"
	"crowdvolt_tracker/models"
)

const commandPollInterval = 2 * time.Second

// Runner is the orchestrator surface the scheduler drives.
type Runner interface {
	RunAll(ctx context.Context) error
	DiscoverAll(ctx context.Context) error
	HandleCommand(ctx context.Context, cmd *models.Command) error
}

// CommandQueue is the ops-store command table.
type CommandQueue interface {
	GetPendingCommands() ([]models.Command, error)
	MarkCommandProcessed(id int64) error
}

type Scheduler struct {
	cfg    *config.Config
	runner Runner
	queue  CommandQueue
	cron   *cron.Cron
	ticker *time.Ticker
	stopCh chan struct{}

	// cycles serializes scheduled and command-triggered work so two cycles
	// never overlap.
	cycles sync.Mutex
}

func New(cfg *config.Config, runner Runner, queue CommandQueue) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		runner: runner,
		queue:  queue,
		cron:   cron.New(),
		stopCh: make(chan struct{}),
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.queue != nil {
		go s.pollCommands(ctx)
	}

	sched := s.cfg.Scheduler
	usingCron := false

	if sched.DiscoverCron != "" {
		log.Printf("Scheduling discovery with cron: %s", sched.DiscoverCron)
		if _, err := s.cron.AddFunc(sched.DiscoverCron, func() { s.discover(ctx) }); err != nil {
			return fmt.Errorf("invalid discover cron expression: %w", err)
		}
		usingCron = true
	}

	if sched.ScrapeCron != "" {
		log.Printf("Scheduling scrape with cron: %s", sched.ScrapeCron)
		if _, err := s.cron.AddFunc(sched.ScrapeCron, func() { s.scrape(ctx) }); err != nil {
			return fmt.Errorf("invalid scrape cron expression: %w", err)
		}
		usingCron = true
	} else if sched.Interval > 0 {
		log.Printf("Starting scrape scheduler with interval: %s", sched.Interval)
		s.ticker = time.NewTicker(sched.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.scrape(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	if usingCron {
		s.cron.Start()
	} else if sched.Interval <= 0 {
		log.Println("No schedule configured, daemon will only respond to commands")
	}

	return nil
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}

func (s *Scheduler) scrape(ctx context.Context) {
	s.cycles.Lock()
	defer s.cycles.Unlock()
	if err := s.runner.RunAll(ctx); err != nil {
		log.Printf("Scheduled scrape error: %v", err)
	}
}

func (s *Scheduler) discover(ctx context.Context) {
	s.cycles.Lock()
	defer s.cycles.Unlock()
	if err := s.runner.DiscoverAll(ctx); err != nil {
		log.Printf("Scheduled discovery error: %v", err)
	}
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(commandPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processCommands(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) processCommands(ctx context.Context) {
	cmds, err := s.queue.GetPendingCommands()
	if err != nil {
		log.Printf("Error getting commands: %v", err)
		return
	}

	for _, cmd := range cmds {
		log.Printf("Processing command: %s", cmd.Command)
		if err := s.handleCommand(ctx, &cmd); err != nil {
			log.Printf("Command error: %v", err)
		}
		if err := s.queue.MarkCommandProcessed(cmd.ID); err != nil {
			log.Printf("Error marking command processed: %v", err)
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	switch cmd.Command {
	case models.CmdPause, models.CmdResume:
		return s.runner.HandleCommand(ctx, cmd)
	default:
		s.cycles.Lock()
		defer s.cycles.Unlock()
		return s.runner.HandleCommand(ctx, cmd)
	}
}
