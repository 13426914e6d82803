package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"crowdvolt_tracker/config"
	"crowdvolt_tracker/models"
)

type fakeRunner struct {
	mu        sync.Mutex
	scrapes   int
	discovers int
	commands  []models.CommandType
}

func (f *fakeRunner) RunAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrapes++
	return nil
}

func (f *fakeRunner) DiscoverAll(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.discovers++
	return nil
}

func (f *fakeRunner) HandleCommand(ctx context.Context, cmd *models.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd.Command)
	if cmd.Command == "bad" {
		return errors.New("unknown command")
	}
	return nil
}

type fakeQueue struct {
	pending   []models.Command
	processed []int64
}

func (q *fakeQueue) GetPendingCommands() ([]models.Command, error) {
	cmds := q.pending
	q.pending = nil
	return cmds, nil
}

func (q *fakeQueue) MarkCommandProcessed(id int64) error {
	q.processed = append(q.processed, id)
	return nil
}

func TestProcessCommands_MarksEveryCommand(t *testing.T) {
	runner := &fakeRunner{}
	queue := &fakeQueue{pending: []models.Command{
		{ID: 1, Command: models.CmdPause},
		{ID: 2, Command: "bad"},
		{ID: 3, Command: models.CmdScrapeNow},
	}}
	s := New(&config.Config{}, runner, queue)

	s.processCommands(context.Background())

	if len(runner.commands) != 3 {
		t.Fatalf("expected 3 commands dispatched, got %v", runner.commands)
	}
	if len(queue.processed) != 3 {
		t.Fatalf("expected failed commands to be marked processed too, got %v", queue.processed)
	}
}

func TestStart_RejectsInvalidCron(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{ScrapeCron: "not a cron"}}
	s := New(cfg, &fakeRunner{}, nil)

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestStart_ValidCron(t *testing.T) {
	cfg := &config.Config{Scheduler: config.SchedulerConfig{
		DiscoverCron: "0 6 * * *",
		ScrapeCron:   "*/30 * * * *",
	}}
	runner := &fakeRunner{}
	s := New(cfg, runner, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got := len(s.cron.Entries()); got != 2 {
		t.Fatalf("expected 2 cron entries, got %d", got)
	}

	s.Stop()
}
