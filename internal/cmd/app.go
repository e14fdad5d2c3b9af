package cmd

import (
	"fmt"
	"os"

	"github.com/Iron-Ham/overseer/internal/agent"
	"github.com/Iron-Ham/overseer/internal/config"
	"github.com/Iron-Ham/overseer/internal/delegator"
	"github.com/Iron-Ham/overseer/internal/event"
	"github.com/Iron-Ham/overseer/internal/logging"
	"github.com/Iron-Ham/overseer/internal/plan/store"
	"github.com/Iron-Ham/overseer/internal/planner"
	"github.com/Iron-Ham/overseer/internal/respool"
	"github.com/Iron-Ham/overseer/internal/sessionpool"
	"github.com/Iron-Ham/overseer/internal/supervisor"
	"github.com/Iron-Ham/overseer/internal/taskctx"
	"github.com/Iron-Ham/overseer/internal/verify"
)

// app wires the full engine from the effective configuration. Commands
// build one, use what they need, and close it on the way out.
type app struct {
	cfg      *config.Config
	log      *logging.Logger
	bus      *event.Bus
	plans    *store.Store
	locks    *respool.Pool
	planner  *planner.Engine
	sessions *sessionpool.Pool
	tasks    *delegator.Delegator
	sup      *supervisor.Supervisor
	gate     *verify.Gate
}

func newApp(projectPath string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	stateDir := cfg.Paths.ResolveStateDir()

	log := logging.NopLogger()
	if cfg.Logging.Enabled {
		log, err = logging.NewLogger(stateDir, cfg.Logging.Level)
		if err != nil {
			return nil, err
		}
	}

	bus := event.NewBus()
	plans, err := store.New(stateDir, bus)
	if err != nil {
		return nil, err
	}
	locks := respool.NewPool(bus)
	assembler := taskctx.NewAssembler(cfg.Context.TokenBudget, cfg.Context.MaxDocs, cfg.Context.MaxHistoryItems, log)

	sessions, err := sessionpool.New(stateDir, sessionpool.Config{
		MaxSessions:       cfg.Pool.MaxSessions,
		SendTimeout:       cfg.Pool.SendTimeout(),
		HealthInterval:    cfg.Pool.HealthInterval(),
		LivenessThreshold: cfg.Pool.LivenessThreshold(),
		OutputBufferLines: cfg.Pool.OutputBufferLines,
	}, func(path string) agent.Agent {
		return agent.NewExecAgent(path, log)
	}, bus, log)
	if err != nil {
		return nil, err
	}

	tasks := delegator.New(locks, plans, assembler, log)

	checkpoints, err := supervisor.NewCheckpointStore(stateDir)
	if err != nil {
		return nil, err
	}
	sup := supervisor.New(tasks, sessions, checkpoints, supervisor.Config{
		PollInterval:       cfg.Supervisor.PollInterval(),
		CheckpointInterval: cfg.Supervisor.CheckpointInterval(),
		MaxRetries:         cfg.Supervisor.MaxRetries,
	}, bus, log, supervisor.WithEscalateFunc(func(e supervisor.Escalation) {
		fmt.Fprintf(os.Stderr, "ESCALATED: task %s after %d retries: %s\n", e.TaskID, e.RetryCount, e.Error)
	}))

	runner := verify.NewExecRunner(log, verify.WithCheckTimeout(cfg.Verify.CheckTimeout()))

	return &app{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		plans:    plans,
		locks:    locks,
		planner:  planner.NewEngine(plans, log, planner.WithClassifier(planner.NewKeywordClassifier(cfg.Planning.VagueMarkers))),
		sessions: sessions,
		tasks:    tasks,
		sup:      sup,
		gate:     verify.NewGate(runner, projectPath, log),
	}, nil
}

func (a *app) close() {
	a.sup.Close()
	a.sessions.Close()
	a.log.Close()
}
