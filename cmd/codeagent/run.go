package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/codeagent/agent"
	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/memory"
	"github.com/hupe1980/codeagent/runner"
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] [task]",
		Short: "Runs the agent on a task",
		Long: `codeagent run [--provider=openai] [--tools=duckduckgo_search,visit_webpage] "<task>"

The task is read from stdin when no argument is given. Every flag can also
be set as CODEAGENT_<FLAG> environment variable (e.g. CODEAGENT_MAX_STEPS)
or in the config file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			task, err := readTask(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return execute(ctx, cfg, task, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	initFlags(cmd, runFlags)
	return cmd
}

func execute(ctx context.Context, cfg *Config, task string, stdout, stderr io.Writer) error {
	logger, closeLog, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	m, err := buildModel(cfg)
	if err != nil {
		return err
	}

	sessions, artifacts, closeStores, err := buildStores(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStores() }()

	r := runner.New(newAgentFactory(cfg, m, logger), func(o *runner.Options) {
		o.MaxConcurrentRuns = 1
		o.SessionStore = sessions
		o.ArtifactStore = artifacts
		o.Logger = logger.WithComponent("runner")
	})

	logger.Info("cli.run.start", "provider", cfg.Provider, "agent", cfg.Agent, "tools", cfg.Tools, "session_id", cfg.Session)

	_, events, errs := r.Run(ctx, cfg.Session, task)

	var answer *core.Event
	for ev := range events {
		if cfg.Stream {
			printEvent(stderr, ev)
		}
		if ev.IsFinal() {
			final := ev
			answer = &final
		}
	}
	if err := <-errs; err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, agent.ErrInterrupted) {
			return fmt.Errorf("run cancelled: %w", err)
		}
		return err
	}
	if answer == nil {
		return errors.New("run finished without final answer")
	}

	text := memory.FormatValue(answer.Output)
	if _, err := fmt.Fprintln(stdout, text); err != nil {
		return err
	}

	if cfg.Output != "" {
		if err := writeOutput(ctx, cfg.Output, []byte(text)); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		logger.Info("cli.output.written", "destination", cfg.Output)
	}

	return nil
}

func printEvent(w io.Writer, ev core.Event) {
	switch ev.Type {
	case core.EventModelDelta:
		_, _ = fmt.Fprint(w, ev.Text())
	case core.EventPlanning:
		_, _ = fmt.Fprintf(w, "\n━━ Plan (step %d) ━━\n%s\n", ev.Step, ev.Text())
	case core.EventAction:
		_, _ = fmt.Fprintf(w, "\n━━ Step %d ━━\n", ev.Step)
		if ev.Observation != "" {
			_, _ = fmt.Fprintf(w, "%s\n", ev.Observation)
		}
		if ev.Error != "" {
			_, _ = fmt.Fprintf(w, "error: %s\n", ev.Error)
		}
	case core.EventError:
		// Reported again by the action event.
	case core.EventFinalAnswer:
		_, _ = fmt.Fprintf(w, "\n━━ Final answer ━━\n")
	}
}
