// internal/cli/run.go
package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quantumagi/agi-sdk-go/internal/action"
	"github.com/quantumagi/agi-sdk-go/internal/config"
	"github.com/quantumagi/agi-sdk-go/internal/observability"
	"github.com/quantumagi/agi-sdk-go/internal/store"
	"github.com/quantumagi/agi-sdk-go/pkg/agi"
)

func newRunCommand() *cobra.Command {
	var (
		maxSteps       int
		stepDelay      time.Duration
		nonInteractive bool
	)

	runCmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a task to completion, steering the agent from stdin.",
		Long: `Run starts the agent loop on the given task. While the agent works you can
type commands to steer it:

  pause          suspend the agent before its next step
  resume         release a paused agent
  y / n [why]    approve or deny a pending confirmation
  skip           decline a pending question
  msg <text>     send guidance to the agent
  end            accept a completion the agent is holding open
  stop           end the session immediately

Any other input answers a pending question.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			opts := []agi.Option{agi.WithLogger(observability.GetLogger())}
			if maxSteps > 0 {
				opts = append(opts, agi.WithMaxSteps(maxSteps))
			}
			if cmd.Flags().Changed("step-delay") {
				opts = append(opts, agi.WithStepDelay(stepDelay))
			}

			var history *store.Store
			if cfg.Store.Enabled {
				history, err = store.Open(cmd.Context(), cfg.Store.Path, observability.GetLogger())
				if err != nil {
					return err
				}
				defer history.Close()
			}

			return runTask(cmd.Context(), cfg, opts, args[0], history, !nonInteractive)
		},
	}

	runCmd.Flags().IntVar(&maxSteps, "max-steps", 0, "override the configured step limit")
	runCmd.Flags().DurationVar(&stepDelay, "step-delay", 0, "override the configured delay between steps")
	runCmd.Flags().BoolVar(&nonInteractive, "no-input", false, "run without reading steering commands from stdin")
	return runCmd
}

func runTask(ctx context.Context, cfg *config.Config, opts []agi.Option, task string, history *store.Store, interactive bool) error {
	runID := uuid.NewString()

	hooks := agi.Hooks{
		OnStatusChange: func(st agi.State) {
			if st.ProgressMessage != "" {
				fmt.Printf("[%s] %s\n", st.Status, st.ProgressMessage)
			}
		},
		OnConfirmationRequired: func(req agi.ConfirmationRequest) {
			fmt.Printf("\nThe agent wants to: %s (impact: %s)\n", req.ActionDescription, req.ImpactLevel)
			fmt.Println("Type 'y' to approve or 'n [reason]' to deny.")
		},
		OnQuestionRequired: func(q agi.QuestionRequest) {
			fmt.Printf("\nThe agent asks: %s\n", q.Question)
			fmt.Println("Type an answer, or 'skip' to decline.")
		},
	}
	if history != nil {
		stepNo := 0
		hooks.OnActionExecuted = func(act action.Action) {
			stepNo++
			if err := history.RecordStep(ctx, runID, stepNo, act, ""); err != nil {
				observability.GetLogger().Warn("Failed to record step", zap.Error(err))
			}
		}
	}
	opts = append(opts, agi.WithHooks(hooks))

	sdk, err := agi.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	defer sdk.Close()

	if history != nil {
		rec := store.RunRecord{ID: runID, Task: task, Status: "running", StartedAt: time.Now()}
		if err := history.StartRun(ctx, rec); err != nil {
			return err
		}
	}

	resultCh := sdk.StartAsync(ctx, task, nil)
	doneCh := make(chan struct{})

	g, gctx := errgroup.WithContext(ctx)
	var result agi.TaskResult

	g.Go(func() error {
		defer close(doneCh)
		select {
		case result = <-resultCh:
		case <-gctx.Done():
			sdk.EndSession()
			result = <-resultCh
		}
		return nil
	})

	if interactive {
		lines := readLines(gctx)
		g.Go(func() error {
			for {
				select {
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					dispatchCommand(sdk, line)
				case <-doneCh:
					return nil
				case <-gctx.Done():
					return nil
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	if history != nil {
		status := "finished"
		if !result.Success {
			status = "failed"
		}
		if err := history.FinishRun(context.WithoutCancel(ctx), runID, status, result.Message, result.StepsTaken); err != nil {
			observability.GetLogger().Warn("Failed to record run outcome", zap.Error(err))
		}
	}

	if result.Success {
		fmt.Printf("\nDone: %s (%d steps, %.1fs)\n", result.Message, result.StepsTaken, result.DurationSeconds)
		return nil
	}
	fmt.Printf("\nFailed: %s (%d steps, %.1fs)\n", result.Message, result.StepsTaken, result.DurationSeconds)
	return fmt.Errorf("task did not complete")
}

// dispatchCommand maps one line of user input onto an agent command. Free
// text answers a pending question when one is open, otherwise it is ignored
// with a hint.
func dispatchCommand(sdk *agi.SDK, line string) {
	verb, rest, _ := strings.Cut(line, " ")
	switch strings.ToLower(verb) {
	case "pause":
		sdk.Pause()
	case "resume":
		sdk.Resume()
	case "y", "yes":
		sdk.Confirm(true)
	case "n", "no":
		sdk.Confirm(false)
		if rest != "" {
			sdk.SendMessage(rest)
		}
	case "skip":
		sdk.Answer(nil)
	case "msg":
		if rest != "" {
			sdk.SendMessage(rest)
		}
	case "end":
		sdk.End()
	case "stop", "quit", "exit":
		sdk.EndSession()
	default:
		if sdk.State().Status == agi.StatusWaitingQuestion {
			answer := line
			sdk.Answer(&answer)
			return
		}
		fmt.Println("Unknown command. Try: pause, resume, y, n, skip, msg <text>, end, stop.")
	}
}

// readLines pumps trimmed, non-empty stdin lines into a channel. The
// goroutine exits on EOF or context cancellation.
func readLines(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			select {
			case out <- line:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
