// Command sgrchat is an interactive terminal client that runs an agent
// locally and renders the frame stream as it arrives, including
// clarification prompts answered inline.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/chzyer/readline"
	"github.com/joho/godotenv"

	"github.com/sgrlabs/sgragent/agent"
	"github.com/sgrlabs/sgragent/config"
	"github.com/sgrlabs/sgragent/logging"
	"github.com/sgrlabs/sgragent/model"
	"github.com/sgrlabs/sgragent/model/anthropic"
	"github.com/sgrlabs/sgragent/model/openai"
	"github.com/sgrlabs/sgragent/runner"
	"github.com/sgrlabs/sgragent/session"
	"github.com/sgrlabs/sgragent/stream"
	"github.com/sgrlabs/sgragent/tool"
)

const (
	colorReset = "\033[0m"
	colorCyan  = "\033[36m"
	colorRed   = "\033[31m"
	colorDim   = "\033[2m"
	colorBold  = "\033[1m"
)

const chatInstructions = `You are a research assistant working in {{.WorkingDirectory}} on {{.Date}}.
Reason before every action. Ask for clarification at most once, and only when
the task cannot proceed without it.`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%sError: %v%s\n", colorRed, err, colorReset)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "sgragent.yaml", "path to the YAML configuration file")
	variant := flag.String("variant", agent.VariantResearch, "agent variant to chat with")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ac, err := cfg.AgentConfig(*variant)
	if err != nil {
		return err
	}
	if ac.Instructions == "" {
		ac.Instructions = chatInstructions
	}
	if ac.WorkingDirectory == "" {
		ac.WorkingDirectory, _ = os.Getwd()
	}

	registry, err := tool.NewRegistry(
		tool.NewReasoningTool(),
		tool.NewClarificationTool(),
		tool.NewFinalAnswerTool(),
		tool.NewSessionStatusTool(),
	)
	if err != nil {
		return err
	}

	a, err := agent.New(ac, buildGateway(cfg), registry, agent.WithLogger(logging.NoOpLogger{}))
	if err != nil {
		return err
	}

	store := session.NewInMemoryStore()
	runr := runner.New(store, map[string]*agent.Agent{*variant: a})

	rl, err := readline.New(colorCyan + "you> " + colorReset)
	if err != nil {
		return fmt.Errorf("create readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("%sChatting with the %s agent. Ctrl-C or 'q' to quit.%s\n", colorDim, *variant, colorReset)

	sessionID := stream.NewStreamID()
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				fmt.Println("Goodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "q" || line == "Q" {
			fmt.Println("Goodbye!")
			return nil
		}

		if err := runTurn(rl, runr, *variant, sessionID, line); err != nil {
			fmt.Fprintf(os.Stderr, "\n%sturn failed: %v%s\n", colorRed, err, colorReset)
		}
	}
}

// runTurn streams one agent turn to the terminal, answering clarification
// prompts inline.
func runTurn(rl *readline.Instance, runr *runner.Runner, variant, sessionID, message string) error {
	done := make(chan error, 1)
	go func() {
		_, err := runr.Run(context.Background(), variant, sessionID, message, &terminalSink{})
		done <- err
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			fmt.Println()
			return err
		case <-ticker.C:
			questions, pending := runr.PendingQuestions(sessionID)
			if !pending {
				continue
			}
			if err := answerClarification(rl, runr, sessionID, questions); err != nil {
				return err
			}
		}
	}
}

func answerClarification(rl *readline.Instance, runr *runner.Runner, sessionID string, questions []string) error {
	fmt.Printf("\n%sThe agent needs clarification:%s\n", colorBold, colorReset)
	for _, q := range questions {
		fmt.Printf("  - %s\n", q)
	}

	rl.SetPrompt(colorCyan + "clarify> " + colorReset)
	defer rl.SetPrompt(colorCyan + "you> " + colorReset)

	answer, err := rl.Readline()
	if err != nil {
		return err
	}
	if err := runr.ProvideClarification(context.Background(), sessionID, strings.TrimSpace(answer)); err != nil {
		// The gate may have timed out or been resolved between the snapshot
		// and the answer; the run loop will report the outcome.
		fmt.Fprintf(os.Stderr, "%s%v%s\n", colorDim, err, colorReset)
	}
	return nil
}

// terminalSink renders frames: assistant text verbatim, tool selections as a
// dim one-liner per call.
type terminalSink struct {
	lastTool string
}

func (t *terminalSink) Send(frame stream.Frame) error {
	if len(frame.Choices) == 0 {
		return nil
	}
	choice := frame.Choices[0]

	if choice.Delta.Content != "" {
		fmt.Print(choice.Delta.Content)
	}
	for _, call := range choice.Delta.ToolCalls {
		if call.Function.Name != "" && call.Function.Name != t.lastTool {
			t.lastTool = call.Function.Name
			fmt.Printf("%s[%s]%s ", colorDim, call.Function.Name, colorReset)
		}
	}
	if frame.Error != nil {
		fmt.Printf("\n%sstream error: %s%s\n", colorRed, frame.Error.Message, colorReset)
	}
	return nil
}

func buildGateway(cfg *config.Config) model.Gateway {
	switch cfg.Gateway.Provider {
	case "anthropic":
		return anthropic.NewGateway(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(cfg.Gateway.Model)
			o.Temperature = cfg.Gateway.Temperature
			o.MaxTokens = int64(cfg.Gateway.MaxTokens)
			o.APIKey = cfg.Gateway.APIKey
		})
	default:
		return openai.NewGateway(func(o *openai.Options) {
			o.Model = cfg.Gateway.Model
			o.Temperature = cfg.Gateway.Temperature
			o.MaxCompletionTokens = int64(cfg.Gateway.MaxTokens)
			o.BaseURL = cfg.Gateway.BaseURL
			o.APIKey = cfg.Gateway.APIKey
		})
	}
}
