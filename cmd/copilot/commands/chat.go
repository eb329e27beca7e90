package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	copilot "github.com/telnet2/go-copilot"
	"github.com/telnet2/go-copilot/internal/config"
	"github.com/telnet2/go-copilot/pkg/types"
)

var (
	chatModel     string
	chatResume    string
	chatStreaming bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive session",
	Long: `Start an interactive conversation with the backend.

Examples:
  copilot chat                     # New session
  copilot chat --resume <id>       # Continue an earlier session
  copilot chat --stream            # Print tokens as they arrive`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatModel, "model", "m", "", "Model to use")
	chatCmd.Flags().StringVar(&chatResume, "resume", "", "Session id to resume")
	chatCmd.Flags().BoolVar(&chatStreaming, "stream", false, "Stream assistant output")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, cfg, err := setup(ctx)
	if err != nil {
		return err
	}
	defer client.Stop(context.Background())

	stdin := bufio.NewScanner(os.Stdin)

	sessionCfg := cfg.SessionConfig()
	if chatModel != "" {
		sessionCfg.Model = chatModel
	}
	if chatStreaming {
		sessionCfg.Streaming = true
	}
	sessionCfg.OnUserInputRequest = func(ctx context.Context, req types.UserInputRequest, inv types.ToolInvocation) (types.UserInputResponse, error) {
		return promptUser(stdin, req)
	}

	session, err := openChatSession(ctx, client, sessionCfg)
	if err != nil {
		return err
	}
	defer session.Dispose(context.Background())

	if paths := config.GetPaths(); paths.EnsurePaths() == nil {
		os.WriteFile(paths.SessionStatePath(), []byte(session.ID()), 0o644)
	}

	if sessionCfg.Streaming {
		if _, err := session.On(printDeltas); err != nil {
			return err
		}
	}

	fmt.Printf("session %s - type 'exit' to quit\n", session.ID())
	for {
		fmt.Print("> ")
		if !stdin.Scan() {
			return stdin.Err()
		}
		line := strings.TrimSpace(stdin.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		msg, err := session.SendAndWait(ctx, types.MessageOptions{Prompt: line})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			var serr *copilot.SessionError
			if errors.As(err, &serr) {
				fmt.Fprintf(os.Stderr, "error: %s\n", serr.Message)
				continue
			}
			return err
		}

		if sessionCfg.Streaming {
			fmt.Println()
		} else if msg != nil {
			fmt.Println(msg.Data.Content)
		}
	}
}

func openChatSession(ctx context.Context, client *copilot.Client, cfg *types.SessionConfig) (*copilot.Session, error) {
	if chatResume == "" {
		return client.CreateSession(ctx, cfg)
	}
	session, err := client.ResumeSession(ctx, chatResume, cfg)
	if err == nil {
		return session, nil
	}
	if errors.Is(err, copilot.ErrSessionNotFound) {
		fmt.Fprintf(os.Stderr, "session %s not found, starting a new one\n", chatResume)
		return client.CreateSession(ctx, cfg)
	}
	return nil, err
}

func printDeltas(evt types.Event) {
	if delta, ok := evt.(*types.AssistantMessageDeltaEvent); ok {
		fmt.Print(delta.Data.DeltaContent)
	}
}

func promptUser(stdin *bufio.Scanner, req types.UserInputRequest) (types.UserInputResponse, error) {
	fmt.Printf("\n%s\n", req.Question)
	for i, choice := range req.Choices {
		fmt.Printf("  %d) %s\n", i+1, choice)
	}
	fmt.Print("? ")
	if !stdin.Scan() {
		return types.UserInputResponse{}, fmt.Errorf("stdin closed")
	}
	answer := strings.TrimSpace(stdin.Text())

	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(req.Choices) {
		return types.UserInputResponse{Answer: req.Choices[n-1]}, nil
	}
	for _, choice := range req.Choices {
		if strings.EqualFold(answer, choice) {
			return types.UserInputResponse{Answer: choice}, nil
		}
	}
	return types.UserInputResponse{Answer: answer, WasFreeform: true}, nil
}
