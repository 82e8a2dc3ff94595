package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/screener/internal/pipeline"
)

const (
	chatExit = "/exit"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the agent as a recruiter would",
	Run: func(cmd *cobra.Command, _ []string) {
		chat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringP("thread", "t", "", "thread identity, e.g. the recruiter email")
}

func chat(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup()

	svc, err := newServices(ctx, logger, config)
	if err != nil {
		logger.Fatal("building services", zap.Error(err))
	}

	threadID, _ := cmd.Flags().GetString("thread")
	if strings.TrimSpace(threadID) == "" {
		identity := promptui.Prompt{
			Label:    "Your email",
			Validate: notBlank,
		}
		if threadID, err = identity.Run(); err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}
	}

	fmt.Printf("Chatting as %s. Type %s to leave.\n", threadID, chatExit)

	for {
		input := promptui.Prompt{
			Label:    "You",
			Validate: notBlank,
		}

		message, err := input.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
		if strings.TrimSpace(message) == chatExit {
			return
		}

		reply, err := svc.pipeline.Converse(ctx, pipeline.Message{ThreadID: threadID, Message: message})

		var rejection *pipeline.RejectionError
		switch {
		case errors.As(err, &rejection):
			fmt.Printf("Agent: %s\n", rejection.Reason)
			continue
		case err != nil:
			logger.Error("conversation turn failed", zap.Error(err))
			fmt.Println("Agent: Something went wrong, please try again.")
			continue
		}

		fmt.Printf("Agent: %s\n", reply.Text)
		logger.Debug("turn finished",
			zap.String("stage", string(reply.Stage)),
			zap.String("continuity", reply.Continuity.String()),
			zap.Int("session", reply.Session),
		)
		if reply.ArtifactRef != "" {
			fmt.Printf("Resume: %s\n", reply.ArtifactRef)
		}
	}
}

func notBlank(input string) error {
	if strings.TrimSpace(input) == "" {
		return errors.New("must not be empty")
	}
	return nil
}
