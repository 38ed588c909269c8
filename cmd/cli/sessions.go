package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls"},
	Short:   "List conversations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := newChatStack(cmd.Context(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer stack.Close()

		sessions, err := stack.client.Sessions().List(cmd.Context())
		if err != nil {
			return err
		}
		if stack.identity.Role == models.RoleDoctor {
			if pending := stack.client.Sessions().PendingRequests(); len(pending) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), titleStyle.Render(fmt.Sprintf("%d pending request(s)", len(pending))))
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderSessions(sessions, stack.identity.Role))
		return nil
	},
}

var doctorsCmd = &cobra.Command{
	Use:   "doctors",
	Short: "List linked doctors you can start a chat with",
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := newChatStack(cmd.Context(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer stack.Close()

		candidates, err := stack.client.RequestCandidates(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderDoctors(candidates))
		return nil
	},
}

var requestCmd = &cobra.Command{
	Use:   "request <doctor-id>",
	Short: "Ask a linked doctor for a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := newChatStack(cmd.Context(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer stack.Close()

		if stack.identity.Role != models.RolePatient {
			return fmt.Errorf("only patients can request a chat")
		}
		session, err := stack.client.RequestDoctorChat(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderSessions([]models.ChatSession{session}, stack.identity.Role))
		return nil
	},
}

var acceptCmd = &cobra.Command{
	Use:   "accept <session-id>",
	Short: "Accept a pending chat request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := newChatStack(cmd.Context(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer stack.Close()

		th, err := stack.client.OpenThread(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return th.Accept(cmd.Context())
	},
}

var closeCmd = &cobra.Command{
	Use:   "close <session-id>",
	Short: "Close an active doctor-patient chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := newChatStack(cmd.Context(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer stack.Close()

		th, err := stack.client.OpenThread(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return th.CloseSession(cmd.Context())
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Print the message history of a conversation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stack, err := newChatStack(cmd.Context(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer stack.Close()

		th, err := stack.client.OpenThread(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if _, err := th.Messages(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderThread(th.Grouped(now()), stack.identity.ID))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd, doctorsCmd, requestCmd, acceptCmd, closeCmd, historyCmd)
}
