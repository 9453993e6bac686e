package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/re-cinq/overstory/internal/hooks"
	"github.com/re-cinq/overstory/internal/mail"
)

func init() {
	rootCmd.AddCommand(mailCmd)
	mailCmd.AddCommand(mailSendCmd, mailListCmd, mailReplyCmd, mailCheckCmd, mailPurgeCmd)

	mailSendCmd.Flags().StringVar(&mailSendArgs.from, "from", "orchestrator", "Sending agent name")
	mailSendCmd.Flags().StringVar(&mailSendArgs.to, "to", "", "Recipient agent name or group address (required)")
	mailSendCmd.Flags().StringVar(&mailSendArgs.subject, "subject", "", "Message subject")
	mailSendCmd.Flags().StringVar(&mailSendArgs.body, "body", "", "Message body")
	mailSendCmd.Flags().StringVar(&mailSendArgs.msgType, "type", string(mail.TypeStatus), "Message type")
	mailSendCmd.Flags().StringVar(&mailSendArgs.priority, "priority", string(mail.PriorityNormal), "Message priority")
	_ = mailSendCmd.MarkFlagRequired("to")

	mailListCmd.Flags().StringVar(&mailListArgs.from, "from", "", "Filter by sender")
	mailListCmd.Flags().StringVar(&mailListArgs.to, "to", "", "Filter by recipient")
	mailListCmd.Flags().BoolVar(&mailListArgs.unreadOnly, "unread", false, "Only unread messages")
	mailListCmd.Flags().IntVar(&mailListArgs.limit, "limit", 50, "Maximum messages to return")

	mailReplyCmd.Flags().StringVar(&mailReplyArgs.from, "from", "", "Replying agent name (required)")
	mailReplyCmd.Flags().StringVar(&mailReplyArgs.body, "body", "", "Reply body")
	_ = mailReplyCmd.MarkFlagRequired("from")

	mailCheckCmd.Flags().BoolVar(&mailCheckInject, "inject", false, "Render the inbox-injection block instead of raw messages")
	mailCheckCmd.Flags().DurationVar(&mailCheckDebounce, "debounce", 0, "Skip injection if this agent checked within the window")

	mailPurgeCmd.Flags().BoolVar(&mailPurgeArgs.all, "all", false, "Purge every message")
	mailPurgeCmd.Flags().StringVar(&mailPurgeArgs.agent, "agent", "", "Purge messages to/from this agent")
	mailPurgeCmd.Flags().DurationVar(&mailPurgeArgs.olderThan, "older-than", 0, "Purge messages older than this duration")
}

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "Send, list, and inspect inter-agent mail",
}

var mailSendArgs struct {
	from, to, subject, body, msgType, priority string
}

var mailSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a message to an agent or group address",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		ids, err := app.Mail.Send(mail.SendRequest{
			From:     mailSendArgs.from,
			To:       mailSendArgs.to,
			Subject:  mailSendArgs.subject,
			Body:     mailSendArgs.body,
			Type:     mail.MsgType(mailSendArgs.msgType),
			Priority: mail.Priority(mailSendArgs.priority),
		})
		if err != nil {
			return err
		}
		fmt.Printf("sent to %d recipient(s): %v\n", len(ids), ids)
		return nil
	},
}

var mailListArgs struct {
	from, to   string
	unreadOnly bool
	limit      int
}

var mailListCmd = &cobra.Command{
	Use:   "list",
	Short: "List messages matching a filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		msgs, err := app.Mail.List(mailListArgs.from, mailListArgs.to, mailListArgs.unreadOnly, mailListArgs.limit)
		if err != nil {
			return err
		}
		for _, m := range msgs {
			fmt.Printf("#%d [%s] %s -> %s (%s/%s): %s\n", m.ID, m.CreatedAt.Format(time.RFC3339), m.From, m.To, m.Type, m.Priority, m.Subject)
		}
		return nil
	},
}

var mailReplyArgs struct {
	from, body string
}

var mailReplyCmd = &cobra.Command{
	Use:   "reply <message-id>",
	Short: "Reply to a message, threading under its original id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		var id int64
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("invalid message id %q", args[0])
		}
		newID, err := app.Mail.Reply(id, mailReplyArgs.body, mailReplyArgs.from)
		if err != nil {
			return err
		}
		fmt.Printf("replied as #%d\n", newID)
		return nil
	},
}

var (
	mailCheckInject   bool
	mailCheckDebounce time.Duration
)

var mailCheckCmd = &cobra.Command{
	Use:   "check <agent>",
	Short: "Check an agent's inbox, optionally rendering the inject block",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		agent := args[0]
		if !mailCheckInject {
			msgs, err := app.Mail.Check(agent)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Printf("[%s] from %s (%s/%s): %s\n%s\n\n", m.CreatedAt.Format(time.RFC3339), m.From, m.Type, m.Priority, m.Subject, m.Body)
			}
			return nil
		}

		debouncer := hooks.NewCheckDebouncer(app.StateDir+"/mail-check-state.json", mailCheckDebounce)
		out, err := hooks.MailCheckInject(app.Mail, debouncer, agent, time.Now())
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

var mailPurgeArgs struct {
	all       bool
	agent     string
	olderThan time.Duration
}

var mailPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete messages matching a filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := OpenApp(configPath)
		if err != nil {
			return err
		}
		defer app.Close()

		n, err := app.Mail.Purge(mail.PurgeFilter{
			All:         mailPurgeArgs.all,
			Agent:       mailPurgeArgs.agent,
			OlderThanMs: mailPurgeArgs.olderThan.Milliseconds(),
		})
		if err != nil {
			return err
		}
		fmt.Printf("purged %d message(s)\n", n)
		return nil
	},
}
