package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (a *app) chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the poetry assistant",
	}
	send := &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := a.chatbot().SendMessage(cmd.Context(), strings.Join(args, " "), nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	ping := &cobra.Command{
		Use:   "ping",
		Short: "Check that the webhook answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := a.chatbot()
			if !client.TestConnection(cmd.Context()) {
				return errors.New("chatbot unreachable: " + client.URL())
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
	cmd.AddCommand(send, ping)
	return cmd
}
