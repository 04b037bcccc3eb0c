package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mochaeng/payment-sandbox/internal/webhook"
	"github.com/spf13/cobra"
)

func signCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign [payload-file]",
		Short: "Print the webhook signature for a payload (stdin if no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			payload, err := readPayload(cmd, args)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), webhook.Sign(payload, secret))
			return nil
		},
	}

	cmd.Flags().StringP("secret", "s", "", "Webhook signing secret")
	cmd.MarkFlagRequired("secret")
	return cmd
}

func verifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [payload-file]",
		Short: "Check a webhook signature against a payload (stdin if no file)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			signature, _ := cmd.Flags().GetString("signature")
			payload, err := readPayload(cmd, args)
			if err != nil {
				return err
			}
			if !webhook.Verify(payload, signature, secret) {
				return fmt.Errorf("signature does not match")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signature valid")
			return nil
		},
	}

	cmd.Flags().StringP("secret", "s", "", "Webhook signing secret")
	cmd.Flags().String("signature", "", "Value of the signature header")
	cmd.MarkFlagRequired("secret")
	cmd.MarkFlagRequired("signature")
	return cmd
}

func readPayload(cmd *cobra.Command, args []string) ([]byte, error) {
	if len(args) == 0 {
		return io.ReadAll(cmd.InOrStdin())
	}
	payload, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", err)
	}
	return payload, nil
}
