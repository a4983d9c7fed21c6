package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"quizapp-service/internal/paramcodec"
)

// NewTokenCmd groups helpers for building and inspecting encoded_params tokens.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Encode or decode step tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:     "encode KEY=VALUE...",
		Short:   "Build a token from query pairs, e.g. answer[]=a current_step=2",
		Args:    cobra.MinimumNArgs(1),
		Example: "quizapp token encode 'answer[]=Tibia' 'answer[]=Intel' current_step=2",
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := paramcodec.ParseQuery(strings.Join(args, "&"))
			if err != nil {
				return err
			}
			token, err := paramcodec.Encode(params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "decode TOKEN",
		Short: "Print the parameters carried by a token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := paramcodec.Decode(args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(params, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	})
	return cmd
}
