package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hengadev/encxorm"
)

func newStatusCommand(open Opener, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show how many encrypted properties every entity has",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := open(ctx, *configPath, true)
			if err != nil {
				return explainUnknownEncryptor(cmd, err)
			}
			defer env.Close()

			report, err := encxorm.BuildStatus(ctx, env.Source, env.Resolver)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, t := range report.Types {
				if t.EncryptedFields == 0 {
					fmt.Fprintf(out, "%s has no properties which are encrypted.\n", t.Type)
					continue
				}
				fmt.Fprintf(out, "%s has %d properties which are encrypted.\n", t.Type, t.EncryptedFields)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "%d entities found which are containing %d encrypted properties.\n", report.Inspected, report.EncryptedFields)
			return nil
		},
	}
}
