// Package cli implements the encxorm operator commands.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hengadev/encxorm"
)

// NewRootCommand returns the command tree. open is called by each command
// once its arguments are parsed.
func NewRootCommand(open Opener) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "encxorm",
		Short:         "Manage field-level encryption of stored data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv(encxorm.EnvConfigFile), "YAML configuration file")

	root.AddCommand(
		newStatusCommand(open, &configPath),
		newEncryptCommand(open, &configPath),
		newGenerateKeyCommand(open, &configPath),
		newCheckCommand(open, &configPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), encxorm.VersionInfo())
			},
		},
	)
	return root
}

// explainUnknownEncryptor prints the supported names when err is an
// unknown encryptor, then returns err unchanged.
func explainUnknownEncryptor(cmd *cobra.Command, err error) error {
	var unknown *encxorm.UnknownEncryptorError
	if errors.As(err, &unknown) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Given encryptor does not exist.")
		fmt.Fprintf(cmd.ErrOrStderr(), "Supported encryptors: %s\n", strings.Join(unknown.Supported, ", "))
	}
	return err
}
