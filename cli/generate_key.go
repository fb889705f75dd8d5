package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hengadev/encxorm"
)

func newGenerateKeyCommand(open Opener, configPath *string) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "generate-key [encryptor]",
		Short: "Generate key material for a key-file encryptor",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := open(ctx, *configPath, false)
			if err != nil {
				return explainUnknownEncryptor(cmd, err)
			}
			defer env.Close()

			name := env.Config.Encryptor
			if len(args) > 0 {
				name = args[0]
			}

			src := env.Keys(name)
			if err := encxorm.GenerateKey(ctx, name, src, force); err != nil {
				if errors.Is(err, encxorm.ErrKeyExists) {
					return fmt.Errorf("%w, pass --force to replace it (values encrypted with the old key become unreadable)", err)
				}
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Generated a new key for %s at %s\n", name, keyLocation(src))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "replace an existing key")
	return cmd
}

func keyLocation(src encxorm.KeySource) string {
	switch s := src.(type) {
	case interface{ Path() string }:
		return s.Path()
	case interface{ Location() string }:
		return s.Location()
	}
	return fmt.Sprintf("%T", src)
}
