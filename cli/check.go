package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hengadev/encxorm"
	"github.com/hengadev/encxorm/internal/health"
)

const probe = "encxorm-health-probe"

var errUnhealthy = errors.New("one or more critical checks failed")

func newCheckCommand(open Opener, configPath *string) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "check [encryptor]",
		Short: "Check that the database and the encryptor are usable",
		Long: `Pings the database, verifies every declared table and column, and
encrypts then decrypts a probe value with the encryptor. Key files are
never created by this command.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := open(ctx, *configPath, true)
			if err != nil {
				return explainUnknownEncryptor(cmd, err)
			}
			defer env.Close()

			name := env.Config.Encryptor
			if len(args) > 0 {
				name = args[0]
			}
			if !env.Registry.Has(name) {
				return explainUnknownEncryptor(cmd, &encxorm.UnknownEncryptorError{Name: name, Supported: env.Registry.Names()})
			}

			checker := health.NewChecker(timeout)
			if env.Ping != nil {
				if err := checker.Register(health.Check{Name: "database", Critical: true, Run: env.Ping}); err != nil {
					return err
				}
			}
			err = checker.Register(health.Check{
				Name:     "encryptor " + name,
				Critical: true,
				Run: func(ctx context.Context) error {
					return roundTrip(ctx, env, name)
				},
			})
			if err != nil {
				return err
			}

			report := checker.Run(ctx)
			out := cmd.OutOrStdout()
			for _, r := range report.Results {
				line := fmt.Sprintf("%-24s %s (%s)", r.Name, r.Status, r.Duration.Round(time.Millisecond))
				if r.Error != "" {
					line += ": " + r.Error
				}
				fmt.Fprintln(out, line)
			}
			fmt.Fprintf(out, "Overall: %s\n", report.Status)

			if report.Status == health.StatusUnhealthy {
				return errUnhealthy
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "timeout of each check")
	return cmd
}

// roundTrip encrypts and decrypts a probe value. Key-file encryptors fail
// when their key is missing instead of generating one.
func roundTrip(ctx context.Context, env *Env, name string) error {
	if encxorm.UsesKeyFile(name) {
		src := env.Keys(name)
		exists, err := src.Exists(ctx)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w at %s, run generate-key first", encxorm.ErrKeyNotFound, keyLocation(src))
		}
	}

	enc, err := env.Registry.New(ctx, name)
	if err != nil {
		return err
	}
	ciphertext, err := enc.Encrypt(ctx, probe)
	if err != nil {
		return fmt.Errorf("encrypt failed: %w", err)
	}
	plaintext, err := enc.Decrypt(ctx, ciphertext)
	if err != nil {
		return fmt.Errorf("decrypt failed: %w", err)
	}
	if plaintext != probe {
		return fmt.Errorf("decrypted probe does not match")
	}
	return nil
}
