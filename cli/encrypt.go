package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/hengadev/encxorm"
)

var errNotInteractive = errors.New("refusing to encrypt without confirmation: stdin is not a terminal, pass --yes")

// isTerminal reports whether in is an interactive terminal.
var isTerminal = func(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newEncryptCommand(open Opener, configPath *string) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "encrypt-database [encryptor] [batch-size]",
		Short: "Encrypt every stored value that is still plaintext",
		Long: `Walks every table declared in the configuration and encrypts the
values of encrypted columns that are still plaintext. Values that are
already encrypted are left untouched, so the command can be re-run after
an interruption.

The encryptor defaults to the configured one and the batch size to
batch_size.`,
		Args: cobra.MaximumNArgs(2),
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
			batchSize := env.Config.BatchSize
			if len(args) > 1 {
				n, err := strconv.Atoi(args[1])
				if err != nil || n < 1 {
					return fmt.Errorf("%w: batch size must be a positive integer, got %q", encxorm.ErrInvalidConfiguration, args[1])
				}
				batchSize = n
			}
			if !env.Registry.Has(name) {
				return explainUnknownEncryptor(cmd, &encxorm.UnknownEncryptorError{Name: name, Supported: env.Registry.Names()})
			}

			out := cmd.OutOrStdout()
			if !yes {
				report, err := encxorm.BuildStatus(ctx, env.Source, env.Resolver)
				if err != nil {
					return err
				}
				question := fmt.Sprintf("%d entities found which are containing properties with the encryption tag.\n"+
					"Which are going to be encrypted with [%s].\n"+
					"Wrong settings can mess up your data and it will be unrecoverable.\n"+
					"I advise you to make a backup.\n"+
					"Continue with this action?", report.Eligible, name)
				ok, err := confirm(cmd, question)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(out, "Aborted, nothing was encrypted.")
					return nil
				}
			}

			fmt.Fprintln(out, "Encrypting all fields can take up to several minutes depending on the database size.")

			metrics := encxorm.NewInMemoryMetricsCollector()
			opts := []encxorm.Option{
				encxorm.WithRegistry(env.Registry),
				encxorm.WithLogger(env.Logger),
				encxorm.WithObservabilityHook(encxorm.NewCompositeHook(
					encxorm.NewLoggingHook(env.Logger),
					encxorm.NewMetricsHook(metrics),
				)),
			}
			if env.Resolver != nil {
				opts = append(opts, encxorm.WithResolver(env.Resolver))
			}
			migrator, err := encxorm.NewMigrator(env.Source, opts...)
			if err != nil {
				return err
			}
			result, err := migrator.Migrate(ctx,
				encxorm.WithMigrationEncryptor(name),
				encxorm.WithBatchSize(batchSize),
				encxorm.WithProgress(newLineProgress(out)),
			)
			if err != nil {
				return explainUnknownEncryptor(cmd, err)
			}

			for _, t := range result.Types {
				batches := metrics.Counter("encxorm.migrate.commits", map[string]string{"entity_type": t.Type})
				fmt.Fprintf(out, "%s: %d values encrypted in %d batches.\n", t.Type, t.Encrypted, batches)
			}
			fmt.Fprintf(out, "Encryption finished. Values encrypted: %d values.\n", result.Encrypted)
			fmt.Fprintln(out, "All values are now encrypted.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

// confirm asks question on the command's input. Anything but y or yes is a
// no. A non-interactive input is refused.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	in := cmd.InOrStdin()
	if !isTerminal(in) {
		return false, errNotInteractive
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s (y/yes) ", question)
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// lineProgress prints one line per committed batch.
type lineProgress struct {
	out   io.Writer
	total int
	done  int
}

func newLineProgress(out io.Writer) *lineProgress {
	return &lineProgress{out: out}
}

func (p *lineProgress) Start(entityType string, total int) {
	p.total, p.done = total, 0
	fmt.Fprintf(p.out, "Processing %s\n", entityType)
}

func (p *lineProgress) Advance(n int) {
	p.done += n
	fmt.Fprintf(p.out, "  %d/%d\n", p.done, p.total)
}

func (p *lineProgress) Finish(entityType string) {
	fmt.Fprintf(p.out, "  %s done\n", entityType)
}
