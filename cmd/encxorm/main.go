// Command encxorm inspects and migrates field-level encryption of a SQL
// database described by a YAML configuration.
//
//	encxorm status --config encxorm.yaml
//	encxorm generate-key xchacha
//	encxorm encrypt-database xchacha 50 --yes
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hengadev/encxorm/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(cli.OpenEnv).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
