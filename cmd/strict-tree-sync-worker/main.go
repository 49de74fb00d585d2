// Command strict-tree-sync-worker executes one staged group. The batch
// framework runs it once per group and reads the exit code: 0 clean, 1 when
// pairs failed or mismatched, 2 on a fatal error.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/yuya-takeyama/strict-tree-sync/internal/cli"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var f cli.Flags
	cmd := cli.NewRunGroupCommand(&f)
	cmd.Use = "strict-tree-sync-worker <group-path>"
	cmd.Version = version
	cli.AddFlags(cmd, &f)
	cli.Execute(ctx, cmd)
}
