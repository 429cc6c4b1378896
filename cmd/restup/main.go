// Command restup serves batched upserts and claims over SQLite and MySQL
// tables.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fangwd/restup/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "restup:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
