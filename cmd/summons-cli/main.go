package main

import (
	"context"

	"summons-lookup/cmd/summons-cli/commands"
	"summons-lookup/pkg/osutil"
)

func main() {
	ctx, cancel := osutil.SignalContext(context.Background())
	defer cancel()
	commands.ExecuteContext(ctx)
}
