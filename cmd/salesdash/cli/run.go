package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/hibiken/asynq"
)

const usage = `usage: salesdash jobs <command>

commands:
  trigger <warmup|invalidate> [-top N]   enqueue a job now
  stats                                  show default queue counters
  scheduled [-size N]                    list scheduled tasks`

// RunJobs executes a jobs subcommand and returns the process exit code.
func RunJobs(ctx context.Context, args []string, redis asynq.RedisClientOpt, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(stderr, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]

	fs := flag.NewFlagSet("jobs "+cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	top := fs.Int("top", 5, "branches whose vendor lists are warmed")
	size := fs.Int("size", 10, "page size")

	var name string
	switch cmd {
	case "trigger":
		if len(rest) == 0 {
			_, _ = fmt.Fprintln(stderr, "jobs trigger: job name required")
			return 2
		}
		name, rest = rest[0], rest[1:]
		if _, err := BuildTask(name, *top); err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 2
		}
	case "stats", "scheduled":
	default:
		_, _ = fmt.Fprintln(stderr, usage)
		return 2
	}
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	jobsCLI, err := NewJobsCLI(redis)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 1
	}
	defer jobsCLI.Close()

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	switch cmd {
	case "trigger":
		info, err := jobsCLI.Trigger(ctx, name, *top)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		_, _ = fmt.Fprintf(stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case "stats":
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		_ = enc.Encode(stats)
	case "scheduled":
		tasks, err := jobsCLI.ListScheduled(ctx, *size)
		if err != nil {
			_, _ = fmt.Fprintln(stderr, err)
			return 1
		}
		for _, task := range tasks {
			_, _ = fmt.Fprintf(stdout, "%s\t%s\t%s\n", task.ID, task.Type, task.NextProcessAt.Format("2006-01-02 15:04:05"))
		}
	}
	return 0
}
