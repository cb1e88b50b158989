package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

type options struct {
	rounds      int
	concurrency int
	jitter      time.Duration
	redisAddr   string
	prefix      string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "authcore-loadtest",
		Short: "Race concurrent logins against one engine and check the persisted token",
		Long: `Each round builds a fresh engine on a Redis token store and fires password,
one-time-code, and federated logins at it concurrently. A round passes when exactly one
login committed and the stored token is the session's token.

Examples:
  # 50 rounds of 32 concurrent logins against in-process Redis
  authcore-loadtest --rounds 50 --concurrency 32

  # Against a real Redis with 5ms of backend jitter
  authcore-loadtest --redis-addr localhost:6379 --jitter 5ms
`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.rounds <= 0 || opts.concurrency <= 0 {
				return fmt.Errorf("rounds and concurrency must be > 0")
			}
			if opts.redisAddr == "" {
				opts.redisAddr = os.Getenv("REDIS_ADDR")
			}
			return run(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.rounds, "rounds", 20, "number of independent engines to race")
	f.IntVar(&opts.concurrency, "concurrency", 16, "concurrent login attempts per round")
	f.DurationVar(&opts.jitter, "jitter", 2*time.Millisecond, "maximum random backend delay per call")
	f.StringVar(&opts.redisAddr, "redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	f.StringVar(&opts.prefix, "prefix", "loadtest", "token key prefix")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "print every round")
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
