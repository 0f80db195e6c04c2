package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/use-agent/maprank/models"
)

var lookupCommand = &cobra.Command{
	Use:   "lookup",
	Short: "Resolve a single (query, target) pair",
	Args:  cobra.NoArgs,
	RunE:  runLookupCmd,
}

var (
	lookupQuery      string
	lookupTarget     string
	lookupMaxScrolls int
)

func init() {
	lookupCommand.Flags().StringVar(&lookupQuery, "query", "", "Search text")
	lookupCommand.Flags().StringVar(&lookupTarget, "target", "", "Exact display name to find")
	lookupCommand.Flags().IntVar(&lookupMaxScrolls, "max-scrolls", 0, "Override the scroll budget")
	_ = lookupCommand.MarkFlagRequired("query")
	_ = lookupCommand.MarkFlagRequired("target")
	rootCmd.AddCommand(lookupCommand)
}

func runLookupCmd(cmd *cobra.Command, _ []string) error {
	pair := models.Pair{Query: lookupQuery, Target: lookupTarget}
	if err := pair.Validate(); err != nil {
		return err
	}

	a, err := newApp(cmd.ErrOrStderr(), false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sess, err := a.browser.Open(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	res := a.runner.Resolver
	if lookupMaxScrolls > 0 {
		res = res.WithOptions(res.Options().WithMaxScrollAttempts(lookupMaxScrolls))
	}
	out, rerr := res.Resolve(ctx, sess, pair)

	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", pair.Query, pair.Target, out.Outcome)
	if d := models.DetailOf(rerr); d != nil {
		return fmt.Errorf("%s: %s", d.Code, d.Message)
	}
	return nil
}
