package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/getpup/keypool-orchestrator"
	"github.com/getpup/keypool-orchestrator/lifecycle"
	"github.com/getpup/keypool-orchestrator/metrics"
)

var probeFlags struct {
	owner    string
	provider string
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe every credential of an owner and record the outcome",
	Long: `Send one minimal call with every credential of the owner for the provider,
regardless of status or cooldown, and persist the resulting status.`,
	Args: cobra.NoArgs,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeFlags.owner, "owner", "", "owner of the credential pool (required)")
	probeCmd.Flags().StringVar(&probeFlags.provider, "provider", "", "upstream provider (required)")
	_ = probeCmd.MarkFlagRequired("owner")
	_ = probeCmd.MarkFlagRequired("provider")
}

func runProbe(cmd *cobra.Command, _ []string) error {
	if err := app.requireProvider(probeFlags.provider); err != nil {
		return err
	}

	ctx := cmd.Context()

	creds, err := app.Store.ListByOwnerAndProvider(ctx, probeFlags.owner, probeFlags.provider)
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		return fmt.Errorf("%w: owner %s has no %s credentials", keypool.ErrCredentialExhausted, probeFlags.owner, probeFlags.provider)
	}

	var collector *metrics.Collector
	if app.Config.Metrics.Enabled {
		collector = metrics.NewCollector(probeFlags.provider)
	}

	lc := lifecycle.New(lifecycle.Config{
		Store:     app.Store,
		Logger:    app.Logger,
		Collector: collector,
	})
	prober := lifecycle.NewProber(lifecycle.ProberConfig{
		Caller:    app.Router,
		Lifecycle: lc,
		Models:    app.Config.Providers.ProbeModels,
		Timeout:   app.Config.Run.ProbeTimeout,
		Logger:    app.Logger,
		Collector: collector,
	})

	results, err := prober.ProbeAll(ctx, creds)
	if err != nil {
		app.Logger.Error(ctx, "failed to persist probe results", "error", err)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSABLE\tSTATUS\tKIND")
	usable := 0
	for _, r := range results {
		kind := string(r.Kind)
		if kind == "" {
			kind = "-"
		}
		if r.Usable {
			usable++
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", r.Credential.ID, r.Usable, r.Status, kind)
	}
	_ = w.Flush()

	app.Logger.Info(ctx, "probe completed",
		"ownerID", probeFlags.owner, "provider", probeFlags.provider,
		"probed", len(results), "usable", usable)

	return err
}
