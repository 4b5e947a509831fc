package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/getpup/keypool-orchestrator"
)

var runFlags struct {
	owner    string
	provider string
	topic    string
	audience string
	keywords []string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the content pipeline for an owner and provider",
	Long: `Run the content pipeline once and print the result as YAML.

The foundation stage plans the article, then the tool, article and FAQ branches
run concurrently against the owner's credentials. The command exits non-zero
when the pipeline fails; a partially completed run still prints its artifact.`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	runCmd.Flags().StringVar(&runFlags.owner, "owner", "", "owner of the credential pool (required)")
	runCmd.Flags().StringVar(&runFlags.provider, "provider", "", "upstream provider, e.g. gemini or openai (required)")
	runCmd.Flags().StringVar(&runFlags.topic, "topic", "", "subject of the generated content (required)")
	runCmd.Flags().StringVar(&runFlags.audience, "audience", "", "intended audience")
	runCmd.Flags().StringSliceVar(&runFlags.keywords, "keyword", nil, "keyword to cover (repeatable)")
	_ = runCmd.MarkFlagRequired("owner")
	_ = runCmd.MarkFlagRequired("provider")
	_ = runCmd.MarkFlagRequired("topic")
}

// runReport is the printed form of a keypool.Result.
type runReport struct {
	RunID    string              `yaml:"run_id"`
	Status   string              `yaml:"status"`
	Reason   string              `yaml:"reason,omitempty"`
	Error    string              `yaml:"error,omitempty"`
	Duration string              `yaml:"duration"`
	Title    string              `yaml:"title,omitempty"`
	Sections []string            `yaml:"sections,omitempty"`
	Outputs  map[string][]string `yaml:"outputs,omitempty"`
	Branches []branchLine        `yaml:"branches"`
}

type branchLine struct {
	Name       string `yaml:"name"`
	Required   bool   `yaml:"required"`
	Status     string `yaml:"status"`
	FailedStep string `yaml:"failed_step,omitempty"`
	Reason     string `yaml:"reason,omitempty"`
	Error      string `yaml:"error,omitempty"`
}

func newRunReport(result keypool.Result) runReport {
	report := runReport{
		RunID:    result.RunID,
		Status:   string(result.Status),
		Reason:   string(result.Reason),
		Error:    errString(result.Err),
		Duration: result.Duration.String(),
		Title:    result.Artifact.Metadata.Title,
		Sections: result.Artifact.Metadata.Sections,
		Outputs:  result.Artifact.Outputs,
	}
	for _, b := range result.Branches {
		report.Branches = append(report.Branches, branchLine{
			Name:       b.Name,
			Required:   b.Required,
			Status:     string(b.Status),
			FailedStep: b.FailedStep,
			Reason:     string(b.Reason),
			Error:      errString(b.Err),
		})
	}
	return report
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	if err := app.requireProvider(runFlags.provider); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.StartMetrics(ctx)

	result, err := app.Pipeline().Run(ctx, runFlags.owner, runFlags.provider, keypool.WorkflowInput{
		Topic:    runFlags.topic,
		Audience: runFlags.audience,
		Keywords: runFlags.keywords,
	})
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(newRunReport(result)); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if result.Status == keypool.PipelineFailed {
		return fmt.Errorf("pipeline failed: %s", result.Reason)
	}
	return nil
}
