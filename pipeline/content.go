package pipeline

import (
	"fmt"
	"strings"

	"github.com/getpup/keypool-orchestrator"
)

// ContentOptions tunes the operations of ContentWorkflow.
type ContentOptions struct {
	// Model is the primary model for every operation. Empty lets the Caller choose.
	Model string

	// FallbackModels are tried in order when Model is unavailable.
	FallbackModels []string

	// MaxTokens bounds each response (default: 2048; foundation: 1024).
	MaxTokens int
}

// Branch names of ContentWorkflow.
const (
	BranchTool    = "tool"
	BranchArticle = "article"
	BranchFAQ     = "faq"
)

// ContentWorkflow returns the default content workflow.
//
// The foundation produces {title, sections, faqs}. Then, concurrently:
//   - tool (required): generate a tool, validate it, write a usage guide for it
//   - article (required): one section body per section heading
//   - faq (optional): one answer per FAQ prompt, partial results accepted
func ContentWorkflow(opts ContentOptions) Workflow {
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2048
	}

	op := func(name, payload string, maxTokens int) keypool.Operation {
		return keypool.Operation{
			Name:           name,
			Payload:        payload,
			Model:          opts.Model,
			FallbackModels: opts.FallbackModels,
			MaxTokens:      maxTokens,
		}
	}

	single := func(name string, build func(meta keypool.Metadata, input keypool.WorkflowInput, prev []string) string) func(keypool.Metadata, keypool.WorkflowInput, []string) ([]keypool.Operation, error) {
		return func(meta keypool.Metadata, input keypool.WorkflowInput, prev []string) ([]keypool.Operation, error) {
			return []keypool.Operation{op(name, build(meta, input, prev), opts.MaxTokens)}, nil
		}
	}

	foundationTokens := opts.MaxTokens
	if foundationTokens > 1024 {
		foundationTokens = 1024
	}

	return Workflow{
		Foundation: func(input keypool.WorkflowInput) keypool.Operation {
			return op("foundation", foundationPrompt(input), foundationTokens)
		},
		Branches: []Branch{
			{
				Name:     BranchTool,
				Required: true,
				Steps: []Step{
					{
						Name: "generate",
						Operations: single("tool.generate", func(meta keypool.Metadata, input keypool.WorkflowInput, _ []string) string {
							return fmt.Sprintf("Design a small interactive tool for an article titled %q about %s%s. "+
								"Describe its inputs, outputs and the calculation or logic it performs.",
								meta.Title, input.Topic, audienceClause(input))
						}),
						Check: NonEmpty,
					},
					{
						Name: "validate",
						Operations: single("tool.validate", func(meta keypool.Metadata, _ keypool.WorkflowInput, prev []string) string {
							return "Review the following tool specification for correctness and completeness. " +
								"Return the corrected specification only.\n\n" + firstOr(prev, "")
						}),
						Check: NonEmpty,
					},
					{
						Name: "guide",
						Operations: single("tool.guide", func(meta keypool.Metadata, _ keypool.WorkflowInput, prev []string) string {
							return fmt.Sprintf("Write a short step-by-step guide for using this tool on a page titled %q.\n\n%s",
								meta.Title, firstOr(prev, ""))
						}),
						Check: NonEmpty,
					},
				},
			},
			{
				Name:     BranchArticle,
				Required: true,
				Steps: []Step{
					{
						Name: "sections",
						Operations: func(meta keypool.Metadata, input keypool.WorkflowInput, _ []string) ([]keypool.Operation, error) {
							ops := make([]keypool.Operation, 0, len(meta.Sections))
							for i, section := range meta.Sections {
								ops = append(ops, op(fmt.Sprintf("article.section.%d", i),
									fmt.Sprintf("Write the section %q of an article titled %q about %s%s.%s",
										section, meta.Title, input.Topic, audienceClause(input), keywordsClause(input)),
									opts.MaxTokens))
							}
							return ops, nil
						},
						Check: NonEmpty,
					},
				},
			},
			{
				Name: BranchFAQ,
				Steps: []Step{
					{
						Name: "answers",
						Operations: func(meta keypool.Metadata, input keypool.WorkflowInput, _ []string) ([]keypool.Operation, error) {
							ops := make([]keypool.Operation, 0, len(meta.FAQs))
							for i, q := range meta.FAQs {
								ops = append(ops, op(fmt.Sprintf("faq.%d", i),
									fmt.Sprintf("Answer this question about %s in at most three sentences: %s", input.Topic, q),
									opts.MaxTokens/4))
							}
							return ops, nil
						},
						AllowPartial: true,
					},
				},
			},
		},
	}
}

func foundationPrompt(input keypool.WorkflowInput) string {
	return fmt.Sprintf("Plan an article about %s%s.%s\n"+
		"Respond with a single JSON object and nothing else, using exactly these keys:\n"+
		`{"title": string, "sections": [string, ...], "faqs": [string, ...]}`+"\n"+
		"Use 3 to 8 section headings and up to 6 frequently asked questions.",
		input.Topic, audienceClause(input), keywordsClause(input))
}

func audienceClause(input keypool.WorkflowInput) string {
	if input.Audience == "" {
		return ""
	}
	return " for " + input.Audience
}

func keywordsClause(input keypool.WorkflowInput) string {
	if len(input.Keywords) == 0 {
		return ""
	}
	return " Work in these keywords: " + strings.Join(input.Keywords, ", ") + "."
}

func firstOr(values []string, fallback string) string {
	if len(values) == 0 {
		return fallback
	}
	return values[0]
}
