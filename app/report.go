package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"goprep/domain/core"
	"goprep/domain/preprocess"
	"goprep/ports"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// SubmissionReport is the rendered summary of one submission
type SubmissionReport struct {
	Markdown string
	HTML     string
}

// Report renders a recorded submission as markdown and HTML
func (s *PreprocessService) Report(ctx context.Context, id core.SubmissionID) (*SubmissionReport, error) {
	sub, err := s.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	md := RenderMarkdown(sub, s.downloads)
	return &SubmissionReport{Markdown: md, HTML: RenderHTML(md)}, nil
}

// RenderMarkdown writes the configuration, status and download links of a
// submission as a markdown document.
func RenderMarkdown(sub *preprocess.Submission, downloads ports.DownloadResolver) string {
	var b strings.Builder
	cfg := sub.Snapshot.Config

	b.WriteString(fmt.Sprintf("# Preprocessing submission %s\n\n", sub.ID))
	b.WriteString(fmt.Sprintf("- Status: **%s**\n", sub.Status))
	b.WriteString(fmt.Sprintf("- Started: %s\n", sub.StartedAt.UTC().Format(time.RFC3339)))
	if sub.CompletedAt != nil {
		b.WriteString(fmt.Sprintf("- Duration: %s\n", sub.Duration().Round(time.Millisecond)))
	}
	if sub.Error != "" {
		b.WriteString(fmt.Sprintf("- Error: %s\n", escapeCell(sub.Error)))
	}

	b.WriteString("\n## Configuration\n\n")
	b.WriteString("| Setting | Value |\n|---|---|\n")
	b.WriteString(fmt.Sprintf("| Missing values | %s |\n", cfg.MissingStrategy))
	if cfg.ScalingEnabled {
		b.WriteString(fmt.Sprintf("| Scaling | standard (%s) |\n", columnScope(sub.Snapshot.Modes.Scaling, cfg.ScalingColumns)))
	} else {
		b.WriteString("| Scaling | disabled |\n")
	}
	b.WriteString(fmt.Sprintf("| Encoding | %s (%s) |\n", cfg.EncodingMethod, columnScope(sub.Snapshot.Modes.Encoding, cfg.EncodingColumns)))
	target := cfg.TargetColumn
	if target == "" {
		target = "none"
	}
	b.WriteString(fmt.Sprintf("| Target column | %s |\n", escapeCell(target)))

	b.WriteString("\n## Datasets\n\n")
	if len(sub.Result) == 0 {
		for _, id := range sub.DatasetIDs {
			b.WriteString(fmt.Sprintf("- %s\n", escapeCell(id.String())))
		}
		return b.String()
	}
	b.WriteString("| Dataset | Output |\n|---|---|\n")
	for _, id := range sub.Result.SortedIDs() {
		ref := sub.Result[id]
		link := ref.String()
		if downloads != nil {
			link = fmt.Sprintf("[%s](%s)", escapeCell(ref.String()), downloads.DownloadURL(ref))
		}
		b.WriteString(fmt.Sprintf("| %s | %s |\n", escapeCell(id.String()), link))
	}
	return b.String()
}

// RenderHTML converts markdown to an HTML fragment
func RenderHTML(md string) string {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return string(markdown.ToHTML([]byte(md), p, renderer))
}

func columnScope(subset bool, cols []string) string {
	if !subset {
		return "all eligible columns"
	}
	return escapeCell(strings.Join(cols, ", "))
}

func escapeCell(s string) string {
	return strings.NewReplacer("|", "\\|", "\n", " ").Replace(s)
}
