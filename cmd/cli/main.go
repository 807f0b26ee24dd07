package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"goprep/adapters/execsvc"
	"goprep/adapters/localexec"
	"goprep/adapters/tabular"
	"goprep/domain/core"
	"goprep/domain/dataset"
	"goprep/domain/preprocess"
	"goprep/internal/preprocessing"
	"goprep/internal/schema"
	"goprep/ports"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "goprep-cli",
		Short: "goprep CLI for summarizing and preprocessing tabular datasets",
	}

	rootCmd.AddCommand(
		newSummarizeCmd(),
		newPreprocessCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newSummarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize [files...]",
		Short: "Print column summaries, roles and suggested defaults",
		Long: `Summarize CSV or XLSX files the way the server does after an upload.

Example: goprep-cli summarize train.csv test.csv`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handles := handlesFor(args)
			summaries, suggestions, err := tabular.NewSummaryProvider(tabular.DefaultInferenceConfig()).Summarize(cmd.Context(), handles)
			if err != nil {
				return fmt.Errorf("failed to summarize: %w", err)
			}
			classification := schema.Classify(summaries)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"summaries":      summaries,
				"classification": classification,
				"roles":          classification.Roles(),
				"suggestions":    suggestions,
			})
		},
	}
}

type preprocessFlags struct {
	missing     string
	noScaling   bool
	scaleCols   []string
	encoding    string
	encodeCols  []string
	target      string
	remote      string
	outputDir   string
	kfold       int
	workers     int
	timeout     time.Duration
	suggestions bool
}

func newPreprocessCmd() *cobra.Command {
	var f preprocessFlags

	cmd := &cobra.Command{
		Use:   "preprocess [files...]",
		Short: "Preprocess files in one batch submission",
		Long: `Summarize the files, apply suggested defaults, validate the configuration
and submit the batch to the local engine or a remote execution service.

Flags override suggested defaults. Column flags switch the operation to
subset mode.

Example: goprep-cli preprocess train.csv test.csv --encoding kfold --target label
         goprep-cli preprocess data.xlsx --remote http://localhost:5000`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPreprocess(cmd, args, f)
		},
	}

	cmd.Flags().StringVar(&f.missing, "missing", "", "Missing-value strategy: mean|median|mode|drop")
	cmd.Flags().BoolVar(&f.noScaling, "no-scaling", false, "Disable standard scaling")
	cmd.Flags().StringSliceVar(&f.scaleCols, "scale-cols", nil, "Scale only these columns")
	cmd.Flags().StringVar(&f.encoding, "encoding", "", "Encoding method: onehot|label|target|kfold")
	cmd.Flags().StringSliceVar(&f.encodeCols, "encode-cols", nil, "Encode only these columns")
	cmd.Flags().StringVar(&f.target, "target", "", "Target column")
	cmd.Flags().StringVar(&f.remote, "remote", os.Getenv("EXEC_SERVICE_URL"), "Execution service URL (empty runs locally)")
	cmd.Flags().StringVar(&f.outputDir, "out", "data/preprocessed", "Output directory for local runs")
	cmd.Flags().IntVar(&f.kfold, "kfold-splits", 5, "Folds for k-fold target encoding in local runs")
	cmd.Flags().IntVar(&f.workers, "workers", 4, "Datasets processed concurrently in local runs")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Minute, "Submission timeout")
	cmd.Flags().BoolVar(&f.suggestions, "suggestions", true, "Apply suggested missing strategy and target column")
	return cmd
}

func runPreprocess(cmd *cobra.Command, args []string, f preprocessFlags) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), f.timeout)
	defer cancel()
	out := cmd.OutOrStdout()

	handles := handlesFor(args)
	summaries, suggestions, err := tabular.NewSummaryProvider(tabular.DefaultInferenceConfig()).Summarize(ctx, handles)
	if err != nil {
		return fmt.Errorf("failed to summarize: %w", err)
	}

	state := preprocessing.NewState(preprocessing.ApplyOnce)
	state.SeedColumns(schema.Classify(summaries))
	if f.suggestions {
		state.ApplySuggestions(suggestions)
	}
	if err := applyFlags(state, f); err != nil {
		return err
	}
	snap := state.Snapshot()

	exec, downloads := executor(f)
	orchestrator := preprocessing.NewOrchestrator(exec)

	fmt.Fprintf(out, "Submitting %d dataset(s): missing=%s scaling=%t encoding=%s target=%q\n",
		len(handles), snap.Config.MissingStrategy, snap.Config.ScalingEnabled, snap.Config.EncodingMethod, snap.Config.TargetColumn)

	start := time.Now()
	result, err := orchestrator.Submit(ctx, handles, snap, func(percent int) {
		fmt.Fprintf(out, "\rProgress: %3d%%", percent)
	})
	fmt.Fprintln(out)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Completed in %v\n", time.Since(start).Round(time.Millisecond))
	for _, id := range result.SortedIDs() {
		fmt.Fprintf(out, "  %s -> %s\n", id, downloads(result[id]))
	}
	return nil
}

func applyFlags(state *preprocessing.State, f preprocessFlags) error {
	if f.missing != "" {
		ms, err := preprocess.ParseMissingStrategy(f.missing)
		if err != nil {
			return err
		}
		state.SetMissingStrategy(ms)
	}
	if f.encoding != "" {
		em, err := preprocess.ParseEncodingMethod(f.encoding)
		if err != nil {
			return err
		}
		state.SetEncodingMethod(em)
	}
	if f.noScaling {
		state.SetScaling(false)
	}
	if len(f.scaleCols) > 0 {
		state.SetScalingSubsetMode(true)
		state.SetScalingColumns(f.scaleCols)
	}
	if len(f.encodeCols) > 0 {
		state.SetEncodingSubsetMode(true)
		state.SetEncodingColumns(f.encodeCols)
	}
	if f.target != "" {
		state.SetTargetColumn(f.target)
	}
	return nil
}

// executor returns the execution service and a function naming where each
// artifact can be fetched.
func executor(f preprocessFlags) (ports.ExecutionService, func(ref core.ArtifactRef) string) {
	if f.remote != "" {
		client := execsvc.NewClient(strings.TrimRight(f.remote, "/"), f.timeout)
		return client, func(ref core.ArtifactRef) string { return client.DownloadURL(ref) }
	}
	engine := localexec.NewEngine(localexec.Config{
		OutputDir:   f.outputDir,
		Workers:     f.workers,
		KFoldSplits: f.kfold,
		Inference:   tabular.DefaultInferenceConfig(),
	})
	return engine, func(ref core.ArtifactRef) string {
		path, err := engine.ArtifactPath(ref)
		if err != nil {
			return ref.String()
		}
		return path
	}
}

func handlesFor(paths []string) []dataset.Handle {
	handles := make([]dataset.Handle, 0, len(paths))
	for _, p := range paths {
		handles = append(handles, dataset.NewHandle(p))
	}
	return handles
}
