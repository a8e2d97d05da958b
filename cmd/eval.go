package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/lehigh-university-libraries/scribe/internal/config"
	"github.com/lehigh-university-libraries/scribe/pkg/feedback"
	"github.com/lehigh-university-libraries/scribe/pkg/metrics"
	"github.com/lehigh-university-libraries/scribe/pkg/pipeline"
	"github.com/spf13/cobra"
	yaml "go.yaml.in/yaml/v3"
)

type EvalConfig struct {
	Detector     string   `yaml:"detector"`
	Recognizer   string   `yaml:"recognizer"`
	Provider     string   `yaml:"provider"`
	Model        string   `yaml:"model"`
	Languages    []string `yaml:"languages,omitempty"`
	Temperature  float64  `yaml:"temperature"`
	BatchSize    int      `yaml:"batch_size"`
	Padding      int      `yaml:"padding"`
	MaxDimension int      `yaml:"max_dimension"`
	Dataset      string   `yaml:"dataset"`
	TestRows     []int    `yaml:"rows"`
	Timestamp    string   `yaml:"timestamp"`
}

type EvalResult struct {
	Identifier     string `yaml:"identifier"`
	GroundTruth    string `yaml:"ground_truth"`
	Transcription  string `yaml:"transcription"`
	FailedBatches  int    `yaml:"failed_batches,omitempty"`
	metrics.Result `yaml:",inline"`
}

type EvalSummary struct {
	Config  EvalConfig      `yaml:"config"`
	Summary metrics.Summary `yaml:"summary"`
	Results []EvalResult    `yaml:"results"`
}

// documentSource is the part of the pipeline eval needs
type documentSource interface {
	TranscribeBytes(ctx context.Context, data []byte) (pipeline.Document, error)
}

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate transcription accuracy against the feedback dataset",
	Long: `Evaluate the pipeline by transcribing every image in a feedback dataset and
comparing the output with the corrected text stored next to it.

The dataset is the --dataset directory written by "scribe serve", or the
PostgreSQL feedback table when --database-url is set.

Results are written to evals/eval_<timestamp>.yaml. Pass --config with a
previous results file to rerun it with the same settings.`,
	RunE: runEval,
}

func init() {
	RootCmd.AddCommand(evalCmd)

	evalCmd.Flags().String("dataset", config.Default().DatasetDir, "Feedback dataset directory containing labels.csv")
	evalCmd.Flags().IntSlice("rows", []int{}, "A list of row numbers to run the test on")
	evalCmd.Flags().String("config", "", "Path to previous evaluation results file to rerun")
	evalCmd.Flags().String("database-url", "", "Read the dataset from PostgreSQL instead of --dataset")
	evalCmd.Flags().String("output-dir", "evals", "Directory for evaluation results")
	addPipelineFlags(evalCmd)
}

func runEval(cmd *cobra.Command, args []string) error {
	var evalConfig EvalConfig
	c, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	if configPath != "" {
		evalConfig, err = loadEvalConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyEvalConfig(&c, evalConfig)
		resolveModel(&c)
		evalConfig.Model = c.Model
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid configuration in %s: %w", configPath, err)
		}
		fmt.Printf("Loaded configuration from %s\n", configPath)
	} else {
		testRows, err := cmd.Flags().GetIntSlice("rows")
		if err != nil {
			return fmt.Errorf("failed to fetch rows flag: %w", err)
		}
		evalConfig = newEvalConfig(c, testRows)
	}

	outputDir, err := cmd.Flags().GetString("output-dir")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create evals directory: %w", err)
	}

	dataset, closeDataset, err := openDataset(cmd.Context(), c.DatabaseURL, evalConfig.Dataset)
	if err != nil {
		return err
	}
	defer closeDataset()

	b, err := buildPipeline(cmd.Context(), c)
	if err != nil {
		return err
	}
	defer b.Close()

	results, err := processEvaluation(cmd.Context(), b.pipeline, dataset, evalConfig.TestRows)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	summary := EvalSummary{
		Config:  evalConfig,
		Summary: metrics.Summarize(evalMetrics(results)),
		Results: results,
	}

	outputPath := filepath.Join(outputDir, fmt.Sprintf("eval_%s.yaml", evalConfig.Timestamp))
	if err := saveEvalResults(summary, outputPath); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	fmt.Printf("\nEvaluation completed. Results saved to: %s\n", outputPath)
	printSummaryStats(summary.Summary)
	if usage, ok := b.Usage(); ok {
		fmt.Printf("Provider tokens: %d in, %d out\n", usage.InputTokens, usage.OutputTokens)
	}

	return nil
}

func newEvalConfig(c config.Config, rows []int) EvalConfig {
	return EvalConfig{
		Detector:     c.Detector,
		Recognizer:   c.Recognizer,
		Provider:     c.Provider,
		Model:        c.Model,
		Languages:    c.Languages,
		Temperature:  c.Temperature,
		BatchSize:    c.BatchSize,
		Padding:      c.Padding,
		MaxDimension: c.MaxDimension,
		Dataset:      c.DatasetDir,
		TestRows:     rows,
		Timestamp:    time.Now().Format("2006-01-02_15-04-05"),
	}
}

func applyEvalConfig(c *config.Config, e EvalConfig) {
	c.Detector = e.Detector
	c.Recognizer = e.Recognizer
	c.Provider = e.Provider
	c.Model = e.Model
	c.Languages = e.Languages
	c.Temperature = e.Temperature
	c.BatchSize = e.BatchSize
	c.Padding = e.Padding
	c.MaxDimension = e.MaxDimension
}

func loadEvalConfig(configPath string) (EvalConfig, error) {
	var summary EvalSummary

	data, err := os.ReadFile(configPath)
	if err != nil {
		return EvalConfig{}, err
	}

	if err := yaml.Unmarshal(data, &summary); err != nil {
		return EvalConfig{}, err
	}

	// Update timestamp for rerun
	summary.Config.Timestamp = time.Now().Format("2006-01-02_15-04-05")

	return summary.Config, nil
}

// openDataset prefers PostgreSQL when a database URL is configured
func openDataset(ctx context.Context, databaseURL, dir string) (feedback.Dataset, func(), error) {
	if databaseURL != "" {
		store, err := feedback.OpenPostgres(ctx, databaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { store.Close() }, nil
	}
	store, err := feedback.OpenDir(dir)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {}, nil
}

func processEvaluation(ctx context.Context, source documentSource, dataset feedback.Dataset, rows []int) ([]EvalResult, error) {
	records, err := dataset.Records(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("dataset has no labels")
	}

	var results []EvalResult
	for i, rec := range records {
		if len(rows) > 0 && !slices.Contains(rows, i) {
			slog.Debug("Skipping row", "row", i)
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}

		result, err := processRecord(ctx, source, dataset, rec)
		if err != nil {
			slog.Error("Error processing row", "row", i, "filename", rec.Filename, "err", err)
			continue
		}

		results = append(results, result)
		printRowResult(result)
	}

	return results, nil
}

func processRecord(ctx context.Context, source documentSource, dataset feedback.Dataset, rec feedback.Record) (EvalResult, error) {
	data, err := dataset.Image(ctx, rec.Filename)
	if err != nil {
		return EvalResult{}, err
	}

	doc, err := source.TranscribeBytes(ctx, data)
	if err != nil {
		return EvalResult{}, fmt.Errorf("transcription failed: %w", err)
	}

	transcription := doc.Text
	if doc.NoText {
		transcription = ""
	}

	return EvalResult{
		Identifier:    rec.Filename,
		GroundTruth:   rec.Text,
		Transcription: transcription,
		FailedBatches: doc.FailedBatches,
		Result:        metrics.Calculate(rec.Text, transcription),
	}, nil
}

func evalMetrics(results []EvalResult) []metrics.Result {
	out := make([]metrics.Result, len(results))
	for i, r := range results {
		out[i] = r.Result
	}
	return out
}

func saveEvalResults(summary EvalSummary, outputPath string) error {
	data, err := yaml.Marshal(summary)
	if err != nil {
		return err
	}

	return os.WriteFile(outputPath, data, 0644)
}

func printRowResult(result EvalResult) {
	fmt.Printf("\n=== Results for %s ===\n", result.Identifier)
	fmt.Printf("Character Similarity: %.3f\n", result.CharacterSimilarity)
	fmt.Printf("Character Error Rate: %.3f\n", result.CharacterErrorRate)
	fmt.Printf("Word Similarity: %.3f\n", result.WordSimilarity)
	fmt.Printf("Word Accuracy: %.3f\n", result.WordAccuracy)
	fmt.Printf("Word Error Rate: %.3f\n", result.WordErrorRate)
	fmt.Printf("Total Words (Original): %d\n", result.TotalWordsOriginal)
	fmt.Printf("Total Words (Transcribed): %d\n", result.TotalWordsTranscribed)
	fmt.Printf("Correct Words: %d\n", result.CorrectWords)
	fmt.Printf("Substitutions: %d\n", result.Substitutions)
	fmt.Printf("Deletions: %d\n", result.Deletions)
	fmt.Printf("Insertions: %d\n", result.Insertions)
	if result.FailedBatches > 0 {
		fmt.Printf("Failed Batches: %d\n", result.FailedBatches)
	}
}

func printSummaryStats(s metrics.Summary) {
	if s.Count == 0 {
		return
	}

	fmt.Printf("\n=== SUMMARY STATISTICS ===\n")
	fmt.Printf("Total Evaluations: %d\n", s.Count)
	fmt.Printf("Average Character Similarity: %.3f\n", s.AverageCharacterSimilarity)
	fmt.Printf("Average Character Error Rate: %.3f\n", s.AverageCharacterErrorRate)
	fmt.Printf("Average Word Similarity: %.3f\n", s.AverageWordSimilarity)
	fmt.Printf("Average Word Accuracy: %.3f\n", s.AverageWordAccuracy)
	fmt.Printf("Average Word Error Rate: %.3f\n", s.AverageWordErrorRate)
}
