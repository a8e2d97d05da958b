package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lehigh-university-libraries/scribe/pkg/hocr"
	"github.com/lehigh-university-libraries/scribe/pkg/pipeline"
	"github.com/spf13/cobra"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe",
	Short: "Transcribe a handwritten page image",
	Long: `Transcribe a page image by detecting word boxes, grouping them into lines
and recognizing each line crop in batches.

The page text is printed one line per detected line, top to bottom. Use
--format hocr to get an hOCR document with the line geometry instead.`,
	RunE: runTranscribe,
}

func init() {
	RootCmd.AddCommand(transcribeCmd)

	transcribeCmd.Flags().String("image", "", "Path to input image file (required)")
	transcribeCmd.Flags().String("format", "text", "Output format: text, hocr")
	transcribeCmd.Flags().StringP("output", "o", "", "Output path (prints to stdout if not specified)")
	addPipelineFlags(transcribeCmd)

	err := transcribeCmd.MarkFlagRequired("image")
	if err != nil {
		slog.Error("Unable to mark image as required", "err", err)
		os.Exit(1)
	}
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	imagePath, err := cmd.Flags().GetString("image")
	if err != nil {
		return err
	}
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return err
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	if format != "text" && format != "hocr" {
		return fmt.Errorf("unsupported format %q: use text or hocr", format)
	}

	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("failed to read input image: %w", err)
	}

	c, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	b, err := buildPipeline(cmd.Context(), c)
	if err != nil {
		return err
	}
	defer b.Close()

	slog.Info("Transcribing image", "image", imagePath, "format", format)
	doc, err := b.pipeline.TranscribeBytes(cmd.Context(), data)
	if err != nil {
		return err
	}
	if usage, ok := b.Usage(); ok {
		slog.Info("Provider usage", "input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
	}

	if outputPath == "" {
		return writeDocument(cmd.OutOrStdout(), doc, format)
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := writeDocument(f, doc, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeDocument(w io.Writer, doc pipeline.Document, format string) error {
	var out string
	switch format {
	case "hocr":
		out = hocr.Build(doc.Regions, doc.Lines, doc.Width, doc.Height)
	default:
		out = doc.Text
	}
	_, err := fmt.Fprintln(w, out)
	return err
}
