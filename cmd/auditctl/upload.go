package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"auditflow/internal/upload"
)

var uploadCmd = &cobra.Command{
	Use:   "upload FILE...",
	Short: "Upload documents for a company",
	Long: "Upload one or more documents. Every file is attempted; failed files are retried up to --retries times, " +
		"then listed and make the command exit non-zero. Uploading a file named like a failed document retries that document.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runUpload,
}

var (
	uploadCompany string
	uploadRetries int
)

func init() {
	uploadCmd.Flags().StringVar(&uploadCompany, "company", "", "company id (required)")
	uploadCmd.Flags().IntVar(&uploadRetries, "retries", 1, "times to retry each failed file")
	_ = uploadCmd.MarkFlagRequired("company")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	files := make([]upload.File, 0, len(args))
	for _, path := range args {
		f, err := upload.FromPath(path)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()
	if err := s.SelectCompany(ctx, uploadCompany); err != nil {
		return fmt.Errorf("failed to load company %s: %w", uploadCompany, err)
	}

	res, err := s.UploadDocuments(ctx, files)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	results := res.Results
	for attempt := 1; attempt <= uploadRetries; attempt++ {
		retried := false
		for i, r := range results {
			if r.Err == nil {
				continue
			}
			retried = true
			fmt.Fprintf(out, "RETRY   %s (attempt %d): %v\n", r.File, attempt, r.Err)
			results[i].Document, results[i].Err = s.RetryUpload(ctx, r.LocalID)
		}
		if !retried {
			break
		}
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "FAILED  %s: %v\n", r.File, r.Err)
			continue
		}
		fmt.Fprintf(out, "%-7s %s (%s, %s)\n", r.Document.Status, r.File, r.Document.Type, r.Document.ID)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(results))
	}
	if c, ok := s.Company(); ok {
		fmt.Fprintf(out, "Company is now %s\n", c.State)
	}
	return nil
}
