package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"auditflow/internal/domain"
	"auditflow/internal/session"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Start, follow and inspect compliance audits",
}

var auditStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start an audit for a company",
	Args:  cobra.NoArgs,
	RunE:  runAuditStart,
}

var auditWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Resume following a company's in-flight audit until it finishes",
	Args:  cobra.NoArgs,
	RunE:  runAuditWatch,
}

var auditShowCmd = &cobra.Command{
	Use:   "show AUDIT_ID",
	Short: "Show an audit and its findings",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditShow,
}

var (
	auditCompany string
	auditWatch   bool
	auditTimeout time.Duration
)

func init() {
	auditStartCmd.Flags().StringVar(&auditCompany, "company", "", "company id (required)")
	auditStartCmd.Flags().BoolVar(&auditWatch, "watch", false, "follow the audit until it finishes")
	auditWatchCmd.Flags().StringVar(&auditCompany, "company", "", "company id (required)")
	_ = auditStartCmd.MarkFlagRequired("company")
	_ = auditWatchCmd.MarkFlagRequired("company")
	auditCmd.PersistentFlags().DurationVar(&auditTimeout, "timeout", 10*time.Minute, "give up watching after this long")

	auditCmd.AddCommand(auditStartCmd, auditWatchCmd, auditShowCmd)
	rootCmd.AddCommand(auditCmd)
}

func runAuditStart(cmd *cobra.Command, _ []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()
	if err := s.SelectCompany(ctx, auditCompany); err != nil {
		return fmt.Errorf("failed to load company %s: %w", auditCompany, err)
	}
	a, err := s.StartAudit(ctx)
	if err != nil {
		return fmt.Errorf("failed to start audit: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Audit %s queued\n", a.ID)
	if !auditWatch {
		return nil
	}
	return follow(ctx, cmd.OutOrStdout(), s)
}

func runAuditWatch(cmd *cobra.Command, _ []string) error {
	s, err := newSession()
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()
	if err := s.SelectCompany(ctx, auditCompany); err != nil {
		return fmt.Errorf("failed to load company %s: %w", auditCompany, err)
	}
	err = follow(ctx, cmd.OutOrStdout(), s)
	if errors.Is(err, session.ErrNoAudit) {
		fmt.Fprintln(cmd.OutOrStdout(), "No audit in progress")
		return nil
	}
	return err
}

func follow(ctx context.Context, out io.Writer, s *session.Session) error {
	ctx, cancel := context.WithTimeout(ctx, auditTimeout)
	defer cancel()

	a, err := s.WaitForAudit(ctx, func(a domain.Audit) {
		fmt.Fprintf(out, "[%3d%%] %s %s\n", a.Progress, a.Status, a.Summary)
	})
	if errors.Is(err, session.ErrNoAudit) {
		return err
	}
	if err != nil {
		return fmt.Errorf("stopped watching: %w", err)
	}
	printAudit(out, a)
	if c, ok := s.Company(); ok {
		fmt.Fprintf(out, "Company is now %s\n", c.State)
	}
	return nil
}

func runAuditShow(cmd *cobra.Command, args []string) error {
	client := newClient()
	a, err := client.GetAudit(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to load audit: %w", err)
	}
	printAudit(cmd.OutOrStdout(), a)
	return nil
}

func printAudit(out io.Writer, a domain.Audit) {
	fmt.Fprintf(out, "Audit %s: %s (%s)\n", a.ID, a.Status, a.Summary)
	fmt.Fprintf(out, "Hard failures: %d  Soft failures: %d  Confidence: %d%%\n",
		a.Metrics.HardFailures, a.Metrics.SoftFailures, a.Metrics.ConfidenceScore)
	if len(a.Findings) == 0 {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tSEVERITY\tSTATUS\tCONFIDENCE\tDESCRIPTION")
	for _, f := range a.Findings {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.0f%%\t%s\n", f.RuleID, f.Type, f.Status, f.Confidence*100, f.Description)
	}
	_ = tw.Flush()
}
