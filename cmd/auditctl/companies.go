package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"auditflow/internal/domain"
	"auditflow/internal/statemachine"
)

var companiesCmd = &cobra.Command{
	Use:   "companies",
	Short: "List and onboard companies",
}

var companiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List companies with their workflow state",
	Args:  cobra.NoArgs,
	RunE:  runCompaniesList,
}

var companiesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Onboard a new company",
	Args:  cobra.NoArgs,
	RunE:  runCompaniesCreate,
}

var (
	createName     string
	createIndustry string
	createCountry  string
	createWebsite  string
)

func init() {
	companiesCreateCmd.Flags().StringVar(&createName, "name", "", "company name (required)")
	companiesCreateCmd.Flags().StringVar(&createIndustry, "industry", "", "industry (required)")
	companiesCreateCmd.Flags().StringVar(&createCountry, "country", "", "country (required)")
	companiesCreateCmd.Flags().StringVar(&createWebsite, "website", "", "company website")
	_ = companiesCreateCmd.MarkFlagRequired("name")
	_ = companiesCreateCmd.MarkFlagRequired("industry")
	_ = companiesCreateCmd.MarkFlagRequired("country")

	companiesCmd.AddCommand(companiesListCmd, companiesCreateCmd)
	rootCmd.AddCommand(companiesCmd)
}

func runCompaniesList(cmd *cobra.Command, _ []string) error {
	list, err := newClient().GetCompanies(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list companies: %w", err)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tDOCS\tLAST AUDIT")
	for _, c := range list {
		last := "-"
		if c.LastAuditDate != nil {
			last = *c.LastAuditDate
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", c.ID, c.Name, statemachine.Company.Label(c.State), c.DocumentCount, last)
	}
	return tw.Flush()
}

func runCompaniesCreate(cmd *cobra.Command, _ []string) error {
	draft := domain.CompanyDraft{Name: createName, Industry: createIndustry, Country: createCountry}
	if createWebsite != "" {
		draft.Website = domain.Ptr(createWebsite)
	}
	c, err := newClient().CreateCompany(cmd.Context(), draft)
	if err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created %s (%s) in state %s\n", c.Name, c.ID, c.State)
	return nil
}
