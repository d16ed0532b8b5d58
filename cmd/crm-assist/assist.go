package main

import (
	"github.com/spf13/cobra"

	"github.com/shpitdev/crm-assist/internal/intake"
	"github.com/shpitdev/crm-assist/internal/server"
	"github.com/shpitdev/crm-assist/pkg/assist/prompt"
)

func newEnrichCmd(a *app) *cobra.Command {
	var create, manual bool
	var contact intake.Contact

	cmd := &cobra.Command{
		Use:   "enrich <company name or URL>",
		Short: "Infer a lead profile from a company name or website",
		Example: `  crm-assist enrich acme-robotics.com
  crm-assist enrich "Acme Robotics" --create --contact-name "Jane Doe"
  crm-assist enrich acme.io --create --manual`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			if manual {
				company, deal, err := a.mapper().Lead(input, nil, contact)
				if err != nil {
					return err
				}
				return a.print(server.EnrichLeadResponse{Company: &company, Deal: &deal})
			}
			if create {
				if err := intake.CheckInput(input); err != nil {
					return err
				}
			}

			gw, err := a.gateway(cmd.Context(), nil)
			if err != nil {
				return err
			}
			lead, err := gw.EnrichLead(cmd.Context(), input)
			if err != nil {
				return err
			}
			resp := server.EnrichLeadResponse{Lead: lead}
			if create {
				company, deal, err := a.mapper().Lead(input, &lead, contact)
				if err != nil {
					return err
				}
				resp.Company, resp.Deal = &company, &deal
			}
			return a.print(resp)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&create, "create", false, "Also print the company and deal that would be created")
	f.BoolVar(&manual, "manual", false, "Skip enrichment and build the company from the input alone (implies --create)")
	f.StringVar(&contact.Name, "contact-name", "", "Contact name recorded in the company notes")
	f.StringVar(&contact.Email, "contact-email", "", "Contact email recorded in the company notes")
	f.StringVar(&contact.Phone, "contact-phone", "", "Contact phone recorded in the company notes")
	return cmd
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var accept bool

	cmd := &cobra.Command{
		Use:   "analyze <message-id>",
		Short: "Draft a reply and suggest tasks for a workspace message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.workspace()
			if err != nil {
				return err
			}
			msg, deal, company, err := ws.MessageContext(args[0])
			if err != nil {
				return err
			}
			gw, err := a.gateway(cmd.Context(), nil)
			if err != nil {
				return err
			}
			analysis, err := gw.AnalyzeMessage(cmd.Context(), msg, deal, company)
			if err != nil {
				return err
			}
			resp := server.AnalyzeMessageResponse{Analysis: analysis}
			if accept {
				resp.Tasks = a.mapper().Tasks(analysis, msg)
			}
			return a.print(resp)
		},
	}
	cmd.Flags().BoolVar(&accept, "accept", false, "Also print the tasks built from every suggestion")
	return cmd
}

func newPrepareCallCmd(a *app) *cobra.Command {
	var depth string

	cmd := &cobra.Command{
		Use:   "prepare-call <deal-id>",
		Short: "Build a call briefing from a deal, its company and its interaction history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := prompt.ParseDepth(depth)
			if err != nil {
				return err
			}
			ws, err := a.workspace()
			if err != nil {
				return err
			}
			deal, company, interactions, err := ws.DealContext(args[0])
			if err != nil {
				return err
			}
			gw, err := a.gateway(cmd.Context(), nil)
			if err != nil {
				return err
			}
			briefing, err := gw.PrepareCall(cmd.Context(), deal, company, interactions, d)
			if err != nil {
				return err
			}
			return a.print(briefing)
		},
	}
	cmd.Flags().StringVar(&depth, "depth", string(prompt.DepthStandard), "Briefing depth: Quick, Standard or Deep")
	return cmd
}

func newOutreachCmd(a *app) *cobra.Command {
	var tone string

	cmd := &cobra.Command{
		Use:   "outreach <deal-id>",
		Short: "Draft a short outreach message for a deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := a.workspace()
			if err != nil {
				return err
			}
			deal, company, _, err := ws.DealContext(args[0])
			if err != nil {
				return err
			}
			gw, err := a.gateway(cmd.Context(), nil)
			if err != nil {
				return err
			}
			draft, err := gw.GenerateOutreach(cmd.Context(), deal, company, tone)
			if err != nil {
				return err
			}
			return a.print(draft)
		},
	}
	cmd.Flags().StringVar(&tone, "tone", "", "Tone of the message, e.g. friendly or formal (default neutral)")
	return cmd
}
