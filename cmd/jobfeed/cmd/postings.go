package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bitechdev/JobFeed/pkg/jobs"
)

var (
	draft       jobs.Draft
	application jobs.Application
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Create jobs, apply and review applicants on the backend",
}

var jobsCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Post a new job (admin only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := app.API(cmd.Context()).Create(cmd.Context(), draft)
		if err != nil {
			return err
		}
		store, err := app.Store()
		if err != nil {
			return err
		}
		if _, err := store.Upsert(cmd.Context(), job); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created job %s: %s\n", job.ID, job.Title)
		return nil
	},
}

var jobsApplyCmd = &cobra.Command{
	Use:   "apply <job-id>",
	Short: "Apply to a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := app.API(cmd.Context()).Apply(cmd.Context(), args[0], application); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied to job %s\n", args[0])
		return nil
	},
}

var jobsApplicantsCmd = &cobra.Command{
	Use:   "applicants <job-id>",
	Short: "List applications for a job (admin only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		list, err := app.API(cmd.Context()).Applicants(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(list) == 0 {
			fmt.Fprintln(out, "no applicants")
			return nil
		}
		for _, a := range list {
			applied := "-"
			if !a.AppliedAt.IsZero() {
				applied = a.AppliedAt.Format("2006-01-02 15:04")
			}
			fmt.Fprintf(out, "%s  %s <%s>  %s  %s\n", applied, a.Name, a.Email, a.ResumeURL, a.ID)
		}
		return nil
	},
}

func init() {
	f := jobsCreateCmd.Flags()
	f.StringVar(&draft.Title, "title", "", "job title")
	f.StringVar(&draft.Company, "company", "", "company name")
	f.StringVar(&draft.Location, "location", "", "location")
	f.StringVar(&draft.Description, "description", "", "description")
	f.StringSliceVar(&draft.Requirements, "requirement", nil, "requirement, repeatable or comma separated")
	f.StringVar(&draft.Salary, "salary", "", "salary range")
	f.StringVar(&draft.Type, "type", "FULL_TIME", "FULL_TIME, PART_TIME, CONTRACT or INTERNSHIP")

	jobsApplyCmd.Flags().StringVar(&application.ResumeURL, "resume-url", "", "link to the resume")
	jobsApplyCmd.Flags().StringVar(&application.CoverLetter, "cover-letter", "", "cover letter text")
	_ = jobsApplyCmd.MarkFlagRequired("resume-url")

	jobsCmd.AddCommand(jobsCreateCmd, jobsApplyCmd, jobsApplicantsCmd)
	rootCmd.AddCommand(jobsCmd)
}
