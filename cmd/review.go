package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	reviewCandidateID string
	reviewReviewerID  string
	reviewNotes       string
)

var approveCandidateCmd = &cobra.Command{
	Use:   "approve-candidate",
	Short: "Approve a pending match candidate",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("match"); err != nil {
			return err
		}
		if reviewCandidateID == "" || reviewReviewerID == "" {
			return eris.New("approve-candidate: --candidate and --reviewer are required")
		}
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{review: true})
		if err != nil {
			return err
		}
		defer env.Close()

		m, err := env.Resolver.Approve(ctx, reviewCandidateID, reviewReviewerID)
		if err != nil {
			return err
		}
		zap.L().Info("approve-candidate: approved", zap.String("match_id", m.ID))
		return nil
	},
}

var rejectCandidateCmd = &cobra.Command{
	Use:   "reject-candidate",
	Short: "Reject a pending match candidate",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("match"); err != nil {
			return err
		}
		if reviewCandidateID == "" || reviewReviewerID == "" {
			return eris.New("reject-candidate: --candidate and --reviewer are required")
		}
		ctx := cmd.Context()
		env, err := initEnv(ctx, envOptions{review: true})
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Resolver.Reject(ctx, reviewCandidateID, reviewReviewerID, reviewNotes); err != nil {
			return err
		}
		zap.L().Info("reject-candidate: rejected", zap.String("candidate_id", reviewCandidateID))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{approveCandidateCmd, rejectCandidateCmd} {
		c.Flags().StringVar(&reviewCandidateID, "candidate", "", "match candidate id")
		c.Flags().StringVar(&reviewReviewerID, "reviewer", "", "reviewer id")
		rootCmd.AddCommand(c)
	}
	rejectCandidateCmd.Flags().StringVar(&reviewNotes, "notes", "", "rejection notes")
}
