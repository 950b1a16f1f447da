package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	voterCmd.AddCommand(voterRegisterCmd)
	biometricCmd.AddCommand(biometricCheckCmd)
	rootCmd.AddCommand(voterCmd, voteCmd, candidatesCmd, biometricCmd)
}

var voterCmd = &cobra.Command{
	Use:   "voter",
	Short: "Voter registration",
}

var voterRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Verify this device and register as a voter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			if err := check(a.facade.RegisterAsVoter(cmd.Context())); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Registered as a voter. This device can now cast your vote.")
			return nil
		})
	},
}

var voteCmd = &cobra.Command{
	Use:   "vote <candidate-id>",
	Short: "Cast your vote for a candidate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("candidate id must be a positive number, got %q", args[0])
		}
		return withApp(cmd.Context(), func(a *app) error {
			if err := check(a.facade.CastVote(cmd.Context(), id)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Vote cast for candidate %d.\n", id)
			return nil
		})
	},
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List the candidates on the ballot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app) error {
			r := a.facade.Candidates(cmd.Context())
			if err := check(r); err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tPARTY\tREGION")
			for _, c := range r.Data {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.FullName, c.PoliticalParty, c.Region)
			}
			return w.Flush()
		})
	},
}

var biometricCmd = &cobra.Command{
	Use:   "biometric",
	Short: "Device authentication",
}

var biometricCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Report whether this device can authorize voter actions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		support := newGate(cfg).CheckSupport(cmd.Context())
		if !support.Available {
			fmt.Fprintf(cmd.OutOrStdout(), "unavailable: %s\n", support.Reason)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "available (%s)\n", support.Modality)
		return nil
	},
}
