package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage library profiles",
	}

	cmd.AddCommand(
		newProfileListCmd(),
		newProfileUseCmd(),
		newProfileDeleteCmd(),
		newProfileShowCmd(),
	)

	return cmd
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List profiles",
		RunE: func(_ *cobra.Command, _ []string) error {
			deps, err := buildDeps()
			if err != nil {
				return err
			}

			profiles := deps.registry.ProfilesSafe()

			if flagJSON {
				return printResult(profiles)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tACTIVE\tBASE URL\tSERVICE KEY\tSCHEMES")

			for _, p := range profiles {
				active := ""
				if p.Active {
					active = "*"
				}

				keySet := "-"
				if p.ServiceAPIKeySet {
					keySet = "set"
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", p.Name, active, p.BaseURL, keySet, p.SchemeCount)
			}

			return w.Flush()
		},
	}
}

func newProfileUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Switch the active profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			deps, err := buildDeps()
			if err != nil {
				return err
			}

			if err := deps.registry.SetActiveProfile(args[0]); err != nil {
				return err
			}

			fmt.Printf("active profile: %s\n", args[0])

			return nil
		},
	}
}

func newProfileDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			deps, err := buildDeps()
			if err != nil {
				return err
			}

			return deps.registry.DeleteProfile(args[0])
		},
	}
}

func newProfileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the active profile (credentials masked)",
		RunE: func(_ *cobra.Command, _ []string) error {
			deps, err := buildDeps()
			if err != nil {
				return err
			}

			return printResult(deps.registry.GetSafe())
		},
	}
}
