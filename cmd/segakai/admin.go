package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/segakai/segakai/internal/models"
)

func newAdminCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}

	var email string
	promote := &cobra.Command{
		Use:   "promote",
		Short: "Grant admin rights to an account using the admin password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			password, err := readSecret(cmd, "Admin password: ")
			if err != nil {
				return err
			}
			id, err := c.MakeAdmin(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now an admin.\n", id.Email)
			return nil
		},
	}
	promote.Flags().StringVar(&email, "email", "", "email of the account to promote")
	_ = promote.MarkFlagRequired("email")

	cmd.AddCommand(promote)
	return cmd
}

func newConfigCmd(cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and update app configuration (admin only)",
	}

	get := &cobra.Command{
		Use:   "get [key]",
		Short: "Show one configuration entry, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			var entries []models.ConfigEntry
			if len(args) == 1 {
				entry, err := c.GetConfig(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				entries = []models.ConfigEntry{*entry}
			} else if entries, err = c.ListConfig(cmd.Context()); err != nil {
				return err
			}
			return printConfig(cmd.OutOrStdout(), entries)
		},
	}

	set := &cobra.Command{
		Use:   "set <key> [value]",
		Short: "Update a configuration entry; the value is prompted for when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			var value string
			if len(args) == 2 {
				value = args[1]
			} else if value, err = readSecret(cmd, args[0]+": "); err != nil {
				return err
			}
			if err := c.SetConfig(cmd.Context(), args[0], value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s.\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}

func printConfig(out io.Writer, entries []models.ConfigEntry) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tVALUE\tDESCRIPTION")
	for _, e := range entries {
		value := e.Value
		if value == "" {
			value = "(unset)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Key, value, e.Description)
	}
	return tw.Flush()
}
