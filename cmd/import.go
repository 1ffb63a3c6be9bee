/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var importUser string

// importCmd represents the import command.
var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk import a .xlsx or .csv spreadsheet into a user's inventory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		svc, err := openServices(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		user, err := svc.Users.GetByUsername(cmd.Context(), importUser)
		if err != nil {
			return fmt.Errorf("find user %q: %w", importUser, err)
		}

		report, err := svc.Importer.ImportFile(cmd.Context(), user.ID, filepath.Base(args[0]), data)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, report.Message)
		for _, rowErr := range report.Errors {
			fmt.Fprintln(out, "  "+rowErr.String())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVar(&importUser, "user", "", "username owning the imported products")
	_ = importCmd.MarkFlagRequired("user")
}
