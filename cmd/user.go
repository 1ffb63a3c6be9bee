/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/voicetory/apiserver/config"
	"github.com/voicetory/apiserver/internal/server"
	"github.com/voicetory/apiserver/internal/services"
)

var (
	userUsername string
	userEmail    string
	userPassword string
	userFullName string
)

// userCmd represents the user command.
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an active user account",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openServices(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		user, err := svc.Users.Create(cmd.Context(), services.NewUser{
			Username: userUsername,
			Email:    userEmail,
			Password: userPassword,
			FullName: userFullName,
		})
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Username, user.ID)
		return nil
	},
}

var userDeactivateCmd = &cobra.Command{
	Use:   "deactivate",
	Short: "Deactivate a user and revoke their sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := openServices(cmd)
		if err != nil {
			return err
		}
		defer svc.Close()

		user, err := svc.Users.GetByUsername(cmd.Context(), userUsername)
		if err != nil {
			return fmt.Errorf("find user %q: %w", userUsername, err)
		}
		if err := svc.Users.SetActive(cmd.Context(), user.ID, false); err != nil {
			return fmt.Errorf("deactivate user: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deactivated user %s\n", user.Username)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd, userDeactivateCmd)

	userCreateCmd.Flags().StringVar(&userUsername, "username", "", "username")
	userCreateCmd.Flags().StringVar(&userEmail, "email", "", "email address")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "password")
	userCreateCmd.Flags().StringVar(&userFullName, "full-name", "", "display name")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")

	userDeactivateCmd.Flags().StringVar(&userUsername, "username", "", "username")
	_ = userDeactivateCmd.MarkFlagRequired("username")
}

func openServices(cmd *cobra.Command) (*server.Services, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.StorageBackend == config.BackendMemory {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: STORAGE_BACKEND=memory, changes are lost when the command exits")
	}
	return server.NewServices(cmd.Context(), cfg), nil
}
