package main

import (
	"fmt"

	"github.com/waste3d/courseplatform-api/internal/application/usecase"
	"github.com/waste3d/courseplatform-api/internal/domain"
	"github.com/waste3d/courseplatform-api/internal/infrastructure/repository"

	"github.com/spf13/cobra"
)

func grantAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant-admin [email]",
		Short: "Give an existing account the ADMIN role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			role := domain.RoleAdmin
			if revoke, _ := cmd.Flags().GetBool("revoke"); revoke {
				role = domain.RoleUser
			}

			admin := usecase.NewAdminUseCase(
				repository.NewUserRepository(rt.db),
				repository.NewSettingRepository(rt.db),
				nil, nil, rt.log,
			)
			user, err := admin.GrantRole(cmd.Context(), args[0], role)
			if err != nil {
				return fmt.Errorf("grant role to %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", user.Email, user.Role)
			return nil
		},
	}
	cmd.Flags().Bool("revoke", false, "demote back to USER instead")
	return cmd
}
