package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"talentCorner/internal/auth"
)

func newCreateOrgCmd(a *app) *cobra.Command {
	var email, organization string

	cmd := &cobra.Command{
		Use:   "create-org",
		Short: "Create an organization account with a one-time password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			email = strings.TrimSpace(email)
			organization = strings.TrimSpace(organization)
			if email == "" || organization == "" {
				return fmt.Errorf("--email and --organization are required")
			}

			db, err := a.open(true)
			if err != nil {
				return err
			}

			password, err := auth.GenerateRandomPassword(24)
			if err != nil {
				return err
			}
			acct, err := auth.NewAccounts(db, a.cfg.Auth.OTPTTL).Create(cmd.Context(), email, organization, password, true)
			if err != nil {
				return fmt.Errorf("create account: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "已创建机构账号（首次登录需强制改密）：\n")
			fmt.Fprintf(out, "邮箱: %s\n", acct.Email)
			fmt.Fprintf(out, "机构: %s\n", acct.Organization)
			fmt.Fprintf(out, "初始密码: %s\n", password)
			fmt.Fprintf(out, "提示：请立即登录并修改密码（该密码仅显示一次）。\n")
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "机构登录邮箱（必填）")
	cmd.Flags().StringVar(&organization, "organization", "", "机构名称（必填）")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("organization")
	return cmd
}
