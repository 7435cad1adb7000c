// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"peablog/internal/models"
)

func newLoginCmd(a *app) *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:         "login <username>",
		Short:       "Log in and save the session token",
		Annotations: map[string]string{loginRoute: "true"},
		Long: `Log in to the content service and save the session token.

The password is read from --password, or from the first line of standard
input when the flag is omitted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			resp, err := a.session.Login(cmd.Context(), models.LoginRequest{
				Username: args[0],
				Password: password,
			})
			if err != nil {
				return fmt.Errorf("login: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "logged in as %s (%s) at %s\n", resp.User.Username, resp.User.Role, a.client.BaseURL())
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and forget the saved token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.session.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity held by the saved session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st := a.session.State()
			if !st.IsLoggedIn() {
				fmt.Fprintln(cmd.OutOrStdout(), "anonymous")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), st.User)
		},
	}
}

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "refresh",
		Short:       "Exchange the saved token for a fresh one",
		Annotations: map[string]string{requiresAuth: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.RefreshToken(cmd.Context()); err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token refreshed")
			return nil
		},
	}
}
