package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/flaskion/flaskion-client/pkg/api"
)

func newSigninCmd(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in and store the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if email == "" {
				if email, err = prompt(cmd, in, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = promptPassword(cmd, in); err != nil {
					return err
				}
			}

			reply, err := a.service.Signin(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("sign-in failed: %w", err)
			}
			if !reply.OK() {
				return a.replyError(reply.Response)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when omitted)")
	return cmd
}

func newSignupCmd(a *app) *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register a new account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if email == "" {
				if email, err = prompt(cmd, in, "Email: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = promptPassword(cmd, in); err != nil {
					return err
				}
			}

			reply, err := a.service.Signup(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("sign-up failed: %w", err)
			}
			if !reply.OK() {
				return a.replyError(reply.Response)
			}
			return renderUser(cmd.OutOrStdout(), a.output, reply.Data)
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when omitted)")
	return cmd
}

func newMeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := a.service.Me(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to fetch account: %w", err)
			}
			if !reply.OK() {
				return a.replyError(reply.Response)
			}
			return renderUser(cmd.OutOrStdout(), a.output, reply.Data)
		},
	}
}

func newSignoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the stored access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.service.Signout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func renderUser(w io.Writer, format string, u api.User) error {
	rows := [][]string{
		{"ID", u.ID},
		{"Email", u.Email},
		{"Active", fmt.Sprintf("%t", u.IsActive)},
		{"Created", u.CreatedAt.Format(time.RFC3339)},
		{"Updated", u.UpdatedAt.Format(time.RFC3339)},
	}
	return render(w, format, u, []string{"Field", "Value"}, rows)
}

func prompt(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads without echo when stdin is a terminal.
func promptPassword(cmd *cobra.Command, in *bufio.Reader) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
		bytePassword, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(bytePassword), nil
	}
	return prompt(cmd, in, "Password: ")
}
