package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/segakai/segakai/internal/client"
	"github.com/segakai/segakai/internal/models"
	"github.com/segakai/segakai/internal/wizard"
)

func newSignupCmd(cfg *Config) *cobra.Command {
	var req models.SignupRequest
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			if req.Password, err = readSecret(cmd, "Password (at least 8 characters): "); err != nil {
				return err
			}
			id, err := c.SignUp(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s! You are signed in as %s.\n", displayName(id), id.Email)
			if req.Phone == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "Tip: sign up with --phone to get a WhatsApp message when your plan is ready.")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Email, "email", "", "account email")
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.Phone, "phone", "", "WhatsApp number in E.164 form for plan-ready messages")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLoginCmd(cfg *Config) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			password, err := readSecret(cmd, "Password: ")
			if err != nil {
				return err
			}
			id, err := c.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s.\n", id.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the local session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			if err := c.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

func newWhoamiCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			id, err := c.CurrentIdentity(cmd.Context())
			if errors.Is(err, wizard.ErrUnauthenticated) {
				return errors.New("not signed in, run `segakai login` first")
			}
			if err != nil {
				return err
			}
			role := "user"
			if id.IsAdmin {
				role = "admin"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", id.Email, role)
			return nil
		},
	}
}

func newProfileCmd(cfg *Config) *cobra.Command {
	var name, phone string
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show your profile, or change your name or phone with flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			var req models.ProfileUpdateRequest
			if cmd.Flags().Changed("name") {
				req.Name = &name
			}
			if cmd.Flags().Changed("phone") {
				req.Phone = &phone
			}

			var id *models.Identity
			if req.Name == nil && req.Phone == nil {
				id, err = c.CurrentIdentity(cmd.Context())
			} else {
				id, err = c.UpdateProfile(cmd.Context(), req)
			}
			if errors.Is(err, wizard.ErrUnauthenticated) || client.IsUnauthorized(err) {
				return errors.New("not signed in, run `segakai login` first")
			}
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if req.Name != nil || req.Phone != nil {
				fmt.Fprintln(out, "Profile updated.")
			}
			shownPhone := id.Phone
			if shownPhone == "" {
				shownPhone = "-"
			}
			fmt.Fprintf(out, "Name:  %s\nEmail: %s\nPhone: %s\n", displayName(id), id.Email, shownPhone)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&phone, "phone", "", "new WhatsApp number in E.164 form, empty to remove it")
	return cmd
}

func newPasswdCmd(cfg *Config) *cobra.Command {
	var signOutOthers bool
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change your password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cfg)
			if err != nil {
				return err
			}
			bufferInput(cmd)
			req := models.PasswordChangeRequest{SignOutOthers: signOutOthers}
			if req.CurrentPassword, err = readSecret(cmd, "Current password: "); err != nil {
				return err
			}
			if req.NewPassword, err = readSecret(cmd, "New password (at least 8 characters): "); err != nil {
				return err
			}
			if req.ConfirmPassword, err = readSecret(cmd, "Confirm new password: "); err != nil {
				return err
			}
			if err := req.Validate(); err != nil {
				return err
			}
			ended, err := c.ChangePassword(cmd.Context(), req)
			if client.IsUnauthorized(err) {
				return errors.New("not signed in, run `segakai login` first")
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed.")
			if ended > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Signed out %d other session(s).\n", ended)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&signOutOthers, "sign-out-others", false, "end every other session of this account")
	return cmd
}

func displayName(id *models.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return id.Email
}

// readSecret prompts on stdout and reads one line without echo when stdin is
// a terminal, or a plain line otherwise.
func readSecret(cmd *cobra.Command, prompt string) (string, error) {
	out := cmd.OutOrStdout()
	fmt.Fprint(out, prompt)
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(secret), nil
	}
	return readLine(in)
}

// bufferInput wraps piped stdin so several prompts can read from it in turn.
func bufferInput(cmd *cobra.Command) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return
	}
	if _, ok := in.(*bufio.Reader); !ok {
		cmd.SetIn(bufio.NewReader(in))
	}
}

func readLine(in io.Reader) (string, error) {
	br, ok := in.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(in)
	}
	line, err := br.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
