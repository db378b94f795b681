package main

import (
	"fmt"
	"time"

	"okr-go/internal/okr"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and log in",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := okr.RegisterInput{}
		in.Email, _ = cmd.Flags().GetString("email")
		in.FirstName, _ = cmd.Flags().GetString("first-name")
		in.LastName, _ = cmd.Flags().GetString("last-name")

		p := newPrompter(cmd)
		var err error
		if in.Email, err = p.valueOr(in.Email, "Email: "); err != nil {
			return err
		}
		if in.FirstName, err = p.valueOr(in.FirstName, "First name: "); err != nil {
			return err
		}
		if in.LastName, err = p.valueOr(in.LastName, "Last name: "); err != nil {
			return err
		}
		if in.Password, err = p.password("Password: "); err != nil {
			return err
		}

		a, err := newApp("Register")
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.Register(cmd.Context(), in)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Welcome, %s! You are logged in.\n", sess.FirstName)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in",
	RunE: func(cmd *cobra.Command, args []string) error {
		in := okr.LoginInput{}
		in.Email, _ = cmd.Flags().GetString("email")

		p := newPrompter(cmd)
		var err error
		if in.Email, err = p.valueOr(in.Email, "Email: "); err != nil {
			return err
		}
		if in.Password, err = p.password("Password: "); err != nil {
			return err
		}

		a, err := newApp("Login")
		if err != nil {
			return err
		}
		defer a.Close()

		sess, err := a.Login(cmd.Context(), in)
		if err != nil {
			return err
		}
		name := sess.FirstName
		if name == "" {
			name = sess.Email
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s.\n", name)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Log out and forget cached data",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Logout")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("WhoAmI")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.WhoAmI()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "[%s] %s %s <%s>\n", id.Session.Initials(), id.Session.FirstName, id.Session.LastName, id.Session.Email)
		if id.ExpiresAt != nil {
			fmt.Fprintf(out, "Token expires %s\n", id.ExpiresAt.Local().Format(time.DateTime))
		}
		return nil
	},
}

func init() {
	registerCmd.Flags().String("email", "", "Account email")
	registerCmd.Flags().String("first-name", "", "First name")
	registerCmd.Flags().String("last-name", "", "Last name")
	loginCmd.Flags().String("email", "", "Account email")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
}
