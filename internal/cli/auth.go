package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/raphaelgruber/minutes-go/internal/client"
	"github.com/raphaelgruber/minutes-go/internal/state"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	loginEmail string

	registerUsername string
	registerEmail    string
	registerFullName string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and remember the session",
	Long: `Log in to the service. The password is read from the terminal without
echo, or from the first line of stdin when stdin is not a terminal.

Examples:
  minutes login --email aminah@example.my
  echo "$PASSWORD" | minutes login --email aminah@example.my`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the saved session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := env.sessions.Clear(); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Long: `Create an account on the service. Usernames are at least 3 characters of
letters, numbers, underscore, dot or @. Passwords need 8 characters
including a number and an uppercase letter.

Examples:
  minutes register --username aminah --email aminah@example.my --full-name "Aminah Yusof"`,
	Args: cobra.NoArgs,
	RunE: runRegister,
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "account email or username")
	_ = loginCmd.MarkFlagRequired("email")

	registerCmd.Flags().StringVarP(&registerUsername, "username", "u", "", "username")
	registerCmd.Flags().StringVarP(&registerEmail, "email", "e", "", "email address")
	registerCmd.Flags().StringVar(&registerFullName, "full-name", "", "full name")
	_ = registerCmd.MarkFlagRequired("username")
	_ = registerCmd.MarkFlagRequired("email")
	_ = registerCmd.MarkFlagRequired("full-name")
}

func runLogin(cmd *cobra.Command, args []string) error {
	in := newPasswordReader(cmd.InOrStdin(), cmd.ErrOrStderr())
	password, err := in.read("Password: ")
	if err != nil {
		return err
	}

	resp, err := env.client.Login(cmd.Context(), loginEmail, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	err = env.sessions.Save(state.Session{
		Token:     resp.BearerToken(),
		TokenType: resp.TokenType,
		Email:     loginEmail,
		ServerURL: env.client.BaseURL(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", loginEmail)
	return nil
}

func runRegister(cmd *cobra.Command, args []string) error {
	in := newPasswordReader(cmd.InOrStdin(), cmd.ErrOrStderr())
	password, err := in.read("Password: ")
	if err != nil {
		return err
	}
	confirm, err := in.read("Confirm password: ")
	if err != nil {
		return err
	}

	input := client.RegisterInput{
		Username:        registerUsername,
		Email:           registerEmail,
		Password:        password,
		ConfirmPassword: confirm,
		FullName:        registerFullName,
	}
	if err := input.Validate(); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	resp, err := env.client.Register(cmd.Context(), input)
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Registered %s. Run 'minutes login --email %s' to log in.\n", resp.Username, input.Email)
	return nil
}

// passwordReader reads secrets without echo from a terminal, or line by line
// from any other reader.
type passwordReader struct {
	in     io.Reader
	prompt io.Writer
	lines  *bufio.Reader
}

func newPasswordReader(in io.Reader, prompt io.Writer) *passwordReader {
	return &passwordReader{in: in, prompt: prompt}
}

func (p *passwordReader) read(label string) (string, error) {
	if f, ok := p.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(p.prompt, label)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.prompt)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	if p.lines == nil {
		p.lines = bufio.NewReader(p.in)
	}
	line, err := p.lines.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
