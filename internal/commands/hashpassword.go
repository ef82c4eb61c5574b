package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/devoll/rhga-schedule-bot/internal/auth"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newHashPasswordCmd(opts *rootOptions) *cobra.Command {
	var overwrite bool
	var insecureUnmask bool

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Create the auth file (username + Argon2id hash) protecting the sync endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			in := bufio.NewReader(cmd.InOrStdin())
			out := cmd.OutOrStdout()

			fmt.Fprint(out, "Enter username: ")
			username, err := readLine(in)
			if err != nil {
				return fmt.Errorf("reading username: %w", err)
			}
			if username == "" {
				return errors.New("username cannot be empty")
			}

			// Piped input has no terminal to mask, so it is read line by line
			// from the same reader as the username.
			fd, tty := terminalFd(cmd.InOrStdin())
			var password, confirm string
			if insecureUnmask || !tty {
				if insecureUnmask {
					fmt.Fprintln(cmd.ErrOrStderr(), "⚠️  WARNING: Password will be visible on screen!")
				}
				fmt.Fprint(out, "Enter password:   ")
				password, _ = readLine(in)
				fmt.Fprint(out, "Confirm password: ")
				confirm, _ = readLine(in)
			} else {
				password = readPasswordWithMask(in, fd, out, "Enter password:   ")
				confirm = readPasswordWithMask(in, fd, out, "Confirm password: ")
			}

			if password == "" {
				return errors.New("password cannot be empty")
			}
			if password != confirm {
				return errors.New("passwords do not match")
			}

			if err := auth.CreateFile(cfg.AuthFile, username, password, overwrite); err != nil {
				if errors.Is(err, auth.ErrExists) {
					return fmt.Errorf("%w (use --overwrite to replace it)", err)
				}
				return err
			}
			fmt.Fprintf(out, "✅ Auth file created: %s (mode: 0400 read-only)\n", cfg.AuthFile)
			fmt.Fprintf(out, "   Username: %s\n", username)
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing auth file")
	cmd.Flags().BoolVar(&insecureUnmask, "insecure-unmask-password", false, "Show password as plain text (INSECURE!)")
	return cmd
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func terminalFd(r io.Reader) (int, bool) {
	f, ok := r.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// readPasswordWithMask reads password input and displays asterisks
func readPasswordWithMask(reader *bufio.Reader, fd int, out io.Writer, prompt string) string {
	fmt.Fprint(out, prompt)

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		// Fallback to hidden input if we can't set raw mode
		password, _ := term.ReadPassword(fd)
		fmt.Fprintln(out)
		return string(password)
	}
	defer term.Restore(fd, oldState)

	var password []rune
	for {
		char, _, err := reader.ReadRune()
		if err != nil {
			break
		}
		switch char {
		case '\n', '\r':
			fmt.Fprint(out, "\r\n")
			return string(password)
		case 127, 8: // Backspace or Delete
			if len(password) > 0 {
				password = password[:len(password)-1]
				fmt.Fprint(out, "\b \b")
			}
		case 3: // Ctrl+C
			term.Restore(fd, oldState)
			fmt.Fprintln(out)
			os.Exit(1)
		default:
			if char >= 32 {
				password = append(password, char)
				fmt.Fprint(out, "*")
			}
		}
	}
	fmt.Fprintln(out)
	return string(password)
}
