package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/stream-transcriber/internal/secrets"
)

// newSetPasswordCmd stores a database password so it never has to live in
// the config file or the environment.
func newSetPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-password <key>",
		Short: "Store a database password in the local secrets file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(os.Stderr, "Password: ")
			reader := bufio.NewReader(os.Stdin)
			password, err := reader.ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = strings.TrimRight(password, "\r\n")
			if password == "" {
				return fmt.Errorf("password must not be empty")
			}

			if err := secrets.Set(args[0], password); err != nil {
				return err
			}
			fmt.Printf("Password stored under key %q\n", args[0])
			return nil
		},
	}
}
