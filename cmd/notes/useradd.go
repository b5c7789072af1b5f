package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"notes/internal/app"
	"notes/internal/config"
	"notes/internal/errs"
)

var useraddCmd = &cobra.Command{
	Use:   "useradd <username>",
	Short: "Create a password user",
	Long:  `Create a user in the configured store. The password is read from the first line of stdin.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		if _, _, err := cfg.Backend(); err != nil {
			fatal("invalid configuration", err)
		}

		password, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && password == "" {
			fatal("failed to read password", err)
		}
		password = strings.TrimRight(password, "\r\n")

		db, closer, err := openStore(cfg)
		if err != nil {
			fatal("failed to open store", err)
		}
		defer func() { _ = closer.Close() }()

		user, err := app.NewAuthService(db).CreateUser(context.Background(), args[0], password)
		if err != nil {
			for field, msgs := range errs.FieldsOf(err) {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", field, strings.Join(msgs, "; "))
			}
			fatal("failed to create user", err)
		}
		fmt.Printf("created user %q (id %d)\n", user.Username, user.ID)
	},
}

func init() {
	rootCmd.AddCommand(useraddCmd)
}
