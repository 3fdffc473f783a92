package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dchud/unalog2/internal/auth"
)

var passwdCmd = &cobra.Command{
	Use:   "passwd USER",
	Short: "Set a user's password, read from the first line of stdin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return errors.New("no password on stdin")
		}
		hash, err := auth.HashPassword(strings.TrimRight(line, "\r\n"))
		if err != nil {
			return err
		}

		e, err := openEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		userID, err := e.userID(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if err := e.store.SetPassword(cmd.Context(), userID, hash); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(passwdCmd)
}
