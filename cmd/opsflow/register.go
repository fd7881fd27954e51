package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <account> <provider> <auth-code>",
	Short: "Exchange an authorization code and store the account's tokens",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := doc.OpenStore()
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		manager, err := doc.BuildManager(st)
		if err != nil {
			return err
		}

		account, provider, code := args[0], args[1], args[2]
		if err := manager.Register(context.Background(), account, provider, code); err != nil {
			return err
		}
		fmt.Printf("account %s registered with provider %s\n", account, provider)
		return nil
	},
}
