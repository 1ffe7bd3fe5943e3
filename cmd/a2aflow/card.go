package main

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/a2aflow/a2a"
)

var cardURL string

var cardCmd = &cobra.Command{
	Use:   "card",
	Short: "Print the agent card",
	Long: `Print the agent card of the configured workflows, or fetch it from a
running server with --url.`,
	Example: `  a2aflow card
  a2aflow card --url http://localhost:8080`,
	RunE: runCard,
}

func init() {
	cardCmd.Flags().StringVar(&cardURL, "url", "", "fetch the card from a running server")
}

func runCard(cmd *cobra.Command, _ []string) error {
	var card *a2a.AgentCard

	if cardURL != "" {
		var err error
		card, err = a2a.NewClient(cardURL).Card(cmd.Context())
		if err != nil {
			return err
		}
	} else {
		rt, err := loadRuntime(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close() }()
		card = rt.app.Server().Card()
	}

	return printJSON(cmd, card)
}
