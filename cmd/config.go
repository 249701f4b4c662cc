package cmd

import (
	"fmt"
	"log"

	"github.com/acc2soldier2-cmd/Solar/solar"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "[redacted]"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML, with secrets redacted",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		data, err := yaml.Marshal(redactConfig(cfg))
		if err != nil {
			log.Fatalf("error encoding config: %v", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
	},
}

// redactConfig returns a copy of the config with tokens replaced
func redactConfig(c *solar.Config) *solar.Config {
	out := *c
	if c.Discord != nil {
		discord := *c.Discord
		if discord.Token != "" {
			discord.Token = redacted
		}
		out.Discord = &discord
	}
	if c.LLM != nil {
		llm := *c.LLM
		if llm.Token != "" {
			llm.Token = redacted
		}
		out.LLM = &llm
	}
	return &out
}

func init() {
	rootCmd.AddCommand(configCmd)
}
