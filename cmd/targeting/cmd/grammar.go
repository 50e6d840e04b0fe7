package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tink3rlabs/targeting/grammar"
)

var startRule string

var parseCmd = &cobra.Command{
	Use:   "parse <query>",
	Short: "Print the JSON tree of a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := grammar.Parse(args[0], grammar.WithStartRule(startRule))
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(grammar.Tree{Node: n}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <json|->",
	Short: "Print the canonical query of a JSON tree, read from stdin with -",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data := []byte(args[0])
		if args[0] == "-" {
			var err error
			if data, err = io.ReadAll(cmd.InOrStdin()); err != nil {
				return fmt.Errorf("failed to read tree: %w", err)
			}
		}
		query, err := grammar.GenerateJSON([]byte(strings.TrimSpace(string(data))))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), query)
		return nil
	},
}

func init() {
	parseCmd.Flags().StringVar(&startRule, "start-rule", grammar.StartQuery, "rule to start parsing from (query, request)")
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(generateCmd)
}
