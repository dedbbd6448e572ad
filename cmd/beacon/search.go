package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"beacon/internal/search"
)

var searchLimit int

// searchCmd runs one query against the catalog and prints the ranked
// matches. Useful for scripting and for inspecting ranking decisions.
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a one-shot catalog query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a := newApp(cfg)
		defer a.shutdown()

		engine := search.NewEngine(a.metric, a.register)
		sources := []search.Source{{Provider: a.manager.Root()}}
		for _, tp := range a.manager.TextProviders(nil) {
			sources = append(sources, search.Source{Text: tp})
		}

		_, stream := engine.Search(context.Background(), sources, args[0],
			search.Options{Score: true})
		matches := stream.Collect(searchLimit)
		if len(matches) == 0 {
			fmt.Println("no matches")
			return nil
		}
		for _, m := range matches {
			fmt.Printf("%7.2f  %s\n", m.Rank, m.Object.Name())
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum matches to print")
}
