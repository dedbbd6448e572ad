package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"beacon/internal/learn"
)

// statsCmd dumps the usage register.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show learned usage data",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		register := learn.NewRegister(cfg.Learning.DataDir)
		register.Load()

		entries := register.Entries()
		if len(entries) == 0 {
			fmt.Println("nothing learned yet")
			return nil
		}
		for _, e := range entries {
			marker := " "
			if e.Favorite {
				marker = "*"
			}
			fmt.Printf("%s %5d  %s", marker, e.Total, e.ID)
			if e.Default != "" {
				fmt.Printf("  -> %s", e.Default)
			}
			fmt.Println()
		}
		return nil
	},
}
