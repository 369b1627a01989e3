package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alanyoungcy/tradesim/internal/app"
	"github.com/alanyoungcy/tradesim/internal/config"
	"github.com/alanyoungcy/tradesim/internal/model"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the registered pricing models",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		reg := model.NewDefaultRegistry(app.Coefficients(cfg.Coefficients))
		for _, name := range reg.List() {
			marker := " "
			if name == cfg.Simulation.Model {
				marker = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
