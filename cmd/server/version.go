package main

import (
	"fmt"

	"github.com/spf13/cobra"

	httpapi "github.com/garyjia/dealflow/internal/interfaces/http"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dealflow %s\n", httpapi.Version)
		},
	}
}
