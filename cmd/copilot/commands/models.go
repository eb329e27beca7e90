package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models",
	RunE:  runModels,
}

func runModels(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	client, _, err := setup(ctx)
	if err != nil {
		return err
	}
	defer client.Stop(context.Background())

	models, err := client.ListModels(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCONTEXT\t")
	for _, model := range models {
		fmt.Fprintf(w, "%s\t%s\t%d\t\n", model.ID, model.Name, model.ContextWindow)
	}
	return w.Flush()
}
