package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	assignProperty string
	assignFrom     string
	assignTo       string
)

var assignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Auto-assign unassigned cleaning tasks of a property",
	Long: `Distributes the property's unassigned cleaning tasks scheduled in [from, to)
over its active cleaners, using the configured cleaning.policy.

Dates are YYYY-MM-DD in the configured sync.timezone. --to defaults to 7 days after --from.`,
	RunE: runAssign,
}

func init() {
	assignCmd.Flags().StringVar(&assignProperty, "property", "", "Property id")
	assignCmd.Flags().StringVar(&assignFrom, "from", "", "First day, inclusive (default today)")
	assignCmd.Flags().StringVar(&assignTo, "to", "", "Last day, exclusive")
	RootCmd.AddCommand(assignCmd)
}

func runAssign(cmd *cobra.Command, args []string) error {
	if assignProperty == "" {
		return errors.New("--property is required")
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	now := time.Now().In(a.loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.loc)
	if assignFrom != "" {
		if from, err = time.ParseInLocation("2006-01-02", assignFrom, a.loc); err != nil {
			return fmt.Errorf("parsing --from: %w", err)
		}
	}
	to := from.AddDate(0, 0, 7)
	if assignTo != "" {
		if to, err = time.ParseInLocation("2006-01-02", assignTo, a.loc); err != nil {
			return fmt.Errorf("parsing --to: %w", err)
		}
	}

	result, err := a.assigner.AutoAssign(cmd.Context(), assignProperty, from, to)
	if err != nil {
		return err
	}
	return printJSON(result)
}
