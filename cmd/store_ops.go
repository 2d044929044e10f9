package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Write a timestamped encrypted snapshot of the face database",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.log.Sync()

		path, err := a.store.CreateBackup(a.store.Load())
		if err != nil {
			return err
		}
		fmt.Printf("Backup written to %s\n", path)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Run the integrity sweep over all stored templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.log.Sync()

		if a.store.ValidateIntegrity() {
			fmt.Println("Database integrity: OK")
			return nil
		}
		return fmt.Errorf("database integrity check FAILED, see log for affected records")
	},
}

var similarCmd = &cobra.Command{
	Use:   "similar <person-id> [k]",
	Short: "Show the stored templates nearest to a person's template",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.log.Sync()

		k := 5
		if len(args) == 2 {
			if k, err = strconv.Atoi(args[1]); err != nil || k <= 0 {
				return fmt.Errorf("invalid neighbor count %q", args[1])
			}
		}

		p, err := a.store.GetPerson(args[0])
		if err != nil {
			return err
		}
		neighbors, err := a.store.FindSimilar(p.Template, k+1)
		if err != nil {
			return err
		}
		for _, n := range neighbors {
			if n.ID == p.ID {
				continue
			}
			fmt.Printf("%s  %-24s cosine distance %.4f\n", n.ID, n.Name, n.Distance)
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print matching statistics for the current database",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.log.Sync()

		stats := a.engine.Statistics()
		fmt.Printf("persons:    %d\n", stats.TotalPersons)
		fmt.Printf("avg quality: %.3f\n", stats.AvgQualityScore)
		fmt.Printf("integrity:  %v\n", stats.DatabaseIntegrity)
		fmt.Printf("tolerance:  %.2f\n", stats.CurrentTolerance)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(similarCmd)
	rootCmd.AddCommand(statsCmd)
}
