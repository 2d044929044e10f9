package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomas/secureface/internal/store"
)

var personCmd = &cobra.Command{
	Use:   "person",
	Short: "Manage enrolled persons",
}

var personListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all enrolled persons",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.log.Sync()

		persons := a.store.ListPersons()
		if len(persons) == 0 {
			fmt.Println("No persons enrolled")
			return nil
		}
		for _, p := range persons {
			fmt.Printf("%s  %-24s quality %.3f  samples %d  enrolled %s\n",
				p.ID, p.Name, p.QualityScore, p.TrainingSampleCount,
				p.CreatedAt.Format("2006-01-02"))
		}
		return nil
	},
}

var personFindCmd = &cobra.Command{
	Use:   "find <name>",
	Short: "Find persons by name (case and diacritics insensitive)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.log.Sync()

		for _, p := range a.store.FindByName(args[0]) {
			fmt.Printf("%s  %s\n", p.ID, p.Name)
		}
		return nil
	},
}

var personRenameCmd = &cobra.Command{
	Use:   "rename <id> <new-name>",
	Short: "Change a person's display name",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.log.Sync()

		name := args[1]
		if err := a.store.UpdatePerson(args[0], store.Update{Name: &name}); err != nil {
			return err
		}
		fmt.Printf("Renamed %s to %q\n", args[0], name)
		return nil
	},
}

var personRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Remove a person and their template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.log.Sync()

		removed, err := a.store.RemovePerson(args[0])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Printf("No person with id %s\n", args[0])
			return nil
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(personCmd)
	personCmd.AddCommand(personListCmd)
	personCmd.AddCommand(personFindCmd)
	personCmd.AddCommand(personRenameCmd)
	personCmd.AddCommand(personRemoveCmd)
}
