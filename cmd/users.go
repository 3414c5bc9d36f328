package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var usersLevel string

func init() {
	usersListCmd.Flags().StringVar(&usersLevel, "level", "", "Only show users at this access level, e.g. Staff")
	usersCmd.AddCommand(usersListCmd)
	rootCmd.AddCommand(usersCmd)
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Inspect stored facility users",
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored users with their access level",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		users, err := st.Users(cmd.Context(), usersLevel)
		if err != nil {
			return err
		}
		for _, u := range users {
			fmt.Printf("%-8d %-24s %-20s %s %s\n", u.Badge, u.Username, u.AccessLevel, u.FirstName, u.LastName)
		}
		fmt.Printf("%d users.\n", len(users))
		return nil
	},
}
