package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/tribed/internal/formation"
)

var formUsers []string

func init() {
	formCmd.Flags().StringSliceVar(&formUsers, "users", nil, "user IDs to place (default: every profile in the snapshot)")
}

// formCmd runs a full formation pass over a snapshot.
var formCmd = &cobra.Command{
	Use:   "form <snapshot.json>",
	Short: "Form tribes from a profile snapshot",
	Long: `Run a tribe formation pass over a snapshot file.

Users are assigned to existing tribes with spare capacity when their
compatibility clears the threshold; the rest are clustered into candidate
new tribes. The result is printed as JSON.

Examples:
  # Place every user in the snapshot
  tribed form pool.json

  # Place specific users only
  tribed form pool.json --users u1,u2,u3`,
	Args: cobra.ExactArgs(1),
	RunE: runForm,
}

func runForm(cmd *cobra.Command, args []string) error {
	app, err := buildApp(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = app.logger.Sync() }()

	userIDs := formUsers
	if len(userIDs) == 0 {
		userIDs = app.store.UserIDs()
	}

	ctx := cmd.Context()
	result, err := app.service.FormTribes(ctx, userIDs, formation.Options{})
	if err != nil {
		app.logger.Error(ctx, "formation failed", zap.Error(err))
		return err
	}
	return printJSON(result)
}
