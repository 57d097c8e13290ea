package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/tribed/internal/formation"
)

var (
	scoreLimit  int
	scoreMin    float64
	scoreDetail bool
)

func init() {
	scoreCmd.PersistentFlags().IntVar(&scoreLimit, "limit", 10, "maximum number of results (0 for all)")
	scoreCmd.PersistentFlags().Float64Var(&scoreMin, "min-score", 0, "minimum score to include (0-100)")
	scoreCmd.PersistentFlags().BoolVar(&scoreDetail, "detail", false, "include per-factor detail")
	scoreCmd.AddCommand(scoreUsersCmd)
	scoreCmd.AddCommand(scoreTribesCmd)
}

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Rank compatible users or tribes for a user",
}

// scoreUsersCmd ranks every other profile in the snapshot against a user.
var scoreUsersCmd = &cobra.Command{
	Use:   "users <snapshot.json> <user-id>",
	Short: "Rank candidate users by compatibility",
	Long: `Score every other profile in the snapshot against the given user and
print the ranked list as JSON.

Examples:
  tribed score users pool.json u1
  tribed score users pool.json u1 --limit 5 --min-score 70 --detail`,
	Args: cobra.ExactArgs(2),
	RunE: runScoreUsers,
}

// scoreTribesCmd ranks every open tribe in the snapshot for a user.
var scoreTribesCmd = &cobra.Command{
	Use:   "tribes <snapshot.json> <user-id>",
	Short: "Rank tribes with spare capacity by compatibility",
	Long: `Score every tribe with spare capacity for the given user and print
the ranked list as JSON.

Examples:
  tribed score tribes pool.json u1
  tribed score tribes pool.json u1 --min-score 70`,
	Args: cobra.ExactArgs(2),
	RunE: runScoreTribes,
}

func scoreOptions() formation.Options {
	return formation.Options{
		Limit:         scoreLimit,
		MinScore:      scoreMin,
		IncludeDetail: scoreDetail,
	}
}

func runScoreUsers(cmd *cobra.Command, args []string) error {
	app, err := buildApp(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = app.logger.Sync() }()

	userID := args[1]
	candidates := make([]string, 0)
	for _, id := range app.store.UserIDs() {
		if id != userID {
			candidates = append(candidates, id)
		}
	}

	res, err := app.service.ScoreUsers(cmd.Context(), userID, candidates, scoreOptions())
	if err != nil {
		return err
	}
	return printJSON(res)
}

func runScoreTribes(cmd *cobra.Command, args []string) error {
	app, err := buildApp(args[0])
	if err != nil {
		return err
	}
	defer func() { _ = app.logger.Sync() }()

	res, err := app.service.ScoreTribes(cmd.Context(), args[1], nil, scoreOptions())
	if err != nil {
		return err
	}
	return printJSON(res)
}
