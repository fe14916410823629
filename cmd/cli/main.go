package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kurihiro0119/github-yearbook/internal/aggregator"
	"github.com/kurihiro0119/github-yearbook/internal/config"
)

var (
	cfgFile    string
	outputJSON bool
	remote     bool

	token     string
	startDate string
	endDate   string
	refresh   bool

	tokenType   string
	tokenScopes string
)

var rootCmd = &cobra.Command{
	Use:   "yearbook",
	Short: "GitHub yearbook stats tool",
	Long: `A CLI tool for building a GitHub "year in review" for a user.

Stats are fetched from GitHub, cached per calendar year and merged for
custom date ranges. Commands run against the local cache by default, or
against a running API server with --remote.`,
	SilenceUsage: true,
}

var statsCmd = &cobra.Command{
	Use:   "stats [user] [year]",
	Short: "Show the stats of a year or custom range",
	Long:  `Display the yearbook stats of a user for a calendar year. Pass --start and/or --end for a custom range.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runStats,
}

var periodCmd = &cobra.Command{
	Use:   "period [user] [period]",
	Short: "Show the stats of a named period",
	Long:  `Display stats for YYYY, pastyear, pastmonth or pastweek.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runPeriod,
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate [user] [year]",
	Short: "Drop the cached stats of a year",
	Args:  cobra.ExactArgs(2),
	RunE:  runInvalidate,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage stored GitHub tokens",
}

var tokenSetCmd = &cobra.Command{
	Use:   "set [user]",
	Short: "Store a GitHub token for a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenSet,
}

var tokenShowCmd = &cobra.Command{
	Use:   "show [user]",
	Short: "Show the stored token of a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenShow,
}

var tokenDeleteCmd = &cobra.Command{
	Use:   "delete [user]",
	Short: "Delete the stored tokens of a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runTokenDelete,
}

var profileCmd = &cobra.Command{
	Use:   "profile [user]",
	Short: "Show the last recorded profile of a user",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfile,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&remote, "remote", false, "run against the API server at API_ENDPOINT")

	statsCmd.Flags().StringVar(&token, "token", "", "GitHub token overriding the stored one")
	statsCmd.Flags().StringVar(&startDate, "start", "", "range start date (YYYY-MM-DD)")
	statsCmd.Flags().StringVar(&endDate, "end", "", "range end date (YYYY-MM-DD)")
	statsCmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache")

	periodCmd.Flags().StringVar(&token, "token", "", "GitHub token overriding the stored one")
	periodCmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache")

	tokenSetCmd.Flags().StringVar(&token, "token", "", "GitHub token to store")
	tokenSetCmd.Flags().StringVar(&tokenType, "type", aggregator.DefaultTokenType, "token type")
	tokenSetCmd.Flags().StringVar(&tokenScopes, "scopes", "", "comma separated token scopes")
	_ = tokenSetCmd.MarkFlagRequired("token")

	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(periodCmd)
	rootCmd.AddCommand(invalidateCmd)
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenSetCmd)
	tokenCmd.AddCommand(tokenShowCmd)
	tokenCmd.AddCommand(tokenDeleteCmd)
	rootCmd.AddCommand(profileCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadService() (service, error) {
	if cfgFile != "" {
		if err := godotenv.Load(cfgFile); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return openService(cfg, remote)
}

func parseYear(s string) (int, error) {
	year, err := strconv.Atoi(s)
	if err != nil || year < 1 {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return year, nil
}

func runStats(cmd *cobra.Command, args []string) error {
	year, err := parseYear(args[1])
	if err != nil {
		return err
	}

	svc, err := loadService()
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.Stats(context.Background(), aggregator.StatsRequest{
		Username:     args[0],
		Year:         year,
		Token:        token,
		StartDate:    startDate,
		EndDate:      endDate,
		ForceRefresh: refresh,
	})
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	renderStats(cmd.OutOrStdout(), result)
	return nil
}

func runPeriod(cmd *cobra.Command, args []string) error {
	svc, err := loadService()
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.Period(context.Background(), args[0], args[1], token, refresh)
	if err != nil {
		return fmt.Errorf("failed to get stats: %w", err)
	}

	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	renderStats(cmd.OutOrStdout(), result)
	return nil
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	year, err := parseYear(args[1])
	if err != nil {
		return err
	}

	svc, err := loadService()
	if err != nil {
		return err
	}
	defer svc.Close()

	removed, err := svc.Invalidate(context.Background(), args[0], year)
	if err != nil {
		return fmt.Errorf("failed to invalidate stats: %w", err)
	}

	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]int{"removed": removed})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached row(s) for %s %d\n", removed, args[0], year)
	return nil
}

func runTokenSet(cmd *cobra.Command, args []string) error {
	svc, err := loadService()
	if err != nil {
		return err
	}
	defer svc.Close()

	info, err := svc.SaveToken(context.Background(), args[0], token, tokenType, tokenScopes)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}

	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), info)
	}
	renderToken(cmd.OutOrStdout(), info)
	return nil
}

func runTokenShow(cmd *cobra.Command, args []string) error {
	svc, err := loadService()
	if err != nil {
		return err
	}
	defer svc.Close()

	info, err := svc.GetToken(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}

	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), info)
	}
	renderToken(cmd.OutOrStdout(), info)
	return nil
}

func runTokenDelete(cmd *cobra.Command, args []string) error {
	svc, err := loadService()
	if err != nil {
		return err
	}
	defer svc.Close()

	removed, err := svc.DeleteToken(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), map[string]int{"removed": removed})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d token(s) for %s\n", removed, args[0])
	return nil
}

func runProfile(cmd *cobra.Command, args []string) error {
	svc, err := loadService()
	if err != nil {
		return err
	}
	defer svc.Close()

	profile, err := svc.Profile(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get profile: %w", err)
	}

	if outputJSON {
		return writeJSON(cmd.OutOrStdout(), profile)
	}
	renderProfile(cmd.OutOrStdout(), profile)
	return nil
}
