package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"unhabit/internal/config"
	"unhabit/internal/guidance"
	"unhabit/internal/types"
)

// screenCmd canonicalizes and screens a habit description without starting
// a session
var screenCmd = &cobra.Command{
	Use:   "screen [habit description]",
	Short: "Name, categorize and safety-screen a habit description",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = a.close() }()

		state := types.SessionState{HabitDescription: strings.Join(args, " ")}
		state, canon := a.pipeline.Canonicalize(ctx, state)
		state, safety := a.pipeline.Safety(ctx, state)

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Habit:      %s\n", state.CanonicalHabitName)
		fmt.Fprintf(out, "Category:   %s (strategy: %s)\n", state.HabitCategory, guidance.Normalize(state.HabitCategory))
		fmt.Fprintf(out, "Confidence: %s\n", state.CanonicalConfidence)
		fmt.Fprintf(out, "Risk:       %s\n", state.Safety.Risk)
		fmt.Fprintf(out, "Action:     %s\n", state.Safety.Action)
		if state.Safety.Message != "" {
			fmt.Fprintf(out, "Message:    %s\n", state.Safety.Message)
		}
		if canon.Fallback() || safety.Fallback() {
			fmt.Fprintln(out, noteStyle.Render("(built-in content was used; run with --verbose for details)"))
		}
		return nil
	},
}

var guidanceList bool

// guidanceCmd prints the strategy block for a category
var guidanceCmd = &cobra.Command{
	Use:   "guidance [category]",
	Short: "Show the plan strategy block for a habit category",
	Long: `Shows the category-specific strategy used when designing a 21-day plan.
Any label is accepted; unknown labels use the general strategy.

Example:
  unhabit guidance social_media`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if guidanceList || len(args) == 0 {
			for _, c := range guidance.AllCategories {
				fmt.Fprintf(out, "%-16s %s\n", c, guidance.BlockFor(c).Title)
			}
			return nil
		}
		g := guidance.Select(&types.QuizSummary{HabitCategory: args[0]})
		fmt.Fprint(out, g.Render())
		return nil
	},
}

// configCmd groups configuration commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configForce bool

// configInitCmd writes the default configuration
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default configuration to the config path",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(configPath); err == nil && !configForce {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		// Defaults only: keys from the environment stay out of the file.
		if err := config.DefaultConfig().Save(configPath); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", configPath)
		return nil
	},
}

func init() {
	guidanceCmd.Flags().BoolVarP(&guidanceList, "list", "l", false, "List categories")
	configInitCmd.Flags().BoolVarP(&configForce, "force", "f", false, "Overwrite an existing file")
}
