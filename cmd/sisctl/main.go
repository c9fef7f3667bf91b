package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ieap-grade-sync/internal/app"
)

const version = "v1.0.0"

func main() {
	cmdSisctl := &cobra.Command{
		Use:   "sisctl",
		Short: "operate the IEAP gradebook and SIS sync from the command line",
		Long: "Runs SIS synchronization, builds composite grade structures\n" +
			"and checks the deployment configuration.\n\n" +
			"Configuration is read from config.yaml or the file named by --config.",
	}
	cmdSisctl.PersistentFlags().String("config", "", "path to the YAML config file")
	cmdSisctl.PersistentFlags().BoolP("verbose", "v", false, "log at debug level")

	cmdVersion := &cobra.Command{
		Use:   "version",
		Short: "print the version number of sisctl",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("sisctl " + version)
		},
	}
	cmdSisctl.AddCommand(cmdVersion)

	cmdSync := &cobra.Command{
		Use:   "sync",
		Short: "synchronize users, enrollments and grades with the SIS",
		Long: "   Pulls users and enrollments from the SIS and pushes course grades.\n\n" +
			"   Pushing grades needs --courseid. Use --dry-run to print the\n" +
			"   operations that would run without contacting the SIS.\n\n" +
			"   Example: sisctl sync --mode push --type grades --courseid 42",
		Run: CommandSync,
	}
	cmdSync.Flags().StringP("mode", "m", "both", "direction: push, pull or both")
	cmdSync.Flags().StringP("type", "t", "all", "what to sync: grades, enrollments, users or all")
	cmdSync.Flags().Int64P("courseid", "c", 0, "local course id")
	cmdSync.Flags().Int64P("userid", "u", 0, "restrict a grade push to one learner")
	cmdSync.Flags().String("term", "", "academic term for enrollment pulls")
	cmdSync.Flags().BoolP("force", "f", false, "take over a lock held by another run")
	cmdSync.Flags().BoolP("dry-run", "d", false, "print the plan without syncing")
	cmdSisctl.AddCommand(cmdSync)

	cmdCreate := &cobra.Command{
		Use:   "create-structure",
		Short: "build a composite grade structure in a course",
		Long: "   The structure comes from one of three sources:\n" +
			"     --level ieap1..ieap6   a catalog template\n" +
			"     --auto-detect          the template matching the course name\n" +
			"     --file structure.json  a custom structure\n\n" +
			"   Template weights may be overridden and are re-normalized:\n\n" +
			"   Example: sisctl create-structure -c 42 --level ieap4 --weight Grammar=0.3",
		Run: CommandCreateStructure,
	}
	cmdCreate.Flags().Int64P("courseid", "c", 0, "local course id")
	cmdCreate.Flags().StringP("level", "l", "", "IEAP level template (ieap1-ieap6)")
	cmdCreate.Flags().Bool("auto-detect", false, "detect the level from the course name")
	cmdCreate.Flags().StringP("file", "F", "", "JSON file with a custom structure")
	cmdCreate.Flags().StringToString("weight", nil, "component weight override, Name=weight")
	cmdCreate.Flags().BoolP("dry-run", "d", false, "print the structure without creating it")
	cmdSisctl.AddCommand(cmdCreate)

	cmdCheck := &cobra.Command{
		Use:   "config-check",
		Short: "check config values, database tables and SIS reachability",
		Run:   CommandConfigCheck,
	}
	cmdSisctl.AddCommand(cmdCheck)

	cmdMigrate := &cobra.Command{
		Use:   "migrate [status]",
		Short: "apply database migrations, or list their status",
		Args:  cobra.MaximumNArgs(1),
		Run:   CommandMigrate,
	}
	cmdSisctl.AddCommand(cmdMigrate)

	if err := cmdSisctl.Execute(); err != nil {
		os.Exit(1)
	}
}

// mustInit loads config through the shared app wiring. Flags on the root
// command override the config file location and log level.
func mustInit(cmd *cobra.Command) *app.App {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		os.Setenv("CONFIG_PATH", path)
	}
	a, err := app.Init("sisctl")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	return a
}

func mustConnectDB(a *app.App) {
	if err := a.ConnectDB(); err != nil {
		a.Log.Fatal().Err(err).Msg("Database unavailable")
	}
}
