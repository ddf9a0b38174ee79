/*
Package cmd implements the taskstream command-line interface: a
reference job server and a submit-and-watch client for long-running
knowledge-graph jobs.
*/
package cmd

import (
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/graphmind/taskstream/pkg/logging"
)

var (
	projectName = "taskstream"
	cfgFile     string

	rootCmd = &cobra.Command{
		Use:   "taskstream",
		Short: "Track long-running backend jobs over SSE",
		Long:  longRoot,
	}
)

/*
Execute is the main entry point for the taskstream CLI.
*/
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"",
		"config file (default is $HOME/."+projectName+"/config.yml)",
	)
}

/*
initConfig loads configuration with sane defaults, overridable through
an optional config file and TASKSTREAM_* environment variables.
*/
func initConfig() {
	viper.SetDefault("server.addr", ":3210")
	viper.SetDefault("client.base_url", "http://localhost:3210")
	viper.SetDefault("client.idle_timeout", "60s")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.caller", false)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, _ := os.UserHomeDir()
		viper.SetConfigName("config")
		viper.SetConfigType("yml")
		viper.AddConfigPath(home + "/." + projectName)
	}

	viper.SetEnvPrefix(strings.ToUpper(projectName))
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	logging.Setup(viper.GetString("log.level"), viper.GetBool("log.caller"))
	if err == nil {
		log.Debug("loaded config", "file", viper.ConfigFileUsed())
	}
}

/*
longRoot contains the detailed help text for the root command.
*/
var longRoot = `
taskstream tracks long-running backend jobs of a knowledge-graph memory
console: submit a job, follow its progress over a server-sent event
stream and report the terminal result exactly once.

It also ships a reference job server so the whole flow can be exercised
locally.
`
