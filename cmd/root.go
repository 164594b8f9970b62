package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/datlabs/r2recon/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "r2recon",
	Short: "Reconciles an R2 bucket inventory against the artifacts catalog.",
	Long: `r2recon lists every object in a content-addressed R2 bucket, classifies
each key, and ensures the artifacts catalog holds exactly one row per object,
no matter how many times the job is re-run or interrupted.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.r2recon.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".r2recon")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.r2recon.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default empty values for all keys
	viper.SetDefault("r2.account_id", "")
	viper.SetDefault("r2.access_key_id", "")
	viper.SetDefault("r2.secret_access_key", "")
	viper.SetDefault("r2.bucket", "")
	viper.SetDefault("catalog.account_id", "")
	viper.SetDefault("catalog.database_id", "")
	viper.SetDefault("catalog.api_token", "")

	// The same settings travel under the conventional env names used by the
	// surrounding tooling.
	viper.BindEnv("r2.account_id", "CLOUDFLARE_ACCOUNT_ID")
	viper.BindEnv("r2.access_key_id", "AWS_ACCESS_KEY_ID")
	viper.BindEnv("r2.secret_access_key", "AWS_SECRET_ACCESS_KEY")
	viper.BindEnv("r2.bucket", "R2_BUCKET")
	viper.BindEnv("catalog.account_id", "CLOUDFLARE_ACCOUNT_ID")
	viper.BindEnv("catalog.database_id", "CLOUDFLARE_D1_DATABASE_ID")
	viper.BindEnv("catalog.api_token", "CLOUDFLARE_API_TOKEN")

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
