package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/datlabs/r2recon/pkg/r2list"
)

// prefixesCmd represents the prefixes command
var prefixesCmd = &cobra.Command{
	Use:   "prefixes",
	Short: "List the common key prefixes under a prefix (discovery mode)",
	Long: `Issues a single delimited listing request and prints the common prefixes
from the first page. Useful for discovering which top-level directories exist
before reconciling them one by one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bucket, _ := cmd.Flags().GetString("bucket")
		if bucket == "" {
			bucket = viper.GetString("r2.bucket")
		}
		if bucket == "" {
			return fmt.Errorf("bucket is required (-b flag, r2.bucket or R2_BUCKET)")
		}
		prefix, _ := cmd.Flags().GetString("prefix")
		delimiter, _ := cmd.Flags().GetString("delimiter")

		lister, err := newLister(cmd)
		if err != nil {
			return err
		}

		page, err := lister.List(context.Background(), r2list.ListRequest{
			Bucket:    bucket,
			Prefix:    prefix,
			Delimiter: delimiter,
		})
		if err != nil {
			return err
		}

		if len(page.CommonPrefixes) == 0 {
			fmt.Println("No common prefixes found.")
			return nil
		}
		for _, p := range page.CommonPrefixes {
			fmt.Println(p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(prefixesCmd)

	prefixesCmd.Flags().StringP("bucket", "b", "", "Bucket to inspect (falls back to r2.bucket / R2_BUCKET)")
	prefixesCmd.Flags().StringP("prefix", "p", "", "Key prefix to inspect")
	prefixesCmd.Flags().StringP("delimiter", "d", "/", "Delimiter that groups keys into prefixes")
}
