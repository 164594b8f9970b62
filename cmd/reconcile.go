package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/datlabs/r2recon/internal/utils"
	"github.com/datlabs/r2recon/pkg/catalog"
	"github.com/datlabs/r2recon/pkg/r2list"
	"github.com/datlabs/r2recon/pkg/reconcile"
	"github.com/datlabs/r2recon/pkg/retry"
	"github.com/datlabs/r2recon/pkg/sigv4"
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Scan the bucket and upsert a catalog row for every object",
	Long: `Pages through the bucket listing, classifies each object key, and performs
an idempotent insert-or-upgrade against the artifacts catalog. Always prints
a final JSON report with a resume token, even when the run aborts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		bucket, _ := cmd.Flags().GetString("bucket")
		if bucket == "" {
			bucket = viper.GetString("r2.bucket")
		}
		prefix, _ := cmd.Flags().GetString("prefix")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		pageSize, _ := cmd.Flags().GetInt("page-size")
		maxObjects, _ := cmd.Flags().GetInt("max-objects")
		progressEvery, _ := cmd.Flags().GetInt("progress-every")
		maxErrors, _ := cmd.Flags().GetInt("max-errors")
		allowEmptyPrefix, _ := cmd.Flags().GetBool("allow-empty-prefix")
		throttle, _ := cmd.Flags().GetDuration("throttle")
		noVerify, _ := cmd.Flags().GetBool("no-verify")
		resumeCursor, _ := cmd.Flags().GetString("resume-cursor")
		resumeStartAfter, _ := cmd.Flags().GetString("resume-start-after")
		backend, _ := cmd.Flags().GetString("catalog")
		dbPath, _ := cmd.Flags().GetString("dbpath")

		lister, err := newLister(cmd)
		if err != nil {
			return err
		}

		cat, unlock, err := openCatalog(backend, dbPath)
		if err != nil {
			return err
		}
		defer cat.Close()
		if unlock != nil {
			defer unlock()
		}

		engine, err := reconcile.New(lister, cat, reconcile.Options{
			Bucket:           bucket,
			Prefix:           prefix,
			DryRun:           dryRun,
			PageSize:         pageSize,
			MaxObjects:       maxObjects,
			ProgressEvery:    progressEvery,
			MaxErrors:        maxErrors,
			AllowEmptyPrefix: allowEmptyPrefix,
			Throttle:         throttle,
			Verify:           !noVerify,
			ResumeCursor:     resumeCursor,
			ResumeStartAfter: resumeStartAfter,
			Retry:            retry.DefaultPolicy(),
		})
		if err != nil {
			return err
		}

		report, runErr := engine.Run(context.Background())
		printReport(report)
		return runErr
	},
}

// newLister builds the signed listing client from config, failing fast on
// missing credentials before any network call.
func newLister(cmd *cobra.Command) (*r2list.Client, error) {
	accountID := viper.GetString("r2.account_id")
	accessKeyID := viper.GetString("r2.access_key_id")
	secret := viper.GetString("r2.secret_access_key")
	if accountID == "" || accessKeyID == "" || secret == "" {
		return nil, fmt.Errorf("missing R2 credentials: set r2.account_id, r2.access_key_id and r2.secret_access_key (or CLOUDFLARE_ACCOUNT_ID / AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY)")
	}

	cfg := r2list.Config{
		AccountID: accountID,
		Credentials: sigv4.Credentials{
			AccessKeyID:     accessKeyID,
			SecretAccessKey: secret,
			Region:          "auto",
			Service:         "s3",
		},
		Retry: retry.DefaultPolicy(),
	}

	proxy, _ := rootCmd.PersistentFlags().GetString("proxy")
	if proxy != "" {
		proxyURL, err := url.Parse(proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		cfg.HTTPClient = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
			Timeout:   60 * time.Second,
		}
	}

	return r2list.NewClient(cfg), nil
}

// openCatalog picks the catalog backend. The sqlite mirror takes a file
// lock so two local runs cannot interleave writes.
func openCatalog(backend, dbPath string) (catalog.Client, func(), error) {
	switch backend {
	case "d1":
		client, err := catalog.NewD1Client(catalog.D1Config{
			AccountID:  viper.GetString("catalog.account_id"),
			DatabaseID: viper.GetString("catalog.database_id"),
			APIToken:   viper.GetString("catalog.api_token"),
		})
		if err != nil {
			return nil, nil, err
		}
		return client, nil, nil
	case "sqlite":
		path, err := utils.GetAbsDBPath(dbPath)
		if err != nil {
			return nil, nil, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, err
		}
		lock, err := utils.NewDBLock(path)
		if err != nil {
			return nil, nil, err
		}
		if err := lock.Lock(); err != nil {
			return nil, nil, err
		}
		client, err := catalog.OpenSQLite(path)
		if err != nil {
			lock.Unlock()
			return nil, nil, err
		}
		return client, func() { lock.Unlock() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown catalog backend %q (want d1 or sqlite)", backend)
	}
}

func printReport(report *reconcile.Report) {
	if report == nil {
		return
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		utils.Log.Errorf("could not marshal report: %v", err)
		return
	}
	fmt.Println(string(out))
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringP("bucket", "b", "", "Bucket to scan (falls back to r2.bucket / R2_BUCKET)")
	reconcileCmd.Flags().StringP("prefix", "p", "", "Key prefix to scan")
	reconcileCmd.Flags().Bool("dry-run", false, "Classify and count, but write nothing")
	reconcileCmd.Flags().Int("page-size", 1000, "Listing page size (clamped to 1..1000)")
	reconcileCmd.Flags().Int("max-objects", 0, "Stop after scanning this many objects (0 = unlimited)")
	reconcileCmd.Flags().Int("progress-every", 500, "Log a progress line every N objects")
	reconcileCmd.Flags().Int("max-errors", 25, "Abort the run after this many per-object failures")
	reconcileCmd.Flags().Bool("allow-empty-prefix", false, "Allow scanning the whole bucket with an empty prefix")
	reconcileCmd.Flags().Duration("throttle", 0, "Optional delay between catalog writes (e.g. 50ms)")
	reconcileCmd.Flags().Bool("no-verify", false, "Trust the backend's affected-row counts instead of re-reading existence around each insert")
	reconcileCmd.Flags().String("resume-cursor", "", "Continuation token from a previous run's resume output")
	reconcileCmd.Flags().String("resume-start-after", "", "Start-after key from a previous run's resume output")
	reconcileCmd.Flags().String("catalog", "d1", "Catalog backend: d1 or sqlite")
	reconcileCmd.Flags().String("dbpath", "", "Path to the sqlite catalog (sqlite backend only)")
}
