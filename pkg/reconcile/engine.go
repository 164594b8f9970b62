// Package reconcile drives the inventory reconciliation run: page through
// the bucket listing, classify every object, and upsert a catalog row for
// it exactly once no matter how often the run is repeated or interrupted.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/datlabs/r2recon/internal/utils"
	"github.com/datlabs/r2recon/pkg/catalog"
	"github.com/datlabs/r2recon/pkg/classify"
	"github.com/datlabs/r2recon/pkg/r2list"
	"github.com/datlabs/r2recon/pkg/retry"
)

// Lister is the listing collaborator; satisfied by *r2list.Client.
type Lister interface {
	List(ctx context.Context, req r2list.ListRequest) (*r2list.Page, error)
}

// Options configures a run. Verify controls the before/after existence
// check that compensates for backends with unreliable affected-row counts;
// it defaults on in the CLI.
type Options struct {
	Bucket           string
	Prefix           string
	DryRun           bool
	PageSize         int
	MaxObjects       int // 0 = unlimited
	ProgressEvery    int
	MaxErrors        int
	AllowEmptyPrefix bool
	Throttle         time.Duration
	Verify           bool
	ResumeCursor     string
	ResumeStartAfter string
	Retry            retry.Policy
}

// ErrAborted is wrapped into the error returned when the error-count
// circuit breaker trips.
var ErrAborted = errors.New("run aborted: error threshold exceeded")

type outcome int

const (
	outcomeInserted outcome = iota
	outcomeUpgraded
	outcomeNoop
)

type Engine struct {
	lister Lister
	cat    catalog.Client
	opts   Options

	// sleep is swapped out by tests.
	sleep func(ctx context.Context, d time.Duration)
}

func New(lister Lister, cat catalog.Client, opts Options) (*Engine, error) {
	if opts.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if opts.Prefix == "" && !opts.AllowEmptyPrefix {
		return nil, errors.New("refusing to scan an empty prefix; pass --allow-empty-prefix to scan the whole bucket")
	}
	if opts.MaxErrors <= 0 {
		opts.MaxErrors = 25
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 500
	}
	return &Engine{
		lister: lister,
		cat:    cat,
		opts:   opts,
		sleep: func(ctx context.Context, d time.Duration) {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		},
	}, nil
}

// Run executes the reconciliation loop. The returned report is non-nil on
// every path, including aborts, so the caller can always emit it; the error
// is non-nil when the run did not finish cleanly.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	sum := Summary{}
	stats := classify.NewStats()

	req := r2list.ListRequest{
		Bucket:     e.opts.Bucket,
		Prefix:     e.opts.Prefix,
		Cursor:     e.opts.ResumeCursor,
		StartAfter: e.opts.ResumeStartAfter,
		MaxKeys:    e.opts.PageSize,
	}

	// resume always points at the request that produced the page currently
	// being processed: everything before it has been durably written.
	resume := ResumeToken{Cursor: req.Cursor, StartAfter: req.StartAfter}

	for {
		page, err := e.lister.List(ctx, req)
		if err != nil {
			// Without a valid page the loop cannot safely advance its
			// cursor, so a listing failure is fatal.
			utils.Log.Errorf("listing failed for bucket %s: %v", e.opts.Bucket, err)
			return e.report(sum, stats, resume, fmt.Sprintf("listing failed: %v", err)),
				fmt.Errorf("listing failed: %w", err)
		}

		for _, obj := range page.Objects {
			if e.opts.MaxObjects > 0 && sum.Scanned >= e.opts.MaxObjects {
				return e.report(sum, stats, resume, ""), nil
			}
			if err := e.processObject(ctx, obj, &sum, stats); err != nil {
				return e.report(sum, stats, resume, err.Error()), err
			}
			if e.opts.ProgressEvery > 0 && sum.Scanned%e.opts.ProgressEvery == 0 {
				utils.Log.Infof("progress: scanned=%d inserted=%d upgraded=%d noops=%d errors=%d last_key=%s",
					sum.Scanned, sum.InsertedNew, sum.UpgradedExisting, sum.Noops, sum.Errors, obj.Key)
			}
		}

		next, more := r2list.Advance(req, page)
		if !more {
			resume = ResumeToken{}
			return e.report(sum, stats, resume, ""), nil
		}
		req = next
		resume = ResumeToken{Cursor: req.Cursor, StartAfter: req.StartAfter}
	}
}

// processObject classifies one object and reconciles its catalog row. A
// write failure is an object-level event: it is logged and counted, and
// only becomes fatal once the cumulative error count reaches the threshold.
func (e *Engine) processObject(ctx context.Context, obj r2list.Object, sum *Summary, stats *classify.Stats) error {
	sum.Scanned++

	res := classify.Classify(obj.Key)
	stats.Record(obj.Key, res)
	if res.SourceType == classify.Unknown {
		sum.UnknownSourceType++
	}

	if e.opts.DryRun {
		sum.Skipped++
		return nil
	}

	art := catalog.Artifact{
		ArtifactID:  catalog.ArtifactID(e.opts.Bucket, obj.Key),
		SourceType:  res.SourceType,
		ContentHash: catalog.ContentHash(obj.ETag, obj.Key),
		Bucket:      e.opts.Bucket,
		Key:         obj.Key,
		Ticker:      catalog.TickerFromKey(obj.Key),
	}
	if obj.LastModified != "" {
		lm := obj.LastModified
		art.FetchedAt = &lm
	}

	out, err := e.upsert(ctx, art)
	if err != nil {
		sum.Errors++
		utils.Log.Errorf("upsert failed: key=%s artifact_id=%s source_type=%s rule=%s err=%v",
			obj.Key, art.ArtifactID, res.SourceType, res.MatchedRule, err)
		if sum.Errors >= e.opts.MaxErrors {
			return fmt.Errorf("%w (%d errors)", ErrAborted, sum.Errors)
		}
		return nil
	}

	switch out {
	case outcomeInserted:
		sum.InsertedNew++
	case outcomeUpgraded:
		sum.UpgradedExisting++
	default:
		sum.Noops++
	}

	if e.opts.Throttle > 0 {
		e.sleep(ctx, e.opts.Throttle)
	}
	return nil
}

// upsert implements insert-if-absent with a monotonic source_type upgrade.
// With Verify enabled the outcome is decided by existence reads around the
// insert instead of the backend's affected-row count, which some catalog
// stores report unreliably for INSERT OR IGNORE.
func (e *Engine) upsert(ctx context.Context, art catalog.Artifact) (outcome, error) {
	existedBefore := false
	if e.opts.Verify {
		err := retry.Do(ctx, "catalog exists "+art.Key, e.opts.Retry, func() error {
			var eerr error
			existedBefore, eerr = e.cat.Exists(ctx, art.Bucket, art.Key)
			return eerr
		})
		if err != nil {
			return outcomeNoop, err
		}
	}

	var inserted bool
	err := retry.Do(ctx, "catalog insert "+art.Key, e.opts.Retry, func() error {
		var ierr error
		inserted, ierr = e.cat.Insert(ctx, art)
		return ierr
	})
	if err != nil {
		return outcomeNoop, err
	}

	newRow := inserted
	if e.opts.Verify {
		var existsAfter bool
		err = retry.Do(ctx, "catalog verify "+art.Key, e.opts.Retry, func() error {
			var verr error
			existsAfter, verr = e.cat.Exists(ctx, art.Bucket, art.Key)
			return verr
		})
		if err != nil {
			return outcomeNoop, err
		}
		newRow = !existedBefore && existsAfter
	}

	if newRow {
		return outcomeInserted, nil
	}

	// Already present. Classification can only improve: a concrete label
	// replaces unknown, never another concrete label.
	if art.SourceType != classify.Unknown {
		var upgraded bool
		err = retry.Do(ctx, "catalog upgrade "+art.Key, e.opts.Retry, func() error {
			var uerr error
			upgraded, uerr = e.cat.UpgradeSourceType(ctx, art.Bucket, art.Key, art.SourceType)
			return uerr
		})
		if err != nil {
			return outcomeNoop, err
		}
		if upgraded {
			return outcomeUpgraded, nil
		}
	}

	return outcomeNoop, nil
}

func (e *Engine) report(sum Summary, stats *classify.Stats, resume ResumeToken, aborted string) *Report {
	sum.Inserted = sum.InsertedNew + sum.UpgradedExisting
	sum.SourceTypeCounts = stats.SourceTypeCounts
	sum.UnknownFirstSegCounts = stats.UnknownFirstSegCounts
	sum.UnknownKeySamples = stats.UnknownSamples
	return &Report{
		Success: aborted == "",
		DryRun:  e.opts.DryRun,
		Bucket:  e.opts.Bucket,
		Prefix:  e.opts.Prefix,
		Aborted: aborted,
		Resume:  resume,
		Summary: sum,
	}
}
