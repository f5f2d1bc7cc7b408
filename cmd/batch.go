package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/lender-match/internal/model"
	"github.com/sells-group/lender-match/internal/store"
)

var (
	batchLimit  int
	batchStatus string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Match and save every application with the given status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		svc, cleanup, err := initMatcher(ctx, st, nil)
		if err != nil {
			return err
		}
		defer cleanup()

		apps, err := st.ListApplications(ctx, store.ApplicationFilter{
			Status: model.ApplicationStatus(batchStatus),
			Limit:  batchLimit,
		})
		if err != nil {
			return eris.Wrap(err, "batch: list applications")
		}

		sum, err := processBatch(ctx, apps, cfg.Batch.MaxConcurrentApplications, svc.Match, st)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "matched %d applications (%d failed)\n", sum.Succeeded, sum.Failed)
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 100, "max number of applications to process")
	batchCmd.Flags().StringVar(&batchStatus, "status", string(model.ApplicationPending), "application status to select")
	rootCmd.AddCommand(batchCmd)
}

// matchFunc evaluates one application.
type matchFunc func(ctx context.Context, applicationID string) (*model.MatchRun, error)

// runSaver persists a match run and advances the application status.
type runSaver interface {
	SaveMatchRun(ctx context.Context, run model.MatchRun) (*model.MatchRun, error)
	UpdateApplicationStatus(ctx context.Context, id string, status model.ApplicationStatus) error
}

type batchSummary struct {
	Succeeded int64
	Failed    int64
}

// processBatch matches apps concurrently, saving each run. A failed
// application is logged and counted; it does not stop the batch.
func processBatch(ctx context.Context, apps []model.Application, concurrency int, match matchFunc, st runSaver) (batchSummary, error) {
	if len(apps) == 0 {
		zap.L().Info("no applications to match")
		return batchSummary{}, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("applications", len(apps)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var succeeded, failed atomic.Int64

	for _, app := range apps {
		g.Go(func() error {
			log := zap.L().With(zap.String("application_id", app.ID))

			run, err := match(gctx, app.ID)
			if err == nil {
				run, err = saveRun(gctx, st, run)
			}
			if err != nil {
				failed.Add(1)
				log.Error("match failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			succeeded.Add(1)
			log.Info("match complete",
				zap.String("run_id", run.ID),
				zap.Int("eligible", countEligible(run.Results)),
				zap.Int("policies", len(run.Results)),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return batchSummary{}, eris.Wrap(err, "batch processing")
	}

	sum := batchSummary{Succeeded: succeeded.Load(), Failed: failed.Load()}
	zap.L().Info("batch complete",
		zap.Int64("succeeded", sum.Succeeded),
		zap.Int64("failed", sum.Failed),
	)
	return sum, nil
}

// saveRun stores run and marks its application matched.
func saveRun(ctx context.Context, st runSaver, run *model.MatchRun) (*model.MatchRun, error) {
	saved, err := st.SaveMatchRun(ctx, *run)
	if err != nil {
		return nil, eris.Wrapf(err, "save match run for %s", run.ApplicationID)
	}
	if err := st.UpdateApplicationStatus(ctx, run.ApplicationID, model.ApplicationMatched); err != nil {
		return nil, eris.Wrapf(err, "mark %s matched", run.ApplicationID)
	}
	return saved, nil
}

func countEligible(results []model.MatchResult) int {
	n := 0
	for _, r := range results {
		if r.Eligible {
			n++
		}
	}
	return n
}
