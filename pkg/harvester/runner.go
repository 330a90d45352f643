package harvester

import (
	"context"
	"errors"
	"time"

	"libharvest/pkg/collection"
	errs "libharvest/pkg/errors"
	"libharvest/pkg/logger"
	"libharvest/pkg/metrics"
	"libharvest/pkg/models"
	"libharvest/pkg/ratelimit"
	"libharvest/pkg/storage"
	"libharvest/pkg/token"
)

// Runner drives the full harvest: token bootstrap, discovery, and the
// sequential per-item acquisition loop. Strictly one item at a time; the
// origin binds the token to a single browsing session, so parallel requests
// would only churn it.
type Runner struct {
	crawler   *collection.Crawler
	engine    *Engine
	store     *storage.Manager
	authority *token.Authority
	pacer     *ratelimit.Pacer
	mtr       *metrics.Metrics
	log       logger.Logger

	// Confirm, when set, is consulted after discovery with the total and
	// remaining item counts. Returning false aborts before any download.
	Confirm func(total, remaining int) bool
}

// NewRunner wires the run controller. pacer spaces out item processing;
// mtr may be nil.
func NewRunner(crawler *collection.Crawler, engine *Engine, store *storage.Manager, authority *token.Authority, pacer *ratelimit.Pacer, mtr *metrics.Metrics, log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Runner{
		crawler:   crawler,
		engine:    engine,
		store:     store,
		authority: authority,
		pacer:     pacer,
		mtr:       mtr,
		log:       log,
	}
}

// Run executes a full harvest pass and returns the completion report. An
// interrupt stops the loop after the in-flight item finishes; everything
// already written stays on disk, so the next run resumes where this one
// stopped.
func (r *Runner) Run(ctx context.Context) (*models.RunSummary, error) {
	if err := r.authority.Ensure(ctx); err != nil {
		return nil, err
	}

	urls, err := r.crawler.DiscoverItemURLs(ctx)
	if err != nil {
		return nil, err
	}

	summary := &models.RunSummary{TotalItems: len(urls)}

	// Resume scan: say up front how much of the collection is already done.
	// allIDs spans the full discovered set so the final recount stays honest
	// even when the loop is interrupted partway.
	allIDs := make([]string, 0, len(urls))
	already := 0
	for _, itemURL := range urls {
		id, err := collection.ItemIDFromURL(itemURL)
		if err != nil {
			continue
		}
		allIDs = append(allIDs, id)
		if r.store.HasValidNative(id) {
			already++
		}
	}
	r.log.InfoWithFields("resume scan", map[string]interface{}{
		"total":     len(urls),
		"complete":  already,
		"remaining": len(urls) - already,
	})

	if len(urls) > 0 && already == len(urls) {
		r.log.Info("all items already acquired, nothing to do")
		summary.Skipped = len(urls)
		summary.ValidNative = already
		summary.TokenRefreshes = r.authority.Refreshes()
		return summary, nil
	}

	if r.Confirm != nil && !r.Confirm(len(urls), len(urls)-already) {
		return nil, errs.New(errs.ErrorTypeUnknown, 0, "harvest declined by operator")
	}

	for i, itemURL := range urls {
		if ctx.Err() != nil {
			summary.Interrupted = true
			break
		}

		id, err := collection.ItemIDFromURL(itemURL)
		if err != nil {
			summary.Failed = append(summary.Failed, models.ItemFailure{ItemID: itemURL, Reason: err.Error()})
			r.mtr.IncItemProcessed("failed")
			continue
		}

		// Cheap pre-check: a valid native on disk means the item is done and
		// the page is never even fetched.
		if r.store.HasValidNative(id) {
			summary.Skipped++
			r.mtr.IncItemProcessed("skipped")
			continue
		}

		start := time.Now()
		err = r.acquireWithRecovery(ctx, itemURL, id)
		r.mtr.ObserveItemDuration(time.Since(start))

		if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
			summary.Interrupted = true
			break
		}
		if err != nil {
			summary.Failed = append(summary.Failed, models.ItemFailure{ItemID: id, Reason: err.Error()})
			r.mtr.IncItemProcessed("failed")
			var herr *errs.Error
			if errors.As(err, &herr) {
				r.mtr.IncError(string(herr.Type))
			} else {
				r.mtr.IncError(string(errs.ErrorTypeUnknown))
			}
			r.log.ErrorWithFields("item failed", map[string]interface{}{
				"item_id": id,
				"reason":  err.Error(),
			})
		} else {
			summary.Succeeded++
			r.mtr.IncItemProcessed("succeeded")
			r.log.WithField("item_id", id).Debug("item acquired")
		}

		logger.LogHarvestProgress(id, i+1, len(urls))

		if i < len(urls)-1 {
			if err := r.pacer.Wait(ctx); err != nil {
				summary.Interrupted = true
				break
			}
		}
	}

	summary.ValidNative = r.store.CountValidNative(allIDs)
	summary.TokenRefreshes = r.authority.Refreshes()

	r.log.InfoWithFields("run complete", map[string]interface{}{
		"total":           summary.TotalItems,
		"succeeded":       summary.Succeeded,
		"skipped":         summary.Skipped,
		"failed":          len(summary.Failed),
		"valid_native":    summary.ValidNative,
		"token_refreshes": summary.TokenRefreshes,
		"interrupted":     summary.Interrupted,
	})

	return summary, nil
}

// acquireWithRecovery runs the engine on one item with the token-expiry
// recovery path: on an expiry signal it re-authenticates once and retries
// the same item. If the retry is answered with another challenge, one final
// silent retry is made on the already-refreshed token before the item is
// marked failed; replacement tokens are sometimes rejected on their first
// protected request. Integrity failures ride the same path since they
// usually share the expired-token root cause.
func (r *Runner) acquireWithRecovery(ctx context.Context, itemURL, id string) error {
	_, err := r.engine.AcquireItem(ctx, itemURL)
	if !isExpiryEquivalent(err) {
		return err
	}

	r.mtr.IncTokenRefresh()
	if refreshErr := r.authority.Refresh(ctx, err.Error()); refreshErr != nil {
		return refreshErr
	}

	r.log.WithField("item_id", id).Info("retrying item with fresh token")
	_, err = r.engine.AcquireItem(ctx, itemURL)
	if !isExpiryEquivalent(err) {
		return err
	}

	_, err = r.engine.AcquireItem(ctx, itemURL)
	return err
}

func isExpiryEquivalent(err error) bool {
	return errs.IsTokenExpired(err) || errs.IsIntegrity(err)
}
