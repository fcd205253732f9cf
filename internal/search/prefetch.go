package search

import (
	"context"

	"github.com/sirupsen/logrus"

	"homeradius/server/internal/models"
)

// ProgressFunc receives (completed page, total pages) at least once
// per page, cache hits included.
type ProgressFunc func(current, total int)

// PrefetchAll drains every upstream page through the shared queue.
// Pages that persistently fail are logged and skipped; LoadedPages in
// the result lists exactly which pages made it, so a caller can
// re-request the gaps instead of rerunning everything.
func (o *Orchestrator) PrefetchAll(ctx context.Context, onProgress ProgressFunc) (models.PrefetchResult, error) {
	report := func(current, total int) {
		if onProgress != nil {
			onProgress(current, total)
		}
	}

	result := models.PrefetchResult{LoadedPages: []int{}}

	first, err := o.fetcher.FetchPage(ctx, 1)
	if err != nil {
		return result, err
	}
	result.TotalCount = first.TotalCount
	result.TotalPages = first.TotalPages

	if first.Degraded {
		o.logger.WithField("reason", first.Reason).Warn("Prefetch could not load page 1")
		report(1, result.TotalPages)
		return result, nil
	}
	result.Properties = append(result.Properties, first.Properties...)
	result.LoadedPages = append(result.LoadedPages, 1)
	report(1, result.TotalPages)

	for page := 2; page <= result.TotalPages; page++ {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		fetched, err := o.fetcher.FetchPage(ctx, page)
		if err != nil {
			// Rate-limit retries are already exhausted at this point;
			// skip the page and keep draining.
			o.logger.WithError(err).WithField("page", page).Error("Prefetch page failed, skipping")
			report(page, result.TotalPages)
			continue
		}
		if fetched.Degraded {
			o.logger.WithFields(logrus.Fields{
				"page":   page,
				"reason": fetched.Reason,
			}).Warn("Prefetch page degraded, skipping")
			report(page, result.TotalPages)
			continue
		}

		result.Properties = append(result.Properties, fetched.Properties...)
		result.LoadedPages = append(result.LoadedPages, page)
		report(page, result.TotalPages)
	}

	o.logger.WithFields(logrus.Fields{
		"pages_loaded": len(result.LoadedPages),
		"total_pages":  result.TotalPages,
		"properties":   len(result.Properties),
	}).Info("Prefetch completed")

	return result, nil
}
