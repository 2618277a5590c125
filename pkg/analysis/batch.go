package analysis

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/garethmul/newsmill/pkg/models"
)

// BatchResult counts the outcomes of one analysis batch.
type BatchResult struct {
	Analyzed int `json:"analyzed"`
	Failed   int `json:"failed"`
}

// ProgressFunc is called after each article finishes, successfully or not.
type ProgressFunc func(done, total int)

// AnalyzeBatch analyzes the given articles with bounded concurrency. Call
// pacing happens inside AnalyzeArticle, between one article's prompts. One
// article failing does not stop the rest; the returned error is non-nil only
// when the context is cancelled before all articles were dispatched.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, accountID string, jobID *string, articles []*models.ScrapedArticle, progress ProgressFunc) (*BatchResult, error) {
	total := len(articles)
	result := &BatchResult{}
	if total == 0 {
		return result, nil
	}

	sem := semaphore.NewWeighted(int64(a.cfg.MaxConcurrent))
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		done int
	)

	finish := func(ok bool) {
		mu.Lock()
		if ok {
			result.Analyzed++
		} else {
			result.Failed++
		}
		done++
		d := done
		mu.Unlock()
		if progress != nil {
			progress(d, total)
		}
	}

	var dispatchErr error
	for i, article := range articles {
		dispatchErr = sem.Acquire(ctx, 1)
		if dispatchErr != nil {
			// Remaining articles stay in scraped status for a later run.
			mu.Lock()
			result.Failed += total - i
			mu.Unlock()
			break
		}

		wg.Add(1)
		go func(article *models.ScrapedArticle) {
			defer wg.Done()
			defer sem.Release(1)
			_, err := a.AnalyzeArticle(ctx, accountID, jobID, article)
			if err != nil {
				a.logger.Warn("batch article analysis failed",
					"article_id", article.ID, "error", err)
			}
			finish(err == nil)
		}(article)
	}

	wg.Wait()
	a.logger.Info("analysis batch finished",
		"total", total, "analyzed", result.Analyzed, "failed", result.Failed)
	return result, dispatchErr
}
