package service

import (
	"context"
	"sync"
	"time"

	"access_service/internal/models"
)

// BulkService fans a grant or revoke out across many documents for one user.
// Each document id is an independent unit of work: one failure never aborts
// the rest, and the caller gets a per-id report.
type BulkService struct {
	grants  *GrantService
	workers int
}

func NewBulkService(grants *GrantService, workers int) *BulkService {
	if workers <= 0 {
		workers = 8
	}
	return &BulkService{
		grants:  grants,
		workers: workers,
	}
}

func (s *BulkService) BulkGrant(ctx context.Context, userID string, documentIDs []int, permissions []string, expiresAt time.Time, grantedBy string) models.BulkResult {
	return s.run(documentIDs, func(documentID int) error {
		_, err := s.grants.Grant(ctx, userID, documentID, permissions, expiresAt, grantedBy)
		return err
	})
}

func (s *BulkService) BulkRevoke(ctx context.Context, userID string, documentIDs []int, revokedBy string) models.BulkResult {
	return s.run(documentIDs, func(documentID int) error {
		return s.grants.Revoke(ctx, userID, documentID, revokedBy)
	})
}

func (s *BulkService) run(documentIDs []int, op func(documentID int) error) models.BulkResult {
	type job struct {
		index      int
		documentID int
	}

	jobs := make(chan job)
	errs := make([]error, len(documentIDs))

	var wg sync.WaitGroup
	workers := min(s.workers, len(documentIDs))
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				errs[j.index] = op(j.documentID)
			}
		}()
	}

	for i, id := range documentIDs {
		jobs <- job{index: i, documentID: id}
	}
	close(jobs)
	wg.Wait()

	result := models.BulkResult{
		Succeeded: []int{},
		Failed:    []models.BulkFailure{},
	}
	for i, id := range documentIDs {
		if errs[i] != nil {
			result.Failed = append(result.Failed, models.BulkFailure{
				DocumentID: id,
				Error:      models.ErrorCode(errs[i]),
			})
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
	}
	return result
}
