package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/maprank/models"
)

// Rank returns a handler for POST /api/v1/rank.
//
// The lookup runs synchronously as a batch of one on its own session, so it
// competes with batches for the same slots.
func Rank(s *Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.RankRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewRankError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}
		pair := models.Pair{Query: req.Query, Target: req.Target}
		if err := s.validatePairs([]models.Pair{pair}); err != nil {
			respondError(c, err)
			return
		}

		// ── 2. Claim a slot ─────────────────────────────────────────
		if !s.tryAcquire() {
			respondError(c, errBusy)
			return
		}
		defer s.release()

		// ── 3. Resolve ──────────────────────────────────────────────
		rows, err := s.runnerFor(req.MaxScrollAttempts).Run(c.Request.Context(), s.Opener, []models.Pair{pair}, nil)
		timing := models.TimingInfo{TotalMs: time.Since(start).Milliseconds()}
		if err != nil {
			detail := models.DetailOf(err)
			c.JSON(mapErrorToStatus(detail.Code), models.RankResponse{Error: detail, Timing: timing})
			return
		}

		// ── 4. Respond ──────────────────────────────────────────────
		// A per-pair failure still yields a row; its error rides along.
		row := rows[0]
		c.JSON(http.StatusOK, models.RankResponse{
			Success: row.Error == nil,
			Row:     &row,
			Timing:  timing,
			Error:   row.Error,
		})
	}
}
