package models

// RankRequest is the payload for POST /api/v1/rank.
type RankRequest struct {
	Query  string `json:"query" binding:"required"`
	Target string `json:"target" binding:"required"`

	// MaxScrollAttempts overrides the configured scroll budget.
	MaxScrollAttempts int `json:"max_scroll_attempts,omitempty" binding:"omitempty,min=1,max=200"`
}

// RankResponse is the response for POST /api/v1/rank.
type RankResponse struct {
	Success bool         `json:"success"`
	Row     *ResultRow   `json:"row,omitempty"`
	Timing  TimingInfo   `json:"timing"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// BatchRequest is the payload for POST /api/v1/batch.
type BatchRequest struct {
	// Pairs is the ordered list of lookups. Required.
	Pairs []Pair `json:"pairs" binding:"required,min=1,dive"`

	Options BatchOptions `json:"options"`
}

// BatchOptions are the settings shared by every pair in a batch.
type BatchOptions struct {
	MaxScrollAttempts int    `json:"max_scroll_attempts,omitempty" form:"max_scroll_attempts" binding:"omitempty,min=1,max=200"`
	WebhookURL        string `json:"webhook_url,omitempty" form:"webhook_url" binding:"omitempty,url"`
	WebhookSecret     string `json:"webhook_secret,omitempty" form:"webhook_secret"`
}

// BatchResponse is the immediate response for batch creation.
type BatchResponse struct {
	ID     string       `json:"id,omitempty"`
	Status string       `json:"status"`
	Total  int          `json:"total"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string       `json:"id"`
	Status    string       `json:"status"`
	Completed int          `json:"completed"`
	Total     int          `json:"total"`
	Progress  float64      `json:"progress"`
	Message   string       `json:"message,omitempty"`
	Rows      []ResultRow  `json:"rows,omitempty"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// Batch job statuses.
const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// TimingInfo breaks down the time spent on a request.
type TimingInfo struct {
	TotalMs int64 `json:"total_ms"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"` // "healthy" or "degraded"
	Uptime     string `json:"uptime"`
	Driver     string `json:"driver"`
	ActiveJobs int    `json:"active_jobs"`
	MaxJobs    int    `json:"max_concurrent_jobs"`
	Version    string `json:"version"`
}

// ErrorResponse is the body of every API error that has no richer response
// type.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}
