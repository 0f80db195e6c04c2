package sink

import (
	"context"
	"time"

	"github.com/use-agent/maprank/models"
	"github.com/use-agent/maprank/report"
)

// CompletionData is the Data of a batch.completed event.
type CompletionData struct {
	Status  string              `json:"status"`
	Total   int                 `json:"total"`
	Summary report.Summary      `json:"summary"`
	Rows    []models.ResultRow  `json:"rows"`
	Error   *models.ErrorDetail `json:"error,omitempty"`
}

// Notifier fans a finished job out to its webhook and to Kafka. Either part
// may be nil.
type Notifier struct {
	Webhook *Webhook
	Kafka   *KafkaPublisher
}

// JobFinished delivers st in the background. The webhook is only called when
// opts names one.
func (n *Notifier) JobFinished(opts models.BatchOptions, st models.BatchStatusResponse) {
	if n == nil {
		return
	}
	if n.Webhook != nil && opts.WebhookURL != "" {
		n.Webhook.DeliverAsync(opts.WebhookURL, opts.WebhookSecret, &Event{
			Type:      EventBatchCompleted,
			JobID:     st.ID,
			Timestamp: time.Now().Unix(),
			Data: CompletionData{
				Status:  st.Status,
				Total:   st.Total,
				Summary: report.Summarize(st.Rows),
				Rows:    st.Rows,
				Error:   st.Error,
			},
		})
	}
	if n.Kafka != nil && len(st.Rows) > 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = n.Kafka.PublishRows(ctx, st.ID, st.Rows)
		}()
	}
}
