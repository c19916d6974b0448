package handler

import (
	"log/slog"

	"github.com/insightq/analysis-jobs/internal/store"
	"github.com/insightq/analysis-jobs/internal/submit"
	"github.com/insightq/analysis-jobs/internal/webhook"
)

// Dependencies holds everything the HTTP handlers need.
type Dependencies struct {
	Logger    *slog.Logger
	Submitter *submit.Submitter
	Store     store.JobStore
	Receiver  *webhook.Receiver

	// SignatureHeader is the request header carrying the webhook HMAC.
	SignatureHeader string

	// QueueHealthy reports broker reachability for the health endpoint.
	QueueHealthy func() bool
}
