package httpapi

import (
	"context"
	"log"

	"github.com/go-chi/chi/v5/middleware"
)

func logError(ctx context.Context, logger *log.Logger, msg string, err error) {
	if err == nil {
		return
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger.Printf("httpapi: %s (req_id=%s): %v", msg, reqID, err)
		return
	}
	logger.Printf("httpapi: %s: %v", msg, err)
}
