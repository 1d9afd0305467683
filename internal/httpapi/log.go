package httpapi

import (
	"context"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

func (s server) logError(ctx context.Context, msg string, err error) {
	if err == nil {
		return
	}
	s.withReqID(ctx, s.log.Error()).Err(err).Msg(msg)
}

func (s server) logWarn(ctx context.Context, msg string, err error) {
	s.withReqID(ctx, s.log.Warn()).Err(err).Msg(msg)
}

func (s server) logInfo(ctx context.Context, msg string) {
	s.withReqID(ctx, s.log.Info()).Msg(msg)
}

func (s server) withReqID(ctx context.Context, e *zerolog.Event) *zerolog.Event {
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		e = e.Str("req_id", reqID)
	}
	return e
}
