package handlers

import (
	"errors"
	"net/http"

	"github.com/yungbote/loresmith/internal/jobs/client"
	"github.com/yungbote/loresmith/internal/jobs/lifecycle"
	"github.com/yungbote/loresmith/internal/pipeline"
	"github.com/yungbote/loresmith/internal/pipeline/selection"
	"github.com/yungbote/loresmith/internal/platform/apierr"
	"github.com/yungbote/loresmith/internal/session"
	"github.com/yungbote/loresmith/internal/worldimage"
)

// classify maps domain and backend errors onto HTTP statuses and stable codes.
func classify(err error) *apierr.Error {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		return ae
	}
	var (
		ve *client.ValidationError
		ne *client.NotFoundError
		te *client.TimeoutError
		we *client.NetworkError
	)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return apierr.New(http.StatusNotFound, "session_not_found", err)
	case errors.Is(err, session.ErrUserRequired):
		return apierr.New(http.StatusBadRequest, "user_required", err)
	case errors.Is(err, session.ErrTooManyActive):
		return apierr.New(http.StatusTooManyRequests, "too_many_sessions", err)
	case errors.Is(err, pipeline.ErrIndexOutOfRange):
		return apierr.New(http.StatusBadRequest, "index_out_of_range", err)
	case errors.Is(err, pipeline.ErrNotSelectable):
		return apierr.New(http.StatusConflict, "not_selectable", err)
	case errors.Is(err, pipeline.ErrFinalizeNotReached):
		return apierr.New(http.StatusConflict, "finalize_not_reached", err)
	case errors.Is(err, pipeline.ErrClosed), errors.Is(err, lifecycle.ErrClosed), errors.Is(err, selection.ErrNoSession):
		return apierr.New(http.StatusGone, "session_closed", err)
	case errors.Is(err, worldimage.ErrInvalidWorld):
		return apierr.New(http.StatusBadRequest, "invalid_world_id", err)
	case errors.As(err, &ve):
		return apierr.New(http.StatusBadRequest, "invalid_job_request", err)
	case errors.As(err, &ne):
		return apierr.New(http.StatusNotFound, "job_not_found", err)
	case errors.As(err, &te):
		return apierr.New(http.StatusGatewayTimeout, "backend_timeout", err)
	case errors.As(err, &we):
		return apierr.New(http.StatusBadGateway, "backend_unavailable", err)
	default:
		return apierr.New(http.StatusInternalServerError, "internal_error", err)
	}
}

func errOrMissing(err error, msg string) error {
	if err != nil {
		return err
	}
	return errors.New(msg)
}
