package session

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"spotrip/internal/services"
)

// apiStatus extracts the HTTP status from a Web API error, or 0.
func apiStatus(err error) int {
	var value spotify.Error
	if errors.As(err, &value) {
		return value.Status
	}
	var ptr *spotify.Error
	if errors.As(err, &ptr) && ptr != nil {
		return ptr.Status
	}
	var retrieve *oauth2.RetrieveError
	if errors.As(err, &retrieve) && retrieve.Response != nil {
		return retrieve.Response.StatusCode
	}
	return 0
}

// classify tags a Web API failure with the error kind the engine acts on.
func classify(op, subject string, err error) error {
	if err == nil {
		return nil
	}
	marker := services.ErrExternalTool
	switch status := apiStatus(err); {
	case errors.Is(err, context.Canceled):
		marker = services.ErrAborted
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		marker = services.ErrAuth
	case status == http.StatusNotFound || status == http.StatusBadRequest:
		marker = services.ErrTrackUnavailable
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		marker = services.ErrTransientDelivery
	case errors.Is(err, context.DeadlineExceeded):
		marker = services.ErrTransientDelivery
	default:
		var netErr net.Error
		if errors.As(err, &netErr) {
			marker = services.ErrTransientDelivery
		}
	}
	return services.Wrap(marker, "spotify", op, subject, err)
}
