package session

import (
	"log/slog"

	"spotrip/internal/config"
)

// NewSpotify returns the production session: Web API metadata plus helper
// command audio delivery.
func NewSpotify(cfg *config.Config, logger *slog.Logger, opts ...WebAPIOption) Session {
	catalog := NewWebAPI(cfg, logger, opts...)
	delivery := NewCommandDelivery(cfg, catalog.User, logger)
	return Compose(catalog, delivery)
}
