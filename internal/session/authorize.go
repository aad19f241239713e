package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"

	"spotrip/internal/config"
	"spotrip/internal/services"
)

// DefaultRedirectAddr is where the authorization callback listens.
const DefaultRedirectAddr = "127.0.0.1:8901"

// Authorize runs the authorization-code flow: it prints the consent URL via
// show, waits for the browser redirect on addr and stores the user token in
// the configured token file. The user token is what allows playlist edits.
func Authorize(ctx context.Context, cfg *config.Config, addr string, show func(url string)) error {
	if cfg.Spotify.ClientID == "" || cfg.Spotify.ClientSecret == "" {
		return services.Wrap(services.ErrAuth, "spotify", "authorize", "client_id and client_secret are required", nil)
	}
	if addr == "" {
		addr = DefaultRedirectAddr
	}
	redirect := "http://" + addr + "/callback"
	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.Spotify.ClientID),
		spotifyauth.WithClientSecret(cfg.Spotify.ClientSecret),
		spotifyauth.WithRedirectURL(redirect),
		spotifyauth.WithScopes(
			spotifyauth.ScopeUserReadPrivate,
			spotifyauth.ScopePlaylistReadPrivate,
			spotifyauth.ScopePlaylistModifyPublic,
			spotifyauth.ScopePlaylistModifyPrivate,
		),
	)

	stateBytes := make([]byte, 16)
	if _, err := rand.Read(stateBytes); err != nil {
		return fmt.Errorf("generate state: %w", err)
	}
	state := hex.EncodeToString(stateBytes)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen for callback: %w", err)
	}

	type result struct {
		err error
	}
	results := make(chan result, 1)
	send := func(r result) {
		select {
		case results <- r:
		default:
		}
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		tok, err := auth.Token(r.Context(), state, r)
		if err != nil {
			http.Error(w, "authorization failed", http.StatusForbidden)
			send(result{err: services.Wrap(services.ErrAuth, "spotify", "authorize", "token exchange failed", err)})
			return
		}
		if err := SaveToken(cfg.Spotify.TokenFile, tok); err != nil {
			http.Error(w, "could not store token", http.StatusInternalServerError)
			send(result{err: err})
			return
		}
		fmt.Fprintln(w, "spotrip is authorized. You can close this window.")
		send(result{})
	})
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			send(result{err: err})
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	show(auth.AuthURL(state))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-results:
		return res.err
	}
}
