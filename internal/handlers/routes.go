package handlers

import "net/http"

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{}
	oauth := OAuthHandler{Flow: deps.Flow, Limiter: deps.Limiter, RedirectBackURL: deps.RedirectBackURL}
	videos := VideoHandler{Publisher: deps.Publisher, Limiter: deps.Limiter}

	mux.HandleFunc("/healthz", health.Handle)
	mux.HandleFunc("/youtube/auth", oauth.Authorize)
	mux.HandleFunc("/youtube/callback", oauth.Callback)
	mux.HandleFunc("/api/v1/videos", videos.Publish)
	mux.HandleFunc("/api/v1/videos/", videos.Resource)
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Publisher       VideoPublisher
	Flow            AuthorizationFlow
	Limiter         RateLimiter
	RedirectBackURL string
}
