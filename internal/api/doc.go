// Package api is the HTTP request client for the chat backend.
//
// # Overview
//
// Every call is a single request: there are no retries here. Callers (the
// conversation engine) own retry, backoff and polling policy.
//
//	c := api.NewClient(api.Config{
//		AccountID:   "acc-1",
//		AgentSlug:   "support",
//		APIEndpoint: "https://app.hermine.ai",
//	})
//	created, err := c.CreateConversation(ctx)
//
// # Headers
//
// All requests carry X-Account-Id and X-Agent-Slug. A bearer token is added
// when configured with WithToken.
//
// # Errors
//
// Non-2xx responses return *RequestError carrying the status code and text.
// Both RequestError and transport failures match errors.Is(err, ErrNetwork).
//
// # Rate Limiting
//
// WithLimiter installs a golang.org/x/time/rate limiter that every request
// waits on before it is sent.
package api
