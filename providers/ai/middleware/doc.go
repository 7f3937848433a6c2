// Package middleware wraps an [ai.Provider] with cross-cutting behaviour
// applied to every SendMessage call: retries with exponential backoff
// ([Retry]), a per-call deadline ([Timeout]) and request logging through an
// observability provider ([Logging]).
//
// Middlewares compose with [Wrap]; the first one listed is the outermost:
//
//	provider := middleware.Wrap(openai.New(),
//	    middleware.Logging(observer, middleware.LogLevelStandard),
//	    middleware.Retry(middleware.RetryConfig{MaxRetries: 2}),
//	    middleware.Timeout(30*time.Second),
//	)
package middleware
