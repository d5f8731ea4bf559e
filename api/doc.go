// Package api defines the wire types of the evalflow HTTP API.
//
// # Endpoints
//
//   - POST /api/llm          run inference, evaluate or augment over a row array
//   - GET  /api/v1/runs      recent dispatch history (when the run store is enabled)
//   - GET  /health, /healthz liveness
//   - GET  /ready            readiness, including a backend configuration check
//   - GET  /version          build information
//
// # Authentication
//
// When server.api_keys is configured, every endpoint except the health
// probes requires the X-API-Key header:
//
//	X-API-Key: your-api-key
//
// # Base URL
//
// The default base URL for the API is:
//
//	http://localhost:8080
package api
