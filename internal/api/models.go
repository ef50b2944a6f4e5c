package api

import "coffeeshop/internal/worker"

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Workers int    `json:"workers"`
	Running int    `json:"running"`
}

// WorkersResponse lists every started worker.
type WorkersResponse struct {
	Workers []worker.Status `json:"workers"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
