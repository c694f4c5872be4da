/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package opsserver

import (
	"encoding/json"
	"net/http"

	"github.com/gitboycryptogeek/tassiac-sub000/log"
)

// HealthCheckComponentName is a type alias for component names. It's used for better readability.
type HealthCheckComponentName = string

// HealthCheckStatus is a resulting status of a single component check.
type HealthCheckStatus int

// Health-check statuses.
const (
	HealthCheckStatusOK HealthCheckStatus = iota
	HealthCheckStatusFail
)

// HealthCheckResult holds statuses of all checked components.
type HealthCheckResult = map[HealthCheckComponentName]HealthCheckStatus

// HealthCheck reports the current statuses of the service's components,
// for example connectivity to the bank API or the state of the dispatch queues.
type HealthCheck = func() (HealthCheckResult, error)

type healthCheckResponseData struct {
	Components map[string]bool `json:"components"`
}

// HealthCheckHandler implements http.Handler that reports service health.
// The response body lists each component with a boolean health flag,
// and the status code is 503 if at least one component is unhealthy.
type HealthCheckHandler struct {
	healthCheck HealthCheck
	logger      log.FieldLogger
}

// NewHealthCheckHandler creates a new http.Handler for the health endpoint.
// The passed function is called on every request.
func NewHealthCheckHandler(fn HealthCheck, logger log.FieldLogger) *HealthCheckHandler {
	if fn == nil {
		fn = func() (HealthCheckResult, error) {
			return HealthCheckResult{}, nil
		}
	}
	return &HealthCheckHandler{fn, logger}
}

// ServeHTTP serves the health-check HTTP request.
func (h *HealthCheckHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	result, err := h.healthCheck()
	if err != nil {
		h.logger.Error("health check failed", log.Error(err))
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	respData := healthCheckResponseData{Components: make(map[string]bool, len(result))}
	respStatus := http.StatusOK
	for name, status := range result {
		respData.Components[name] = status == HealthCheckStatusOK
		if status == HealthCheckStatusFail {
			respStatus = http.StatusServiceUnavailable
		}
	}

	respBody, err := json.Marshal(respData)
	if err != nil {
		h.logger.Error("marshal health check response", log.Error(err))
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(respStatus)
	if _, err = rw.Write(respBody); err != nil {
		h.logger.Error("write health check response", log.Error(err))
	}
}
