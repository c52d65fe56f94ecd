// Copyright SAP SE
// SPDX-License-Identifier: Apache-2.0

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/kramdoss/manila/internal/conf"
	"github.com/kramdoss/manila/internal/monitoring"
	"github.com/kramdoss/manila/internal/scheduling/manila"
	"github.com/kramdoss/manila/internal/scheduling/manila/api"
	"github.com/kramdoss/manila/internal/scheduling/manila/hosts"
	"github.com/kramdoss/manila/internal/scheduling/manila/reports"
)

const (
	URLPlacement = "/scheduler/manila/placement"
	URLHosts     = "/scheduler/manila/hosts"
)

type Scheduler interface {
	Schedule(ctx context.Context, request api.PlacementRequest) (manila.Result, error)
}

type HTTPAPI interface {
	// Bind the server handlers.
	Init(*http.ServeMux)
}

type httpAPI struct {
	config    conf.SchedulerAPIConfig
	monitor   monitoring.APIMonitor
	scheduler Scheduler
	manager   *hosts.Manager
	ingestor  *reports.Ingestor
}

// Response body when no host could be found for the request.
type NoValidHostResponse struct {
	Error          string            `json:"error"`
	RequestID      string            `json:"request_id"`
	PerHostReasons map[string]string `json:"per_host_reasons"`
}

// Response body after reports were posted.
type ReportsResponse struct {
	Accepted int      `json:"accepted"`
	Rejected []string `json:"rejected,omitempty"`
}

func NewAPI(
	config conf.SchedulerAPIConfig,
	registry *monitoring.Registry,
	scheduler Scheduler,
	manager *hosts.Manager,
	ingestor *reports.Ingestor,
) HTTPAPI {

	return &httpAPI{
		config:    config,
		monitor:   monitoring.NewAPIMonitor(registry),
		scheduler: scheduler,
		manager:   manager,
		ingestor:  ingestor,
	}
}

// Init the API mux and bind the handlers.
func (httpAPI *httpAPI) Init(mux *http.ServeMux) {
	mux.HandleFunc(URLPlacement, httpAPI.Placement)
	mux.HandleFunc(URLHosts, httpAPI.Hosts)
}

// Read the request body, and log it out if configured.
func (httpAPI *httpAPI) readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if httpAPI.config.LogRequestBodies {
		slog.Info("request body", "url", r.URL.Path, "body", string(body))
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, code int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	return json.NewEncoder(w).Encode(body)
}

// Handle a placement request and respond with the selected host
// and the ranking of all candidate hosts.
func (httpAPI *httpAPI) Placement(w http.ResponseWriter, r *http.Request) {
	c := httpAPI.monitor.Callback(w, r, URLPlacement)

	// Exit early if the request method is not POST.
	if r.Method != http.MethodPost {
		internalErr := fmt.Errorf("invalid request method: %s", r.Method)
		c.Respond(http.StatusMethodNotAllowed, internalErr, "invalid request method")
		return
	}
	body, err := httpAPI.readBody(r)
	if err != nil {
		c.Respond(http.StatusInternalServerError, err, "failed to read request body")
		return
	}
	var requestData api.PlacementRequest
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&requestData); err != nil {
		c.Respond(http.StatusBadRequest, err, "failed to decode request body")
		return
	}
	slog.Info(
		"handling POST request", "url", URLPlacement,
		"requestID", requestData.RequestID, "size", requestData.Size,
		"retryHosts", requestData.RetryHosts,
	)

	result, err := httpAPI.scheduler.Schedule(r.Context(), requestData)
	var noValidHost *manila.NoValidHostError
	switch {
	case errors.As(err, &noValidHost):
		response := NoValidHostResponse{
			Error:          "no_valid_host",
			RequestID:      result.RequestID,
			PerHostReasons: noValidHost.Reasons,
		}
		if err := writeJSON(w, http.StatusConflict, response); err != nil {
			slog.Error("failed to encode response", "error", err)
		}
		c.Respond(http.StatusConflict, nil, "no valid host")
		return
	case errors.Is(err, api.ErrInvalidRequest):
		c.Respond(http.StatusBadRequest, err, err.Error())
		return
	case err != nil:
		c.Respond(http.StatusInternalServerError, err, "failed to schedule request")
		return
	}
	if err := writeJSON(w, http.StatusOK, result); err != nil {
		c.Respond(http.StatusInternalServerError, err, "failed to encode response")
		return
	}
	c.Respond(http.StatusOK, nil, "Success")
}

// List all cached hosts on GET, ingest capability reports on POST.
func (httpAPI *httpAPI) Hosts(w http.ResponseWriter, r *http.Request) {
	c := httpAPI.monitor.Callback(w, r, URLHosts)

	switch r.Method {
	case http.MethodGet:
		if err := writeJSON(w, http.StatusOK, httpAPI.manager.List()); err != nil {
			c.Respond(http.StatusInternalServerError, err, "failed to encode response")
			return
		}
		c.Respond(http.StatusOK, nil, "Success")
	case http.MethodPost:
		body, err := httpAPI.readBody(r)
		if err != nil {
			c.Respond(http.StatusInternalServerError, err, "failed to read request body")
			return
		}
		parsed, err := reports.DecodeReports(body)
		if err != nil {
			c.Respond(http.StatusBadRequest, err, "failed to decode request body")
			return
		}
		accepted, err := httpAPI.ingestor.Ingest(parsed)
		if accepted == 0 && err != nil {
			c.Respond(http.StatusBadRequest, err, err.Error())
			return
		}
		response := ReportsResponse{Accepted: accepted}
		if err != nil {
			slog.Warn("rejected some capability reports", "error", err)
			response.Rejected = unjoin(err)
		}
		if err := writeJSON(w, http.StatusOK, response); err != nil {
			c.Respond(http.StatusInternalServerError, err, "failed to encode response")
			return
		}
		c.Respond(http.StatusOK, nil, "Success")
	default:
		internalErr := fmt.Errorf("invalid request method: %s", r.Method)
		c.Respond(http.StatusMethodNotAllowed, internalErr, "invalid request method")
	}
}

// Messages of the errors joined with errors.Join.
func unjoin(err error) []string {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []string{err.Error()}
	}
	var messages []string
	for _, e := range joined.Unwrap() {
		messages = append(messages, e.Error())
	}
	return messages
}
