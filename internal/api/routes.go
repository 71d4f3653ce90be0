package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check and metrics
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Research call routes
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/calls", handler.CreateCall).Methods("POST")
	api.HandleFunc("/calls", handler.GetCalls).Methods("GET")
	api.HandleFunc("/calls/{id}", handler.GetCall).Methods("GET")
	api.HandleFunc("/calls/{id}/events", handler.GetCallEvents).Methods("GET")
	api.HandleFunc("/calls/{id}/submit", handler.SubmitCall).Methods("POST")
	api.HandleFunc("/calls/{id}/approve", handler.ApproveCall).Methods("POST")
	api.HandleFunc("/calls/{id}/reject", handler.RejectCall).Methods("POST")
	api.HandleFunc("/calls/{id}/publish", handler.PublishCall).Methods("POST")
	api.HandleFunc("/calls/{id}/exit", handler.ExitCall).Methods("POST")

	// Portfolio routes
	api.HandleFunc("/positions", handler.OpenPosition).Methods("POST")
	api.HandleFunc("/positions/{id}/exit", handler.ExitPosition).Methods("POST")
	api.HandleFunc("/portfolio/summary", handler.GetPortfolioSummary).Methods("GET")

	return r
}
