package router

import (
	"net/http"

	"github.com/GluM1262/remoteshell-manager/backend/app/controllers"
)

// New wires the REST surface and the agent socket entry point.
func New(
	status *controllers.StatusController,
	agents *controllers.AgentController,
	commands *controllers.CommandController,
	history *controllers.HistoryController,
	sock *controllers.SocketController,
) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", status.Health)

	mux.HandleFunc("GET /agents", agents.List)
	mux.HandleFunc("GET /agents/{id}", agents.Get)
	mux.HandleFunc("POST /agents/{id}/commands", commands.Submit)
	mux.HandleFunc("GET /agents/{id}/commands", agents.History)
	mux.HandleFunc("GET /agents/{id}/queue", agents.Queue)

	mux.HandleFunc("GET /commands", commands.List)
	mux.HandleFunc("GET /commands/{id}", commands.Get)
	mux.HandleFunc("DELETE /commands/{id}", commands.Cancel)
	mux.HandleFunc("POST /commands/bulk", commands.Bulk)

	mux.HandleFunc("GET /history/export", history.Export)
	mux.HandleFunc("POST /history/cleanup", history.Cleanup)
	mux.HandleFunc("GET /statistics", history.Statistics)

	mux.HandleFunc("GET /ws", sock.Handle)

	return mux
}
