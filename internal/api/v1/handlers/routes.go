package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	v1chat "github.com/kbconsole/answerrelay/internal/api/v1/handlers/chat"
	v1ws "github.com/kbconsole/answerrelay/internal/api/v1/handlers/websocket"
	v1mware "github.com/kbconsole/answerrelay/internal/api/v1/middleware"
	"github.com/kbconsole/answerrelay/internal/services"
)

func RegisterV1Routes(router *mux.Router, services *services.Services) {
	// v1 routes
	v1 := router.PathPrefix("/v1").Subrouter()
	v1.Use(v1mware.RateLimit("global"))

	// Ask routes
	v1.Handle("/ws/ask", v1mware.RateLimit("ask_socket")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v1ws.HandleAskSocket(services.GetRelayService(), services.GetConnectionManager(), w, r)
	}))).Methods("GET")
	v1.Handle("/ask/stream", v1mware.RateLimit("ask_stream")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v1chat.HandleAskStream(services.GetRelayService(), w, r)
	}))).Methods("POST")

	// Turn replay
	v1.Handle("/turns/{id}", v1mware.RateLimit("turns")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v1chat.HandleGetTurn(services.GetTurnService(), w, r)
	}))).Methods("GET")
}
