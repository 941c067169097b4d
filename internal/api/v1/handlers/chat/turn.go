package chat

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/kbconsole/answerrelay/internal/services/turns"
	"github.com/kbconsole/answerrelay/pkg/httpext"
	"github.com/kbconsole/answerrelay/pkg/logger"
)

// HandleGetTurn returns the last cached snapshot of a turn so a client that
// reconnects can redraw it.
func HandleGetTurn(turnService *turns.Service, w http.ResponseWriter, r *http.Request) {
	clog := logger.Component(logger.HANDLER)
	turnID := mux.Vars(r)["id"]

	turn, err := turnService.Get(r.Context(), turnID)
	if errors.Is(err, turns.ErrNotFound) {
		httpext.JsonError(w, "Turn not found", http.StatusNotFound)
		return
	}
	if err != nil {
		clog.Error().Err(err).Str("turn_id", turnID).Msg("Failed to load turn")
		httpext.JsonError(w, "Failed to load turn", http.StatusInternalServerError)
		return
	}

	httpext.JsonResponse(w, http.StatusOK, turn)
}
