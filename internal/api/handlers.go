package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/common"
)

const adminPasswordHeader = "X-Admin-Password"

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

type errorResponse struct {
	Error string `json:"error"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Storage string `json:"storage"`
}

type leaderboardEntry struct {
	Rank        int    `json:"rank"`
	PlayerID    int64  `json:"player_id"`
	Username    string `json:"username,omitempty"`
	MainBalance int64  `json:"main_balance"`
}

type refillRequest struct {
	ChatID int64 `json:"chat_id"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Storage: "ok"}
	if err := a.storage.Ping(ctx); err != nil {
		// Игра работает из памяти и при недоступном хранилище
		resp.Storage = "unavailable"
		log.WithError(err).Debug("health: хранилище недоступно")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleGame(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathInt(w, r, "chat_id")
	if !ok {
		return
	}

	st, err := a.games.Status(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, common.ErrNoActiveGame) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if errors.Is(err, common.ErrPersistenceUnavailable) {
			writeError(w, http.StatusServiceUnavailable, "storage unavailable")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get game status")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathInt(w, r, "chat_id")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, a.games.History(r.Context(), chatID, queryLimit(r)))
}

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathInt(w, r, "chat_id")
	if !ok {
		return
	}

	top := a.wallets.Top(r.Context(), chatID, queryLimit(r))
	entries := make([]leaderboardEntry, 0, len(top))
	for i, wl := range top {
		entries = append(entries, leaderboardEntry{
			Rank:        i + 1,
			PlayerID:    wl.PlayerID,
			Username:    wl.Username,
			MainBalance: wl.MainBalance,
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleWallet(w http.ResponseWriter, r *http.Request) {
	chatID, ok := pathInt(w, r, "chat_id")
	if !ok {
		return
	}
	playerID, ok := pathInt(w, r, "player_id")
	if !ok {
		return
	}

	wl, err := a.wallets.Lookup(r.Context(), playerID, chatID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, wl.Snapshot())
	case errors.Is(err, common.ErrNotFound):
		writeError(w, http.StatusNotFound, "wallet not found")
	case errors.Is(err, common.ErrPersistenceUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "failed to get wallet")
	}
}

func (a *API) handleRefill(w http.ResponseWriter, r *http.Request) {
	var req refillRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	report := a.admins.Refill(r.Context(), req.ChatID)
	log.WithFields(log.Fields{
		"component": "api",
		"chat_id":   req.ChatID,
		"refilled":  report.Refilled,
	}).Info("Ручное пополнение кошельков через API")
	writeJSON(w, http.StatusOK, report)
}

// adminMiddleware пропускает запросы с верным паролем администратора.
func (a *API) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.admins.Auth().Check(r.Header.Get(adminPasswordHeader)) {
			log.WithFields(log.Fields{
				"component": "api",
				"remote":    r.RemoteAddr,
			}).Warn("Отклонён запрос к admin API")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Debug("Ошибка записи ответа API")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
