// Package api — HTTP API состояния игры: раунды, история, кошельки, рейтинг
// и ручное пополнение кошельков администраторов.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"

	"github.com/rgndice/dicebot/internal/features/admin"
	"github.com/rgndice/dicebot/internal/features/game"
	"github.com/rgndice/dicebot/internal/features/wallet"
)

// Pinger проверяет доступность хранилища.
type Pinger interface {
	Ping(ctx context.Context) error
}

// API — HTTP-сервер статуса.
type API struct {
	router  *mux.Router
	server  *http.Server
	games   *game.Service
	wallets *wallet.Service
	admins  *admin.Service
	storage Pinger
}

// New создаёт API. origins — список разрешённых CORS origin ("*" — любые).
func New(addr string, origins []string, games *game.Service, wallets *wallet.Service, admins *admin.Service, storage Pinger) *API {
	a := &API{
		router:  mux.NewRouter(),
		games:   games,
		wallets: wallets,
		admins:  admins,
		storage: storage,
	}
	a.setupRoutes()

	// При "*" credentials не разрешаются
	corsOptions := cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", adminPasswordHeader},
		AllowCredentials: false,
	}

	a.server = &http.Server{
		Addr:              addr,
		Handler:           cors.New(corsOptions).Handler(a.router),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return a
}

func (a *API) setupRoutes() {
	a.router.HandleFunc("/api/health", a.handleHealth).Methods(http.MethodGet)

	chats := a.router.PathPrefix("/api/chats/{chat_id:-?[0-9]+}").Subrouter()
	chats.HandleFunc("/game", a.handleGame).Methods(http.MethodGet)
	chats.HandleFunc("/history", a.handleHistory).Methods(http.MethodGet)
	chats.HandleFunc("/leaderboard", a.handleLeaderboard).Methods(http.MethodGet)
	chats.HandleFunc("/wallets/{player_id:[0-9]+}", a.handleWallet).Methods(http.MethodGet)

	protected := a.router.PathPrefix("/api/admin").Subrouter()
	protected.Use(a.adminMiddleware)
	protected.HandleFunc("/refill", a.handleRefill).Methods(http.MethodPost)
}

// Handler возвращает корневой обработчик (с CORS).
func (a *API) Handler() http.Handler {
	return a.server.Handler
}

// Start слушает адрес до вызова Shutdown.
func (a *API) Start() error {
	log.WithField("addr", a.server.Addr).Info("API статуса запущен")
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown останавливает сервер, дожидаясь текущих запросов.
func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}
