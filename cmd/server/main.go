package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"digidiary/internal/config"
	"digidiary/internal/handler"
	"digidiary/internal/middleware"
	"digidiary/internal/repository"
	"digidiary/internal/service"
	"digidiary/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/gorilla/mux"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := kivik.New("couch", cfg.Database.URL())
	if err != nil {
		log.Fatalf("Failed to connect to CouchDB: %v", err)
	}
	defer client.Close()

	exists, err := client.DBExists(ctx, cfg.Database.Name)
	if err != nil {
		log.Fatalf("Failed to check database existence: %v", err)
	}

	if !exists {
		if err := client.CreateDB(ctx, cfg.Database.Name); err != nil {
			log.Fatalf("Failed to create database: %v", err)
		}
		log.Printf("Created database: %s", cfg.Database.Name)
	}

	userRepo := repository.NewUserRepository(client, cfg.Database.Name)
	noteRepo := repository.NewNoteRepository(client, cfg.Database.Name)

	if err := noteRepo.EnsureIndexes(ctx); err != nil {
		log.Fatalf("Failed to prepare indexes: %v", err)
	}

	wsManager := websocket.NewManager(
		cfg.WebSocket.MaxConnPerUser,
		cfg.WebSocket.MaxMessageSize,
		cfg.WebSocket.WriteWait,
		cfg.WebSocket.PongWait,
		cfg.WebSocket.PingPeriod,
	)
	go wsManager.Run(ctx)

	authService := service.NewAuthService(userRepo, cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration)
	userService := service.NewUserService(userRepo)
	noteService := service.NewNoteService(noteRepo, service.NewBroadcastService(wsManager))

	r := newRouter(cfg, routeHandlers{
		auth: handler.NewAuthHandler(authService),
		user: handler.NewUserHandler(userService),
		note: handler.NewNoteHandler(noteService),
		ws:   handler.NewWebSocketHandler(wsManager, cfg.JWT.Secret, cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize),
	})

	addr := cfg.Server.Host + ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting diary sync server on %s (env: %s)", addr, cfg.Server.Env)
		log.Printf("Connected to CouchDB at %s:%s", cfg.Database.Host, cfg.Database.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-ctx.Done()

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	log.Println("Server stopped gracefully")
}

type routeHandlers struct {
	auth *handler.AuthHandler
	user *handler.UserHandler
	note *handler.NoteHandler
	ws   *handler.WebSocketHandler
}

func newRouter(cfg *config.Config, h routeHandlers) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware(
		cfg.CORS.AllowedOrigins,
		cfg.CORS.AllowedMethods,
		cfg.CORS.AllowedHeaders,
	))

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/auth/register", h.auth.Register).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/login", h.auth.Login).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/refresh", h.auth.Refresh).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/logout", h.auth.Logout).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("").Subrouter()
	protected.Use(middleware.AuthMiddleware(cfg.JWT.Secret))

	protected.HandleFunc("/users/me", h.user.GetMe).Methods("GET", "OPTIONS")
	protected.HandleFunc("/users/me", h.user.UpdateMe).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/users/me/password", h.auth.ChangePassword).Methods("PUT", "OPTIONS")

	protected.HandleFunc("/time", h.note.ServerTime).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes", h.note.List).Methods("GET", "OPTIONS")
	protected.HandleFunc("/notes", h.note.Create).Methods("POST", "OPTIONS")
	protected.HandleFunc("/notes/{id}", h.note.Update).Methods("PUT", "OPTIONS")
	protected.HandleFunc("/notes/{id}", h.note.Delete).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/ws", h.ws.HandleConnection)

	r.HandleFunc("/health", healthHandler).Methods("GET")

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"digidiary-sync-server"}`))
}
