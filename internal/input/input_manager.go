package input

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"chatserver/internal/clog"
	"chatserver/internal/handler"
	"chatserver/internal/realtime"
	"chatserver/internal/service"

	"github.com/gorilla/mux"
)

type IptConfig struct {
	ServerPort   uint16
	ReadTimeout  int64
	WriteTimeout int64
}

type InputManager struct { // Manages the HTTP and websocket surface
	running atomic.Bool
	paused  atomic.Bool

	logger clog.Logger
	server *http.Server

	stopFromOutsideChan chan struct{}
	doneFromInsideChan  chan struct{}

	registry            *realtime.Registry
	conversationService service.ConversationService
	messageService      service.MessageService
	presenceService     service.PresenceService
}

func NewInputManager() *InputManager {
	return &InputManager{
		running:             atomic.Bool{},
		paused:              atomic.Bool{},
		stopFromOutsideChan: make(chan struct{}),
		doneFromInsideChan:  make(chan struct{}),
	}
}

func (i *InputManager) IsReady() bool {
	return i.logger != nil &&
		i.registry != nil &&
		i.conversationService != nil &&
		i.messageService != nil &&
		i.presenceService != nil
}

func (i *InputManager) IsRunning() bool {
	return i.running.Load()
}

func (i *InputManager) SetLogger(l clog.Logger) {
	i.logger = l
}

func (i *InputManager) SetRegistry(r *realtime.Registry) {
	i.registry = r
}

func (i *InputManager) SetConversationService(cs service.ConversationService) {
	i.conversationService = cs
}

func (i *InputManager) SetMessageService(ms service.MessageService) {
	i.messageService = ms
}

func (i *InputManager) SetPresenceService(ps service.PresenceService) {
	i.presenceService = ps
}

func (i *InputManager) Logf(format string, a ...any) {
	i.logger.Logf(format, a...)
}

func (i *InputManager) SetPause(paused bool) {
	i.paused.Store(paused)
}

func (i *InputManager) IsPaused() bool {
	return i.paused.Load()
}

// PauseMiddleware sheds every request while the node is draining, so peers
// can take over without this instance accepting work it will not finish.
func (i *InputManager) PauseMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if i.IsPaused() {
			http.Error(w, "Service is paused", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdentityMiddleware reads the verified user id the fronting gateway put in
// X-User-ID and stores it in the request context. This core never checks
// credentials itself.
func (i *InputManager) IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-ID")
		if raw == "" {
			http.Error(w, "Missing identity", http.StatusUnauthorized)
			return
		}
		userID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || userID == 0 {
			http.Error(w, "Malformed identity", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), handler.UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (i *InputManager) Run(ctx context.Context, cfg *IptConfig) error {
	i.Logf("Input service started...")

	if !i.IsReady() {
		return fmt.Errorf("The Input manager is not ready... Missing components")
	}

	// Handlers
	conversationHandler := handler.NewConversationHandler(i.conversationService)
	messageHandler := handler.NewMessageHandler(i.messageService)
	presenceHandler := handler.NewPresenceHandler(i.presenceService)
	wsHandler := handler.NewWSHandler(i.registry, i.presenceService, i.messageService, i.logger)

	// Router
	r := mux.NewRouter()
	r.Use(i.PauseMiddleware, i.IdentityMiddleware)

	// Conversation routes
	r.HandleFunc("/conversations", conversationHandler.Create).Methods("POST")
	r.HandleFunc("/conversations", conversationHandler.List).Methods("GET")
	r.HandleFunc("/conversations/{id}", conversationHandler.Get).Methods("GET")
	r.HandleFunc("/conversations/{id}", conversationHandler.Update).Methods("PATCH")
	r.HandleFunc("/conversations/{id}", conversationHandler.Delete).Methods("DELETE")
	r.HandleFunc("/conversations/{id}/participants", conversationHandler.AddParticipants).Methods("POST")
	r.HandleFunc("/conversations/{id}/participants/{userID}", conversationHandler.RemoveParticipant).Methods("DELETE")

	// Message routes
	r.HandleFunc("/conversations/{id}/messages", messageHandler.Send).Methods("POST")
	r.HandleFunc("/conversations/{id}/messages", messageHandler.List).Methods("GET")
	r.HandleFunc("/conversations/{id}/messages/search", messageHandler.Search).Methods("GET")
	r.HandleFunc("/conversations/{id}/read", messageHandler.MarkRead).Methods("POST")
	r.HandleFunc("/messages/{messageID}", messageHandler.Edit).Methods("PATCH")
	r.HandleFunc("/messages/{messageID}", messageHandler.Delete).Methods("DELETE")
	r.HandleFunc("/messages/{messageID}/reactions", messageHandler.React).Methods("POST")
	r.HandleFunc("/messages/{messageID}/reactions", messageHandler.Unreact).Methods("DELETE")
	r.HandleFunc("/cursor", messageHandler.LatestCursor).Methods("GET")

	// Presence routes
	r.HandleFunc("/presence/heartbeat", presenceHandler.Heartbeat).Methods("POST")
	r.HandleFunc("/presence/{userID}", presenceHandler.Status).Methods("GET")
	r.HandleFunc("/conversations/{id}/typing/{userID}", presenceHandler.Typing).Methods("GET")

	// Realtime push
	r.HandleFunc("/ws", wsHandler.Serve).Methods("GET")

	i.server = &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:        r,
		ReadTimeout:    time.Duration(cfg.ReadTimeout * int64(time.Second)),
		WriteTimeout:   time.Duration(cfg.WriteTimeout * int64(time.Second)),
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		select {
		case <-ctx.Done():
			i.Logf("Received stop signal. Shutting down...")
		case <-i.stopFromOutsideChan:
			i.Logf("Server was asked to stop. Shutting down...")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := i.server.Shutdown(shutdownCtx); err != nil {
			i.Logf("Error during shutdown... %v\n", err)
		}
		close(i.doneFromInsideChan)
	}()

	i.running.Store(true)
	i.Logf("Http server started on port {%d}", cfg.ServerPort)

	if err := i.server.ListenAndServe(); err != http.ErrServerClosed {
		i.Logf("FATAL: HTTP Server error{%v}\n", err)
		i.running.Store(false)
		return err
	}

	i.running.Store(false)
	return nil
}

func (i *InputManager) Stop() {
	close(i.stopFromOutsideChan)
	<-i.doneFromInsideChan
}
