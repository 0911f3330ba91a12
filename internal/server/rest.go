package server

import (
	"encoding/json"
	"net/http"

	"github.com/dialhaus/realtime-gateway/internal/auth"
	"github.com/dialhaus/realtime-gateway/internal/events"
	"github.com/dialhaus/realtime-gateway/internal/gateway"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// BroadcastRequest is the internal API sibling services call when
// something happened: exactly one of TenantId or ConversationId targets
// the room.
type BroadcastRequest struct {
	TenantId       string `json:"tenantId,omitempty"`
	ConversationId string `json:"conversationId,omitempty"`
	Event          string `json:"event"`
	Payload        any    `json:"payload"`
}

// RESTServer exposes the internal surface: broadcast injection, event
// replay and connection introspection, guarded by the shared service key.
type RESTServer struct {
	logger      *zap.Logger
	broadcaster *gateway.Broadcaster
	registry    *gateway.Registry
	verifier    *auth.Verifier
	archive     events.Archive
}

func NewRESTServer(
	logger *zap.Logger,
	broadcaster *gateway.Broadcaster,
	registry *gateway.Registry,
	verifier *auth.Verifier,
	archive events.Archive,
) *RESTServer {
	return &RESTServer{
		logger,
		broadcaster,
		registry,
		verifier,
		archive,
	}
}

func (s *RESTServer) Register(router *mux.Router) {
	router.HandleFunc("/broadcast", s.handleBroadcast).Methods("POST")
	router.HandleFunc("/events", s.handleEvents).Methods("GET")
	router.HandleFunc("/connections", s.handleConnections).Methods("GET")
}

func (s *RESTServer) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	if !s.verifier.VerifyServiceKey(bearerToken(r)) {
		http.Error(w, "invalid service key", http.StatusUnauthorized)

		return
	}

	var request BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)

		return
	}

	if request.Event == "" {
		http.Error(w, "event is required", http.StatusBadRequest)

		return
	}

	if (request.TenantId == "") == (request.ConversationId == "") {
		http.Error(w, "exactly one of tenantId or conversationId is required", http.StatusBadRequest)

		return
	}

	var result gateway.BroadcastResult
	var err error

	if request.TenantId != "" {
		result, err = s.broadcaster.BroadcastToTenant(r.Context(), request.TenantId, request.Event, request.Payload)
	} else {
		result, err = s.broadcaster.BroadcastToConversation(r.Context(), request.ConversationId, request.Event, request.Payload)
	}

	if err != nil {
		s.logger.Error("failed to handle broadcast request", zap.Error(err))
		http.Error(w, "failed to broadcast", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *RESTServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if !s.verifier.VerifyServiceKey(bearerToken(r)) {
		http.Error(w, "invalid service key", http.StatusUnauthorized)

		return
	}

	if s.archive == nil {
		http.Error(w, "event archive disabled", http.StatusNotImplemented)

		return
	}

	conversationId := r.URL.Query().Get("conversationId")
	if conversationId == "" {
		http.Error(w, "conversationId is required", http.StatusBadRequest)

		return
	}

	records, err := s.archive.List(r.Context(), conversationId, r.URL.Query().Get("lastSeenId"))
	if err != nil {
		s.logger.Error("failed to list archived events", zap.Error(err))
		http.Error(w, "failed to list events", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, records)
}

// handleConnections accepts either the service key or an operator token
// whose tenant matches the one queried.
func (s *RESTServer) handleConnections(w http.ResponseWriter, r *http.Request) {
	tenantId := r.URL.Query().Get("tenantId")
	if tenantId == "" {
		http.Error(w, "tenantId is required", http.StatusBadRequest)

		return
	}

	token := bearerToken(r)
	if !s.verifier.VerifyServiceKey(token) {
		identity, err := s.verifier.VerifyUserToken(token)
		if err != nil || !s.verifier.CheckTenantAccess(identity, tenantId) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)

			return
		}
	}

	records, err := s.registry.ActiveConnections(r.Context(), tenantId)
	if err != nil {
		s.logger.Error("failed to list connections", zap.Error(err))
		http.Error(w, "failed to list connections", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, records)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
