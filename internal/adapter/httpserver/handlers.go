package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ColdranAI/sqlbase/internal/core/domain"
	"github.com/ColdranAI/sqlbase/internal/core/port"
	"github.com/ColdranAI/sqlbase/internal/core/service"
)

// --- error envelope ---

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Kind: kind, Message: message}})
}

// classifyError maps a domain error kind onto its wire token and HTTP
// status.
func classifyError(err error) (string, int) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation", http.StatusBadRequest
	case errors.Is(err, domain.ErrConfigNotFound):
		return "config_not_found", http.StatusNotFound
	case errors.Is(err, domain.ErrTimeout):
		return "timeout", http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrConnection):
		return "connection", http.StatusBadGateway
	case errors.Is(err, domain.ErrDecryption):
		return "decryption", http.StatusInternalServerError
	case errors.Is(err, domain.ErrSchema):
		return "schema_introspection", http.StatusInternalServerError
	default:
		return "internal", http.StatusInternalServerError
	}
}

// writeDomainError translates a service error into the wire envelope.
// Tagged errors keep their message text; untagged errors are logged and
// reported as a generic internal failure.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	kind, status := classifyError(err)
	message := err.Error()
	if kind == "internal" {
		s.logger.Error("request failed", slog.String("error", err.Error()))
		message = "internal error"
	}
	writeError(w, status, kind, message)
}

// --- connection config wire format ---

type sshConfigPayload struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	User    string `json:"user"`
	KeyPath string `json:"key_path"`
	HostKey string `json:"host_key"`
}

type wireguardConfigPayload struct {
	TunnelConfig  string `json:"tunnel_config"`
	InternalDBURL string `json:"internal_db_url"`
}

type connectionPayload struct {
	ConnectionType  string                  `json:"connection_type"`
	DatabaseURL     string                  `json:"database_url,omitempty"`
	SSHConfig       *sshConfigPayload       `json:"ssh_config,omitempty"`
	WireguardConfig *wireguardConfigPayload `json:"wireguard_config,omitempty"`
}

// toDomain maps the wire payload onto the domain config. Field presence
// is checked by domain validation, not here.
func (p *connectionPayload) toDomain() *domain.ConnectionConfig {
	cfg := &domain.ConnectionConfig{Type: domain.ConnectionType(p.ConnectionType)}
	switch cfg.Type {
	case domain.ConnectionDirect:
		cfg.Direct = &domain.DirectConfig{DatabaseURL: p.DatabaseURL}
	case domain.ConnectionSSH:
		if p.SSHConfig != nil {
			sshPort := p.SSHConfig.Port
			if sshPort == 0 {
				sshPort = 22
			}
			cfg.SSH = &domain.SSHConfig{
				Host:        p.SSHConfig.Host,
				Port:        sshPort,
				User:        p.SSHConfig.User,
				KeyPath:     p.SSHConfig.KeyPath,
				HostKey:     p.SSHConfig.HostKey,
				DatabaseURL: p.DatabaseURL,
			}
		}
	case domain.ConnectionWireguard:
		if p.WireguardConfig != nil {
			cfg.Wireguard = &domain.WireguardConfig{
				TunnelDefinition:    p.WireguardConfig.TunnelConfig,
				InternalDatabaseURL: p.WireguardConfig.InternalDBURL,
			}
		}
	}
	return cfg
}

// --- handlers ---

// handleHealth returns a liveness probe handler. Always responds 200 if the
// server process is running.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

type savedConfig struct {
	ConnectionType string    `json:"connection_type"`
	ConfiguredAt   time.Time `json:"configured_at"`
}

type saveConnectionResponse struct {
	Message string      `json:"message"`
	Config  savedConfig `json:"config"`
}

func (s *Server) handleSaveConnection(configSvc *service.ConfigService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		var payload connectionPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "validation", "invalid request body")
			return
		}

		cfg := payload.toDomain()
		if err := configSvc.Save(r.Context(), userID, cfg); err != nil {
			s.writeDomainError(w, err)
			return
		}

		resp := saveConnectionResponse{
			Message: "connection configuration saved",
			Config: savedConfig{
				ConnectionType: string(cfg.Type),
				ConfiguredAt:   time.Now().UTC(),
			},
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (s *Server) handleConnectionStatus(configSvc *service.ConfigService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		status, err := configSvc.Status(r.Context(), userID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}

func (s *Server) handleDeleteConnection(configSvc *service.ConfigService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		if err := configSvc.Delete(r.Context(), userID); err != nil {
			s.writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "connection configuration deleted"})
	}
}

type testConnectionResponse struct {
	Message        string    `json:"message"`
	ConnectionType string    `json:"connection_type"`
	TestedAt       time.Time `json:"tested_at"`
}

func (s *Server) handleTestConnection(configSvc *service.ConfigService, broker *service.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		status, err := configSvc.Status(r.Context(), userID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}

		if err := broker.TestConnection(r.Context(), userID); err != nil {
			s.writeDomainError(w, err)
			return
		}

		resp := testConnectionResponse{
			Message:        "connection successful",
			ConnectionType: string(status.ConnectionType),
			TestedAt:       time.Now().UTC(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// handlePreflight tests a posted configuration without saving it, so
// users can probe credentials before committing them.
func (s *Server) handlePreflight(broker *service.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		var payload connectionPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "validation", "invalid request body")
			return
		}

		cfg := payload.toDomain()
		if err := broker.TestDraft(r.Context(), userID, cfg); err != nil {
			s.writeDomainError(w, err)
			return
		}

		resp := testConnectionResponse{
			Message:        "connection successful",
			ConnectionType: string(cfg.Type),
			TestedAt:       time.Now().UTC(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

func (s *Server) handleDisconnect(broker *service.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		broker.Invalidate(userID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "connection closed"})
	}
}

func (s *Server) handleQuery(querySvc *service.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		var req domain.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "validation", "invalid request body")
			return
		}

		result, err := querySvc.Execute(r.Context(), userID, req)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(result)
	}
}

func (s *Server) handleSchema(schemaSvc *service.SchemaService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		snap, err := schemaSvc.Snapshot(r.Context(), userID)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(snap)
	}
}

type queryHistoryResponse struct {
	History []port.UsageRecord `json:"history"`
	Page    int                `json:"page"`
	Limit   int                `json:"limit"`
}

func (s *Server) handleQueryHistory(querySvc *service.QueryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "userID")

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if page < 1 {
			page = 1
		}
		if limit <= 0 || limit > 500 {
			limit = 50
		}

		records, err := querySvc.History(r.Context(), userID, limit, (page-1)*limit)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if records == nil {
			records = []port.UsageRecord{}
		}

		resp := queryHistoryResponse{History: records, Page: page, Limit: limit}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
