package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/mdlh/query-server-go/internal/errors"
	"github.com/mdlh/query-server-go/internal/session"
	"github.com/mdlh/query-server-go/internal/warehouse"
)

// ConnectionStatus is the client-visible view of a live session.
type ConnectionStatus struct {
	Connected   bool               `json:"connected"`
	Identity    warehouse.Identity `json:"identity"`
	CreatedAt   time.Time          `json:"created_at"`
	LastUsedAt  time.Time          `json:"last_used_at"`
	IdleSeconds float64            `json:"idle_seconds"`
	QueryCount  int                `json:"query_count"`
	ResultCount int                `json:"result_count"`
}

// ConnectionService opens and tears down warehouse sessions. The dialer is
// injected so tests never touch a real warehouse.
type ConnectionService struct {
	sessions *session.Manager
	dial     warehouse.Dialer
}

func NewConnectionService(sessions *session.Manager, dial warehouse.Dialer) *ConnectionService {
	return &ConnectionService{sessions: sessions, dial: dial}
}

// Connect authenticates against the warehouse and registers a new session.
func (s *ConnectionService) Connect(ctx context.Context, creds warehouse.Credentials) (*session.Session, error) {
	if creds.Account == "" {
		return nil, apperrors.MissingRequired("account")
	}
	if creds.User == "" {
		return nil, apperrors.MissingRequired("user")
	}
	switch creds.AuthType {
	case warehouse.AuthPassword, "":
		if creds.Password == "" {
			return nil, apperrors.MissingRequired("password")
		}
	case warehouse.AuthToken:
		if creds.Token == "" {
			return nil, apperrors.MissingRequired("token")
		}
	case warehouse.AuthSSO:
	default:
		return nil, apperrors.InvalidInput("auth_type", "must be password, token or sso")
	}

	conn, identity, err := s.dial(ctx, creds)
	if err != nil {
		log.Warn().Err(err).Str("account", creds.Account).Str("user", creds.User).
			Msg("warehouse connect failed")
		return nil, err
	}
	return s.sessions.Create(conn, *identity), nil
}

// Status reports the current state of a session.
func (s *ConnectionService) Status(sess *session.Session) ConnectionStatus {
	lastUsed := sess.LastUsed()
	return ConnectionStatus{
		Connected:   true,
		Identity:    sess.Identity(),
		CreatedAt:   sess.CreatedAt,
		LastUsedAt:  lastUsed,
		IdleSeconds: time.Since(lastUsed).Seconds(),
		QueryCount:  sess.Queries(),
		ResultCount: sess.ResultCount(),
	}
}

// Stats snapshots every live session for operational visibility.
func (s *ConnectionService) Stats() session.Stats {
	return s.sessions.Stats()
}

// Disconnect tears the session down and releases its connection.
func (s *ConnectionService) Disconnect(handle string) error {
	if !s.sessions.Remove(handle) {
		return apperrors.SessionNotFound()
	}
	log.Info().Msg("session disconnected")
	return nil
}
