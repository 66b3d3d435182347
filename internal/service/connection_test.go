package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/mdlh/query-server-go/internal/errors"
	"github.com/mdlh/query-server-go/internal/session"
	"github.com/mdlh/query-server-go/internal/warehouse"
)

func TestConnectValidation(t *testing.T) {
	sessions := session.NewManager(time.Hour, time.Hour)
	svc := NewConnectionService(sessions, nil)

	tests := []struct {
		name  string
		creds warehouse.Credentials
		code  apperrors.ErrorCode
	}{
		{"missing account", warehouse.Credentials{User: "u", Password: "p"}, apperrors.ErrCodeMissingRequired},
		{"missing user", warehouse.Credentials{Account: "a", Password: "p"}, apperrors.ErrCodeMissingRequired},
		{"missing password", warehouse.Credentials{Account: "a", User: "u"}, apperrors.ErrCodeMissingRequired},
		{"missing token", warehouse.Credentials{Account: "a", User: "u", AuthType: warehouse.AuthToken}, apperrors.ErrCodeMissingRequired},
		{"bad auth type", warehouse.Credentials{Account: "a", User: "u", AuthType: "magic"}, apperrors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Connect(context.Background(), tt.creds)
			require.Error(t, err)
			assert.Equal(t, tt.code, apperrors.GetCode(err))
		})
	}
}

func TestConnectCreatesSession(t *testing.T) {
	sessions := session.NewManager(time.Hour, time.Hour)
	conn := &fakeConn{}
	dial := func(_ context.Context, creds warehouse.Credentials) (warehouse.Conn, *warehouse.Identity, error) {
		assert.Equal(t, "acct", creds.Account)
		return conn, &warehouse.Identity{Account: "acct", User: "ALICE", Role: "ANALYST"}, nil
	}
	svc := NewConnectionService(sessions, dial)

	sess, err := svc.Connect(context.Background(), warehouse.Credentials{
		Account: "acct", User: "alice", Password: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "ALICE", sess.Identity().User)
	assert.Equal(t, 1, sessions.Count())

	status := svc.Status(sess)
	assert.True(t, status.Connected)
	assert.Equal(t, "ANALYST", status.Identity.Role)
}

func TestConnectDialFailure(t *testing.T) {
	sessions := session.NewManager(time.Hour, time.Hour)
	dial := func(context.Context, warehouse.Credentials) (warehouse.Conn, *warehouse.Identity, error) {
		return nil, nil, apperrors.ConnectionFailed("login denied")
	}
	svc := NewConnectionService(sessions, dial)

	_, err := svc.Connect(context.Background(), warehouse.Credentials{
		Account: "acct", User: "alice", Password: "wrong",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConnectionFailed, apperrors.GetCode(err))
	assert.Equal(t, 0, sessions.Count())
}

func TestDisconnect(t *testing.T) {
	sessions := session.NewManager(time.Hour, time.Hour)
	conn := &fakeConn{}
	dial := func(context.Context, warehouse.Credentials) (warehouse.Conn, *warehouse.Identity, error) {
		return conn, &warehouse.Identity{Account: "acct", User: "alice"}, nil
	}
	svc := NewConnectionService(sessions, dial)

	sess, err := svc.Connect(context.Background(), warehouse.Credentials{
		Account: "acct", User: "alice", Password: "secret",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Disconnect(sess.Handle))
	assert.True(t, conn.closed)

	err = svc.Disconnect(sess.Handle)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeSessionNotFound, apperrors.GetCode(err))
}
