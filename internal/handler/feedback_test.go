package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdlh/query-server-go/internal/service"
)

func TestSubmitFeedbackEndpoint(t *testing.T) {
	h := NewFeedbackHandler(service.NewFeedbackService("", ""))
	sess := newHandlerSession(&fakeConn{})

	req := httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"pivotId": "pivot-1", "rating": 5, "comment": "useful"}`))
	rec := serve(h.Routes(), sess, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"pivot_id":"pivot-1"`)
	assert.Contains(t, rec.Body.String(), `"user_name":"alice"`)
}

func TestSubmitFeedbackEndpointRejectsEmpty(t *testing.T) {
	h := NewFeedbackHandler(service.NewFeedbackService("", ""))
	sess := newHandlerSession(&fakeConn{})

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"pivotId": "pivot-1"}`))
	rec := serve(h.Routes(), sess, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}
