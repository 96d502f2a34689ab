package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestMapToHTTPStatus(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"no error", nil, http.StatusOK},
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized},
		{"forbidden wrapped", fmt.Errorf("delete: %w", ErrForbidden), http.StatusForbidden},
		{"invalid content", ErrInvalidContent, http.StatusBadRequest},
		{"invalid participant", ErrInvalidParticipant, http.StatusBadRequest},
		{"not found", ErrNotFound, http.StatusNotFound},
		{"exhausted", ErrResourceExhausted, http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, MapToHTTPStatus(tt.err))
		})
	}
}

func TestMapToCloseCode_Distinguishes_Rejections(t *testing.T) {
	req := require.New(t)
	req.Equal(CloseUnauthenticated, MapToCloseCode(ErrUnauthenticated))
	req.Equal(CloseForbidden, MapToCloseCode(fmt.Errorf("banned: %w", ErrForbidden)))
	req.Equal(websocket.CloseTryAgainLater, MapToCloseCode(ErrResourceExhausted))
	req.NotEqual(MapToCloseCode(ErrUnauthenticated), MapToCloseCode(ErrForbidden))
}
