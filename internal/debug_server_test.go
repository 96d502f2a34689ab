package internal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"smartsolve/contract"
	"smartsolve/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestDebugHandler(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	defer func() { _ = db.Close() }()

	req.NoError(db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte("msg:alice_bob:0000000000000000001:0f8fad5b-d9cb-469f-a165-70867728950e"), []byte("x"))
	}))

	handler := NewDebugHandler(db,
		func() any { return map[string]int{"connections": 1} },
		func() []contract.Connection {
			return []contract.Connection{{ID: "c1", UserID: domain.UserID("alice"), OpenedAt: time.Now()}}
		})

	t.Run("should expose stats as JSON", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/stats", nil))

		var got map[string]int
		require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
		require.Equal(t, 1, got["connections"])
	})

	t.Run("should list connections and keys", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debug/inspect?prefix=msg:", nil))

		body := w.Body.String()
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, body, "alice_bob")
		require.Contains(t, body, "c1")
	})
}

func TestDefaultMapper(t *testing.T) {
	req := require.New(t)

	row := DefaultMapper("notif:bob:0000000000000000001:0f8fad5b-d9cb-469f-a165-70867728950e", 12)
	req.Equal("NOTIF", row.Type)
	req.Equal("bob", row.Namespace)
	req.Equal("0f8fad5b", row.EntityID)
	req.Equal("Size: 12 bytes", row.Detail)

	row = DefaultMapper("user:alice", 3)
	req.Equal("USER", row.Type)
	req.Equal("alice", row.EntityID)
}
