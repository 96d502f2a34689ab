package internal

import (
	"embed"
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smartsolve/contract"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
)

//go:embed inspect.html
var templatesFS embed.FS

const maxInspectRows = 500

type InspectRow struct {
	Key       string
	Type      string
	Timestamp string
	EntityID  string
	Namespace string
	Detail    string
}

type ConnectionRow struct {
	ID       string
	UserID   string
	OpenedAt string
}

type StatsProvider func() any
type ConnectionsProvider func() []contract.Connection

type PageData struct {
	Prefix      string
	Items       []InspectRow
	Connections []ConnectionRow
}

// NewDebugHandler serves /debug/stats as JSON and /debug/inspect as an HTML
// listing of live connections and of the Badger keys under ?prefix=.
func NewDebugHandler(db *badger.DB, stats StatsProvider, connections ConnectionsProvider) http.Handler {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats())
	})

	mux.HandleFunc("/debug/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}

		data := PageData{
			Prefix: prefix,
			Connections: lo.Map(connections(), func(c contract.Connection, _ int) ConnectionRow {
				return ConnectionRow{ID: c.ID.String(), UserID: c.UserID.String(), OpenedAt: c.OpenedAt.Format(time.RFC3339)}
			}),
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)) && len(data.Items) < maxInspectRows; it.Next() {
				item := it.Item()
				data.Items = append(data.Items, DefaultMapper(string(item.Key()), item.ValueSize()))
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	return mux
}

// DefaultMapper splits "{type}:{namespace}:{ts}:{id}" keys. Shorter keys are shown raw.
func DefaultMapper(key string, size int64) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:       key,
		Type:      strings.ToUpper(parts[0]),
		Timestamp: "--:--:--",
		EntityID:  "--------",
		Namespace: "default",
		Detail:    "Size: " + strconv.FormatInt(size, 10) + " bytes",
	}

	if len(parts) == 2 {
		row.EntityID = parts[1]
	}
	if len(parts) >= 4 {
		row.Namespace = parts[1]
		if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			row.Timestamp = time.Unix(0, tsNano).UTC().Format("15:04:05")
		}
		row.EntityID = parts[3]
	}
	if len(row.EntityID) > 8 {
		row.EntityID = row.EntityID[:8]
	}
	return row
}
