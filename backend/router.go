package backend

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter mounts the collab socket, the compile socket and the HTTP
// endpoints.
func NewRouter(hub *Hub, gw *Gateway) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/collab", hub.ServeCollab)
	r.HandleFunc("/socket", gw.ServeSocket)
	r.HandleFunc("/models/{collection}/{id}", hub.ServeSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/models/{collection}/{id}", hub.ServeDelete).Methods(http.MethodDelete)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}
