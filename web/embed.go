// Package web embeds the static front end.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed all:static
var staticFS embed.FS

func mustSub() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}
	return sub
}

// Handler serves the embedded assets, with index.html at /.
func Handler() http.Handler {
	return http.FileServer(http.FS(mustSub()))
}

// ChatPage serves the chat shell for GET /chat.
func ChatPage() http.HandlerFunc {
	sub := mustSub()
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := fs.ReadFile(sub, "chat.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(data)
	}
}
