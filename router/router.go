package router

import (
	"database/sql"
	"net/http"

	docHandler "syncspace/internal/document"
	"syncspace/internal/document/repository"
	"syncspace/internal/document/service"
	"syncspace/middleware"
	"syncspace/socket"
)

func Setup(db *sql.DB, hub *socket.Hub) http.Handler {
	mux := http.NewServeMux()

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Context().Value(middleware.UserIDKey).(string)
		email, _ := r.Context().Value(middleware.EmailKey).(string)
		socket.ServeWs(hub, w, r, userID, email)
	})
	mux.Handle("/ws", middleware.AuthMiddleware(wsHandler))

	// REST API
	docRepo := repository.NewDocumentRepository(db)
	docService := service.NewDocumentService(docRepo, hub)
	handler := docHandler.NewDocumentHandler(docService)
	auth := middleware.AuthMiddleware

	mux.Handle("/api/documents/create", auth(http.HandlerFunc(handler.CreateDocument)))
	mux.Handle("/api/documents", auth(http.HandlerFunc(handler.GetDocument)))
	mux.Handle("/api/documents/save", auth(http.HandlerFunc(handler.SaveDocument)))
	mux.Handle("/api/documents/update", auth(http.HandlerFunc(handler.UpdateDocument)))
	mux.Handle("/api/documents/trash", auth(http.HandlerFunc(handler.TrashDocument)))
	mux.Handle("/api/documents/restore", auth(http.HandlerFunc(handler.RestoreDocument)))
	mux.Handle("/api/documents/delete", auth(http.HandlerFunc(handler.DeleteDocument)))

	return middleware.CORSMiddleware(mux)
}
