package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-batcher/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	batchesHandler := handlers.NewBatchesHandler(s.store, s.processor, s.config, s.log)
	photosHandler := handlers.NewPhotosHandler(s.store, s.log)
	registrationsHandler := handlers.NewRegistrationsHandler(s.store, s.mail, s.log)
	driveHandler := handlers.NewDriveHandler(s.drive, s.log)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Batches
		r.Post("/batches", batchesHandler.Create)
		r.Get("/batches", batchesHandler.List)
		r.Get("/batches/{id}", batchesHandler.Get)
		r.Get("/batches/{id}/status", batchesHandler.Get)
		r.Post("/batches/{id}/photos", batchesHandler.UploadPhotos)
		r.Post("/batches/{id}/finalize", batchesHandler.Finalize)
		r.Post("/batches/{id}/process", batchesHandler.Process)
		r.Delete("/batches/{id}/process", batchesHandler.CancelProcess)
		r.Get("/batches/{id}/results", batchesHandler.Results)
		r.Get("/batches/{id}/events", batchesHandler.Events)

		// Photos
		r.Post("/photos/{id}/assign", photosHandler.Assign)

		// Registrations
		r.Get("/registrations", registrationsHandler.List)
		r.Post("/registrations", registrationsHandler.Create)
		r.Get("/registrations/{id}", registrationsHandler.Get)
		r.Post("/registrations/{id}/send-photos", registrationsHandler.SendPhotos)

		// Drive connection
		r.Get("/drive/status", driveHandler.Status)
		r.Get("/drive/auth-url", driveHandler.AuthURL)
		r.Post("/drive/connect", driveHandler.Connect)
		r.Delete("/drive/connection", driveHandler.Disconnect)
	})
}
