// SPDX-License-Identifier: MIT

// Package api exposes the controller over HTTP: the /v2 JSON routes, the
// notification streams and the middleware stack in front of them.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/netlabio/netlabd/internal/appliance"
	"github.com/netlabio/netlabd/internal/config"
	"github.com/netlabio/netlabd/internal/controller"
	xlog "github.com/netlabio/netlabd/internal/log"
	"github.com/netlabio/netlabd/internal/notification"
)

// Server holds the handler dependencies.
type Server struct {
	cfg           config.AppConfig
	controller    *controller.Controller
	appliances    *appliance.Registry
	notifications *notification.Manager
}

// New wires the HTTP surface over a controller.
func New(cfg config.AppConfig, ctl *controller.Controller, registry *appliance.Registry) *Server {
	return &Server{
		cfg:           cfg,
		controller:    ctl,
		appliances:    registry,
		notifications: ctl.Notifications(),
	}
}

// Handler builds the full router with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(recoverer)
	r.Use(requestID)
	r.Use(cors(s.cfg.AllowedOrigins))
	r.Use(securityHeaders)
	r.Use(metricsMiddleware)
	r.Use(xlog.Middleware())
	if s.cfg.RateLimitEnabled {
		r.Use(rateLimit(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst))
	}

	r.Get("/healthz", s.handleHealth)

	r.Route("/v2", func(r chi.Router) {
		r.Use(bearerAuth(s.cfg.APIToken))
		s.registerRoutes(r)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.cfg.Version,
	})
}

func (s *Server) registerRoutes(r chi.Router) {
	r.Get("/version", s.handleVersion)

	r.Route("/projects", func(r chi.Router) {
		r.Post("/", s.handleProjectCreate)
		r.Get("/", s.handleProjectList)

		r.Route("/{project_id}", func(r chi.Router) {
			r.Get("/", s.handleProjectGet)
			r.Put("/", s.handleProjectUpdate)
			r.Delete("/", s.handleProjectDelete)
			r.Post("/open", s.handleProjectOpen)
			r.Post("/close", s.handleProjectClose)
			r.Post("/duplicate", s.handleProjectDuplicate)
			r.Get("/export", s.handleProjectExport)
			r.Post("/import", s.handleProjectImport)

			r.Route("/nodes", func(r chi.Router) {
				r.Post("/", s.handleNodeCreate)
				r.Get("/", s.handleNodeList)
				r.Post("/start", s.handleNodesStartAll)
				r.Post("/stop", s.handleNodesStopAll)
				r.Post("/suspend", s.handleNodesSuspendAll)

				r.Route("/{node_id}", func(r chi.Router) {
					r.Get("/", s.handleNodeGet)
					r.Put("/", s.handleNodeUpdate)
					r.Delete("/", s.handleNodeDelete)
					r.Get("/ports", s.handleNodePorts)
					r.Post("/start", s.handleNodeStart)
					r.Post("/stop", s.handleNodeStop)
					r.Post("/suspend", s.handleNodeSuspend)
					r.Post("/duplicate", s.handleNodeDuplicate)
				})
			})

			r.Route("/links", func(r chi.Router) {
				r.Post("/", s.handleLinkCreate)
				r.Get("/", s.handleLinkList)
				r.Route("/{link_id}", func(r chi.Router) {
					r.Get("/", s.handleLinkGet)
					r.Put("/", s.handleLinkPut)
					r.Delete("/", s.handleLinkDelete)
				})
			})

			r.Route("/drawings", func(r chi.Router) {
				r.Post("/", s.handleDrawingCreate)
				r.Get("/", s.handleDrawingList)
				r.Route("/{drawing_id}", func(r chi.Router) {
					r.Get("/", s.handleDrawingGet)
					r.Put("/", s.handleDrawingUpdate)
					r.Delete("/", s.handleDrawingDelete)
				})
			})

			r.Route("/snapshots", func(r chi.Router) {
				r.Post("/", s.handleSnapshotCreate)
				r.Get("/", s.handleSnapshotList)
				r.Post("/{snapshot_id}/restore", s.handleSnapshotRestore)
				r.Delete("/{snapshot_id}", s.handleSnapshotDelete)
			})

			r.Post("/appliances/{appliance_id}", s.handleApplianceAddNode)
			r.Get("/notifications", s.handleProjectNotifications)
			r.Get("/notifications/ws", s.handleProjectNotificationsWS)
		})
	})

	r.Get("/appliances", s.handleApplianceList)
	r.Get("/appliances/{appliance_id}", s.handleApplianceGet)

	r.Get("/notifications", s.handleNotifications)
	r.Get("/notifications/ws", s.handleNotificationsWS)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{"version": s.cfg.Version})
}
