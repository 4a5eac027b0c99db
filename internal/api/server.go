package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), Observability(h.Log))

	r.GET("/healthz", h.Healthz)

	api := r.Group("/api")

	campaigns := api.Group("/campaigns/:id")
	campaigns.POST("/send", h.SendCampaign)
	campaigns.GET("/progress", h.CampaignProgress)
	campaigns.GET("/stats", h.CampaignStats)
	campaigns.POST("/reset", h.ResetCampaign)

	emails := api.Group("/emails")
	emails.GET("/logs", h.EmailLogs)
	emails.GET("/stats", h.EmailLogStats)
	emails.GET("/verify-smtp", h.VerifySMTP)
	emails.POST("/send", h.SendSingle)

	api.POST("/email-accounts/:id/test", h.TestAccount)

	return r
}

func NewHTTPServer(addr string, h *Handler) *http.Server {
	return &http.Server{
		Addr:    addr,
		Handler: NewRouter(h),
	}
}
