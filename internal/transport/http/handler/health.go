package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"teamchat/internal/bootstrap"
)

var errConnClosed = errors.New("connection closed")

type HealthHandler struct {
	app *bootstrap.App
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

type depCheck struct {
	name  string
	probe func(context.Context) error
}

// Check pings every infrastructure dependency and reports 503 when any of
// them is down. The engine backend is deliberately not probed here: chat
// requests surface its failures directly and a cold engine should not take
// the whole service out of the load balancer.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := []depCheck{
		{name: "mysql", probe: func(ctx context.Context) error {
			sqlDB, err := h.app.MySQL.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}},
		{name: "redis", probe: func(ctx context.Context) error {
			return h.app.Redis.Ping(ctx).Err()
		}},
		{name: "rabbitmq", probe: func(context.Context) error {
			if h.app.MQConn == nil || h.app.MQConn.IsClosed() {
				return errConnClosed
			}
			return nil
		}},
	}

	deps := gin.H{}
	statusCode := http.StatusOK
	for _, check := range checks {
		if err := check.probe(ctx); err != nil {
			deps[check.name] = gin.H{"ok": false, "message": err.Error()}
			statusCode = http.StatusServiceUnavailable
			continue
		}
		deps[check.name] = gin.H{"ok": true}
	}

	c.JSON(statusCode, gin.H{
		"app":          h.app.Config.App.Name,
		"env":          h.app.Config.App.Env,
		"uptime_sec":   int(time.Since(h.app.StartedAt).Seconds()),
		"dependencies": deps,
	})
}
