package controllers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/BerniceZTT/crm_web/middleware"
	"github.com/BerniceZTT/crm_web/models"
	"github.com/BerniceZTT/crm_web/service"
	"github.com/BerniceZTT/crm_web/utils"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// DashboardMessage 看板推送消息
type DashboardMessage struct {
	Type  string                    `json:"type"` // snapshot | error
	Data  *models.DashboardSnapshot `json:"data,omitempty"`
	Error string                    `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const dashboardWriteTimeout = 10 * time.Second

// GetDashboard 数据看板：关键指标与图表数据
func GetDashboard(c *gin.Context) {
	snap, err := service.RefreshDashboard(c.Request.Context(), workspace(c))
	if err != nil {
		utils.HandleError(c, err)
		return
	}
	utils.SuccessResponse(c, snap, "")
}

// DashboardSocket 看板实时推送：连接期间按固定间隔重新拉取并推送快照，断开后停止
func DashboardSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.Logger.Warn().Err(err).Msg("看板 websocket 升级失败")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	// 看板是独立页面，使用自己的工作区
	page := service.NewWorkspace(middleware.SessionID(c), env.Store, env.PageSize)

	var writeMu sync.Mutex
	push := func(ctx context.Context) {
		msg := DashboardMessage{Type: "snapshot"}
		snap, err := service.RefreshDashboard(ctx, page)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			msg = DashboardMessage{Type: "error", Error: err.Error()}
		} else {
			msg.Data = &snap
		}

		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(dashboardWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			utils.Logger.Debug().Err(err).Str("session", page.SessionID()).Msg("看板推送失败，关闭连接")
			cancel()
		}
	}

	poller := service.NewPoller("dashboard:"+page.SessionID(), env.DashboardRefresh, push)
	poller.Start(ctx, true)
	defer poller.Stop()

	// 读循环只用于发现连接关闭
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()
	<-ctx.Done()
}
