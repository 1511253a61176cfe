package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"referral-service/internal/core/cache"
	"referral-service/internal/service"
	mdw "referral-service/internal/transport/http/middleware"
)

type Deps struct {
	Log       *zap.Logger
	Users     *service.UserService
	Cache     *cache.Cache // 可为 nil（redis 未启用时）
	ReportTTL time.Duration
}

func NewAPIEngine(d Deps) *gin.Engine {
	r := gin.New()

	r.Use(
		mdw.RequestID(),
		mdw.RateLimit(200, 400),
		mdw.ConcurrencyLimit(300),
		mdw.MaxBodyBytes(1<<20),
		mdw.Timeout(10*time.Second),
		mdw.SimpleRecovery(),
		mdw.Metrics(),
		mdw.AccessLog(d.Log),
	)
	r.Use(ginzap.RecoveryWithZap(d.Log, true))
	r.Use(cors.Default())

	// 健康检查 / 指标
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": 1}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	MountUserActions(api, d)

	return r
}
