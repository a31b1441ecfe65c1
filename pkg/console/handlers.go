package console

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lomehong/ldg/pkg/errors"
	"github.com/lomehong/ldg/pkg/health"
)

// ping 连通性探测
func (c *Console) ping(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"message": "pong",
		"time":    time.Now().Format(time.RFC3339),
	})
}

// getHealth 执行全部健康检查并返回快照。
// 存在不健康项时返回503，便于外部探活直接消费状态码
func (c *Console) getHealth(ctx *gin.Context) {
	if c.sources.Health == nil {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"error": "健康检查未配置"})
		return
	}

	snapshot := c.sources.Health.RunChecks(ctx.Request.Context())

	status := http.StatusOK
	if snapshot.Overall == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	ctx.JSON(status, snapshot)
}

// getStatus 返回引擎、语言数据与主机状态
func (c *Console) getStatus(ctx *gin.Context) {
	status := gin.H{
		"time": time.Now().Format(time.RFC3339),
	}

	if c.sources.Engine != nil {
		engineStatus := gin.H{
			"name":      c.sources.Engine.Name(),
			"available": true,
		}
		if err := c.sources.Engine.Available(); err != nil {
			engineStatus["available"] = false
			engineStatus["error"] = err.Error()
		}
		status["engine"] = engineStatus
	}

	if c.sources.Data != nil {
		dataStatus := gin.H{
			"tier": string(c.sources.Data.Source().Tier()),
		}
		if dir, err := c.sources.Data.Store().Resolve(ctx.Request.Context()); err == nil {
			dataStatus["dir"] = dir
		} else {
			dataStatus["error"] = err.Error()
		}
		if installed, err := c.sources.Data.Store().Installed(ctx.Request.Context()); err == nil {
			dataStatus["languages"] = installed
		}
		status["data"] = dataStatus
	}

	if c.sources.Monitor != nil {
		status["host"] = c.sources.Monitor.Status()
	}

	ctx.JSON(http.StatusOK, status)
}

// getMetrics 返回最近一次采集的系统指标
func (c *Console) getMetrics(ctx *gin.Context) {
	if c.sources.Metrics == nil {
		ctx.JSON(http.StatusOK, gin.H{})
		return
	}
	ctx.JSON(http.StatusOK, c.sources.Metrics.GetMetrics())
}

// getRuns 列出历史运行记录
func (c *Console) getRuns(ctx *gin.Context) {
	if c.sources.Runs == nil {
		ctx.JSON(http.StatusOK, gin.H{"runs": []interface{}{}, "total": 0})
		return
	}

	manifests, err := c.sources.Runs.List()
	if err != nil {
		c.logger.Error("读取运行记录失败", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"runs":  manifests,
		"total": len(manifests),
	})
}

// getRun 按运行ID返回单条运行记录
func (c *Console) getRun(ctx *gin.Context) {
	if c.sources.Runs == nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "运行记录存储未配置"})
		return
	}

	runID := ctx.Param("id")
	manifest, err := c.sources.Runs.Load(runID)
	if err != nil {
		if errors.IsCode(err, errors.CodeRunNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "run_id": runID})
			return
		}
		c.logger.Error("读取运行记录失败", "run_id", runID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	ctx.JSON(http.StatusOK, manifest)
}

// getEvents 返回最近事件，支持limit/offset/type/source过滤
func (c *Console) getEvents(ctx *gin.Context) {
	if c.sources.Events == nil {
		ctx.JSON(http.StatusOK, gin.H{"events": []interface{}{}, "total": 0})
		return
	}

	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "100"))
	offset, _ := strconv.Atoi(ctx.DefaultQuery("offset", "0"))
	eventType := ctx.Query("type")
	source := ctx.Query("source")

	eventList := c.sources.Events.GetEvents(limit, offset, eventType, source)
	ctx.JSON(http.StatusOK, gin.H{
		"events": eventList,
		"total":  c.sources.Events.GetEventCount(),
	})
}
