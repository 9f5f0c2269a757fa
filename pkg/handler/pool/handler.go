package pool

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/response"
	pool_service "github.com/qingyun-c/qingyun-drive/pkg/service/pool"
)

// PoolHandler 负责处理所有与存储池配置相关的HTTP请求
type PoolHandler struct {
	poolSvc pool_service.IPoolService
}

// NewHandler 是 PoolHandler 的构造函数
func NewHandler(poolSvc pool_service.IPoolService) *PoolHandler {
	return &PoolHandler{poolSvc: poolSvc}
}

// List 处理查询存储池列表的请求 (GET /api/pools)
func (h *PoolHandler) List(c *gin.Context) {
	pools, err := h.poolSvc.List(c.Request.Context())
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	// 凭据不进响应
	for _, p := range pools {
		p.AccessKey = ""
		p.SecretKey = ""
	}
	response.Success(c, pools, "查询成功")
}

// Get 处理查询单个存储池的请求 (GET /api/pools/:id)
func (h *PoolHandler) Get(c *gin.Context) {
	p, err := h.poolSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	p.AccessKey = ""
	p.SecretKey = ""
	response.Success(c, p, "查询成功")
}

// Create 处理创建存储池的请求 (POST /api/pools)
func (h *PoolHandler) Create(c *gin.Context) {
	var p model.FilePool
	if err := c.ShouldBindJSON(&p); err != nil {
		response.Fail(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
		return
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if err := h.poolSvc.Create(c.Request.Context(), &p); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, gin.H{"id": p.ID}, "存储池创建成功")
}

// Update 处理更新存储池的请求 (PUT /api/pools/:id)
func (h *PoolHandler) Update(c *gin.Context) {
	var p model.FilePool
	if err := c.ShouldBindJSON(&p); err != nil {
		response.Fail(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
		return
	}
	p.ID = c.Param("id")
	if err := h.poolSvc.Update(c.Request.Context(), &p); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, nil, "存储池更新成功")
}
