package bundle

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qingyun-c/qingyun-drive/pkg/response"
	bundle_service "github.com/qingyun-c/qingyun-drive/pkg/service/bundle"
)

// BundleHandler 负责处理所有与文件分享包相关的HTTP请求
type BundleHandler struct {
	bundleSvc bundle_service.IBundleService
}

// NewHandler 是 BundleHandler 的构造函数
func NewHandler(bundleSvc bundle_service.IBundleService) *BundleHandler {
	return &BundleHandler{bundleSvc: bundleSvc}
}

type createBundleRequest struct {
	FileIDs   []string   `json:"file_ids" binding:"required,min=1"`
	Passcode  string     `json:"passcode,omitempty"`
	ExpiredAt *time.Time `json:"expired_at,omitempty"`
}

type updateBundleFilesRequest struct {
	FileIDs []string `json:"file_ids" binding:"required"`
}

// Create 处理创建分享包的请求 (POST /api/bundles)
func (h *BundleHandler) Create(c *gin.Context) {
	var req createBundleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
		return
	}

	accountID := c.GetHeader("X-Account-ID")
	b, err := h.bundleSvc.Create(c.Request.Context(), accountID, req.Passcode, req.FileIDs, req.ExpiredAt)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, gin.H{"id": b.ID, "slug": b.Slug}, "分享包创建成功")
}

// GetBySlug 处理按标识访问分享包的请求 (GET /api/bundles/:slug)
// 口令通过 X-Bundle-Passcode 头部传递，避免落入访问日志。
func (h *BundleHandler) GetBySlug(c *gin.Context) {
	info, err := h.bundleSvc.GetBySlug(c.Request.Context(), c.Param("slug"), c.GetHeader("X-Bundle-Passcode"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, info, "查询成功")
}

// UpdateFiles 处理更新分享包成员的请求 (PUT /api/bundles/:id/files)
func (h *BundleHandler) UpdateFiles(c *gin.Context) {
	var req updateBundleFilesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
		return
	}
	if err := h.bundleSvc.UpdateFiles(c.Request.Context(), c.Param("id"), req.FileIDs); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, nil, "成员更新成功")
}

// Delete 处理删除分享包的请求 (DELETE /api/bundles/:id)
func (h *BundleHandler) Delete(c *gin.Context) {
	if err := h.bundleSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, nil, "删除成功")
}
