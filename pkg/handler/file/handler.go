package file

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qingyun-c/qingyun-drive/internal/infra/storage"
	"github.com/qingyun-c/qingyun-drive/pkg/response"
	file_service "github.com/qingyun-c/qingyun-drive/pkg/service/file"
)

// FileHandler 负责处理所有与文件相关的HTTP请求
type FileHandler struct {
	fileSvc       file_service.IFileService
	signingSecret string
}

// NewHandler 是 FileHandler 的构造函数
func NewHandler(fileSvc file_service.IFileService, signingSecret string) *FileHandler {
	return &FileHandler{
		fileSvc:       fileSvc,
		signingSecret: signingSecret,
	}
}

// GetInfo 处理查询文件详情的请求 (GET /api/files/:id)
func (h *FileHandler) GetInfo(c *gin.Context) {
	f, err := h.fileSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, h.fileSvc.BuildInfoResponse(c.Request.Context(), f), "查询成功")
}

// GetDownloadURL 处理获取下载链接的请求 (GET /api/files/:id/url)
func (h *FileHandler) GetDownloadURL(c *gin.Context) {
	f, err := h.fileSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	filename := c.Query("filename")
	if filename == "" {
		filename = f.Name
	}
	url, err := h.fileSvc.GetDownloadURL(c.Request.Context(), f, filename)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, gin.H{"url": url}, "获取下载链接成功")
}

// ServeRaw 处理令牌下载的请求 (GET /api/files/:id/raw?token=)
// 用于物理字节尚未到达远端、或存储池关闭直链时的服务端代理下载。
func (h *FileHandler) ServeRaw(c *gin.Context) {
	fileID, err := h.fileSvc.VerifyAccessToken(c.Query("token"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	if fileID != c.Param("id") {
		response.Fail(c, http.StatusForbidden, "令牌与文件不匹配")
		return
	}
	h.streamContent(c, fileID)
}

// ServeLocal 处理本地池签名下载的请求 (GET /api/download/local/:id?expires=&sign=)
func (h *FileHandler) ServeLocal(c *gin.Context) {
	publicID := c.Param("id")
	expires, err := strconv.ParseInt(c.Query("expires"), 10, 64)
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "无效的过期时间")
		return
	}
	if err := storage.VerifyLocalSignature(h.signingSecret, publicID, c.Query("sign"), expires); err != nil {
		response.FailWithError(c, err)
		return
	}
	h.streamContent(c, publicID)
}

// Delete 处理删除文件的请求 (DELETE /api/files/:id)
func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.fileSvc.DeleteData(c.Request.Context(), c.Param("id")); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, nil, "删除成功")
}

func (h *FileHandler) streamContent(c *gin.Context, fileID string) {
	f, err := h.fileSvc.GetByID(c.Request.Context(), fileID)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	rc, err := h.fileSvc.OpenContent(c.Request.Context(), f)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	defer rc.Close()

	if f.MimeType != "" {
		c.Header("Content-Type", f.MimeType)
	} else {
		c.Header("Content-Type", "application/octet-stream")
	}
	if f.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(f.Size, 10))
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Name))
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		// 响应头已发出，只能记录后断开
		c.Abort()
	}
}
