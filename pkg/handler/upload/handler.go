package upload

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/qingyun-c/qingyun-drive/pkg/domain/model"
	"github.com/qingyun-c/qingyun-drive/pkg/response"
	upload_service "github.com/qingyun-c/qingyun-drive/pkg/service/upload"
)

// maxChunkBody 限制单个分片请求体的大小，防止恶意的超大请求
const maxChunkBody = 64 << 20 // 64MiB

// UploadHandler 负责处理所有与分片上传会话相关的HTTP请求
type UploadHandler struct {
	uploadSvc upload_service.IUploadService
}

// NewHandler 是 UploadHandler 的构造函数
func NewHandler(uploadSvc upload_service.IUploadService) *UploadHandler {
	return &UploadHandler{uploadSvc: uploadSvc}
}

// identityFrom 从请求头还原上传主体。
// 认证体系不在本服务内，网关侧完成鉴权后以头部传递身份。
func identityFrom(c *gin.Context) upload_service.UploaderIdentity {
	accountID := c.GetHeader("X-Account-ID")
	tier, _ := strconv.Atoi(c.GetHeader("X-Privilege-Tier"))
	return upload_service.UploaderIdentity{
		AccountID:     accountID,
		PrivilegeTier: tier,
		IsAnonymous:   accountID == "",
	}
}

// CreateTask 处理创建上传任务的请求 (POST /api/upload/tasks)
func (h *UploadHandler) CreateTask(c *gin.Context) {
	var req model.CreateUploadTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "请求参数无效: "+err.Error())
		return
	}

	data, err := h.uploadSvc.CreateTask(c.Request.Context(), identityFrom(c), &req)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	if data.FileExists {
		response.Success(c, data, "秒传命中，文件已存在")
		return
	}
	response.Success(c, data, "上传任务创建成功")
}

// UploadChunk 处理分片上传的请求 (PUT /api/upload/tasks/:taskId/chunks/:index)
// 分片内容直接作为请求体传输。
func (h *UploadHandler) UploadChunk(c *gin.Context) {
	taskID := c.Param("taskId")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "无效的分片序号")
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxChunkBody+1))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, "读取分片内容失败: "+err.Error())
		return
	}
	if len(data) > maxChunkBody {
		response.Fail(c, http.StatusRequestEntityTooLarge, "分片内容超过大小限制")
		return
	}

	status, err := h.uploadSvc.UploadChunk(c.Request.Context(), taskID, index, data)
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, status, "分片上传成功")
}

// GetStatus 处理查询任务状态的请求 (GET /api/upload/tasks/:taskId)
func (h *UploadHandler) GetStatus(c *gin.Context) {
	status, err := h.uploadSvc.GetStatus(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, status, "查询成功")
}

// Pause 处理暂停任务的请求 (POST /api/upload/tasks/:taskId/pause)
func (h *UploadHandler) Pause(c *gin.Context) {
	if err := h.uploadSvc.Pause(c.Request.Context(), c.Param("taskId")); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, nil, "任务已暂停")
}

// Resume 处理恢复任务的请求 (POST /api/upload/tasks/:taskId/resume)
func (h *UploadHandler) Resume(c *gin.Context) {
	if err := h.uploadSvc.Resume(c.Request.Context(), c.Param("taskId")); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, nil, "任务已恢复")
}

// Cancel 处理取消任务的请求 (DELETE /api/upload/tasks/:taskId)
func (h *UploadHandler) Cancel(c *gin.Context) {
	if err := h.uploadSvc.Cancel(c.Request.Context(), c.Param("taskId")); err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, nil, "任务已取消")
}

// Complete 处理完成任务的请求 (POST /api/upload/tasks/:taskId/complete)
func (h *UploadHandler) Complete(c *gin.Context) {
	file, err := h.uploadSvc.Complete(c.Request.Context(), c.Param("taskId"))
	if err != nil {
		response.FailWithError(c, err)
		return
	}
	response.Success(c, gin.H{"file_id": file.ID}, "上传完成")
}
