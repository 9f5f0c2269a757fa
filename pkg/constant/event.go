package constant

// 事件主题名，供 event.EventBus 使用。
// 字符串值同时作为日志中的主题标识。
const (
	// EventFileIngested 在逻辑文件记录落库后发布，触发异步优化流水线。
	// Payload 为文件 ID（string）。
	EventFileIngested = "file:ingested"

	// EventUploadProgress 在分片进度跨过粗粒度阈值时发布。
	// Payload 为 *model.UploadProgressEvent。
	EventUploadProgress = "upload:progress"
)
