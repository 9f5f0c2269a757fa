package constant

import "errors"

// 定义业务逻辑相关的标准错误
var (
	// ErrNotFound 表示资源未找到，可以由 Handler 转换为 404
	ErrNotFound = errors.New("资源未找到")

	// ErrForbidden 表示无权访问，可以由 Handler 转换为 403
	ErrForbidden = errors.New("操作禁止")

	// ErrConflict 表示资源冲突，可以由 Handler 转换为 409
	ErrConflict = errors.New("资源冲突")

	// ErrBadRequest 表示请求参数错误，可以由 Handler 转换为 400
	ErrBadRequest = errors.New("错误的请求")

	// ErrPolicyViolation 表示上传请求违反了存储池策略（类型/大小/权限等），
	// 包装时应附带被违反的具体规则描述
	ErrPolicyViolation = errors.New("违反存储池策略")

	// ErrIncompleteUpload 表示在分片缺失的情况下尝试合并上传任务，属于致命错误，
	// 绝不允许产生部分合并结果
	ErrIncompleteUpload = errors.New("分片上传不完整")

	// ErrCorruptEnvelope 表示加密信封解析失败（截断、魔数或长度字段非法）
	ErrCorruptEnvelope = errors.New("加密信封已损坏")

	// ErrWrongKeyOrCorrupt 表示解密后内层校验失败，密钥错误或密文被篡改
	ErrWrongKeyOrCorrupt = errors.New("密钥错误或密文已损坏")

	// ErrInsufficientQuota 表示配额不足，在任何物理上传发生之前返回
	ErrInsufficientQuota = errors.New("存储配额不足")

	// ErrRemoteUnavailable 表示远端对象存储暂时不可用，属于可重试的瞬态错误
	ErrRemoteUnavailable = errors.New("远端存储暂时不可用")

	// ErrPoolNotFound 表示存储池未找到，可以由 Handler 转换为 404
	ErrPoolNotFound = errors.New("存储池未找到")

	// ErrTaskNotFound 表示上传任务未找到，可以由 Handler 转换为 404
	ErrTaskNotFound = errors.New("上传任务未找到")

	// ErrFileExists 表示声明哈希命中已有文件，上传被秒传短路。
	// 它不是失败：调用方应直接复用已存在的逻辑文件
	ErrFileExists = errors.New("文件已存在（秒传）")

	// ErrStreamNotSeekable 表示内容流不可定位，调用方必须先缓冲到磁盘再计算指纹
	ErrStreamNotSeekable = errors.New("内容流不可定位")

	// ErrLinkExpired 表示签名访问链接已过期，可以由 Handler 转换为 410
	ErrLinkExpired = errors.New("链接已过期")

	// ErrSignatureInvalid 表示签名无效，可以由 Handler 转换为 400
	ErrSignatureInvalid = errors.New("签名无效")

	// ErrInvalidPublicID 表示无效的公共ID，可以由 Handler 转换为 400
	ErrInvalidPublicID = errors.New("无效的公共ID")
)
