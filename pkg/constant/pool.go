package constant

// PoolType 定义存储池底层远端存储的类型
type PoolType string

const (
	PoolTypeLocal      PoolType = "local"      // 本机磁盘
	PoolTypeS3         PoolType = "s3"         // AWS S3 及兼容协议
	PoolTypeAliOSS     PoolType = "oss"        // 阿里云 OSS
	PoolTypeTencentCOS PoolType = "cos"        // 腾讯云 COS
	PoolTypeQiniuKodo  PoolType = "kodo"       // 七牛云 Kodo
)

// FileUsage 定义引用记录的用途分类。
// 引用表示“某个资源 X 为了用途 Z 正在使用文件 Y”。
type FileUsage string

const (
	UsageAvatar     FileUsage = "avatar"     // 用户头像
	UsageAttachment FileUsage = "attachment" // 消息/帖子附件
	UsageBundle     FileUsage = "bundle"     // 文件分享包成员
	UsageEmoji      FileUsage = "emoji"      // 自定义表情
	UsageGeneral    FileUsage = "general"    // 无特定分类的通用引用
)

// 派生对象在远端存储中的键后缀。
// 物理主对象键为 storage_id，压缩副本和缩略图分别追加下列后缀。
const (
	SuffixCompressed = ".compressed"
	SuffixThumbnail  = ".thumbnail"
)
