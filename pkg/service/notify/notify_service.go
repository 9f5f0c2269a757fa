package notify

import (
	"context"
	"log"
)

// Notification 是一条发给账号的站内通知
type Notification struct {
	AccountID string
	Title     string
	Content   string
}

// INotifyService 是通知协作方接口，投递为尽力而为，
// 失败不影响调用方的主流程。
type INotifyService interface {
	Dispatch(ctx context.Context, n Notification)
}

// logNotifyService 是默认实现：没有接入消息通道时仅落日志。
type logNotifyService struct{}

// NewLogNotifyService 返回一个仅记录日志的通知实现
func NewLogNotifyService() INotifyService {
	return &logNotifyService{}
}

func (s *logNotifyService) Dispatch(ctx context.Context, n Notification) {
	log.Printf("[Notify] 账号 %s: %s - %s", n.AccountID, n.Title, n.Content)
}
