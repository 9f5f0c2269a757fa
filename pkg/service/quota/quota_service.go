package quota

import "context"

// IQuotaService 是配额协作方接口。上传入口在受理前询问配额是否足够，
// costMultiplier 来自存储池的计费倍率。
type IQuotaService interface {
	IsAcceptable(ctx context.Context, accountID string, costMultiplier float64, size int64) (ok bool, used int64, limit int64, err error)
}

// unlimitedQuotaService 是默认实现：不接入计费系统时一律放行。
type unlimitedQuotaService struct{}

// NewUnlimitedQuotaService 返回一个不设限的配额实现
func NewUnlimitedQuotaService() IQuotaService {
	return &unlimitedQuotaService{}
}

func (s *unlimitedQuotaService) IsAcceptable(ctx context.Context, accountID string, costMultiplier float64, size int64) (bool, int64, int64, error) {
	return true, 0, 0, nil
}
