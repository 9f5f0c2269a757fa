package task

// Job 是所有定时任务需要实现的接口，与 cron.Job 兼容。
// Name 供日志包装器打印可读的任务名。
type Job interface {
	Run()
	Name() string
}
