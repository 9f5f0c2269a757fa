package event

import (
	"log"
	"sync"
)

// Topic 是事件主题类型
type Topic string

// Handler 是事件处理器函数类型
type Handler func(payload interface{})

// Event 是在通道中传递的事件结构
type Event struct {
	Topic   Topic
	Payload interface{}
}

// EventBus 实现了基于固定 Worker 池的异步事件总线。
// 摄取后的优化流水线通过它投递：发布方永不阻塞，消费方数量受限，
// 逻辑文件带着显式的“处理中”状态（UploadedAt 为空）等待 worker 消费。
type EventBus struct {
	mu        sync.RWMutex
	handlers  map[Topic][]Handler
	eventChan chan Event     // 带缓冲的事件通道
	wg        sync.WaitGroup // 用于优雅关闭
}

// Worker 池和通道的默认配置
const (
	DefaultWorkerCount = 4
	DefaultChannelSize = 1024
)

// NewEventBus 创建并启动一个新的事件总线
func NewEventBus() *EventBus {
	bus := &EventBus{
		handlers:  make(map[Topic][]Handler),
		eventChan: make(chan Event, DefaultChannelSize),
	}
	bus.startWorkers(DefaultWorkerCount)
	return bus
}

func (b *EventBus) startWorkers(count int) {
	for i := 0; i < count; i++ {
		b.wg.Add(1)
		go b.worker(i + 1)
	}
}

// worker 不断从通道中读取并处理事件。
// handler 在 worker 的 goroutine 内执行，限制了并发，避免资源争抢。
func (b *EventBus) worker(workerID int) {
	defer b.wg.Done()
	log.Printf("[EventBus] Worker %d started", workerID)

	for ev := range b.eventChan {
		b.mu.RLock()
		handlers := b.handlers[ev.Topic]
		b.mu.RUnlock()
		for _, handler := range handlers {
			handler(ev.Payload)
		}
	}
	log.Printf("[EventBus] Worker %d stopped", workerID)
}

// Subscribe 订阅一个事件
func (b *EventBus) Subscribe(topic Topic, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = append(b.handlers[topic], handler)
}

// Publish 发布一个事件。非阻塞：通道满时丢弃并告警。
func (b *EventBus) Publish(topic Topic, payload interface{}) {
	select {
	case b.eventChan <- Event{Topic: topic, Payload: payload}:
	default:
		log.Printf("[EventBus] WARN: Event channel is full. Dropping event for topic '%s'.", topic)
	}
}

// Shutdown 优雅地关闭事件总线
func (b *EventBus) Shutdown() {
	log.Println("[EventBus] Shutting down...")
	close(b.eventChan)
	b.wg.Wait()
	log.Println("[EventBus] All workers have stopped.")
}
