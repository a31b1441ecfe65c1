package events

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lomehong/ldg/pkg/logging"
)

// 预定义事件类型
const (
	TypeProvisionStep     = "provision.step"     // 环境准备步骤完成
	TypeProvisionFinished = "provision.finished" // 环境准备结束
	TypeDownloadStarted   = "download.started"   // 语言数据下载开始
	TypeDownloadFinished  = "download.finished"  // 语言数据下载结束
	TypeOCRFile           = "ocr.file"           // 单个文件识别完成
	TypeValidateRow       = "validate.row"       // 单行真值校验完成
	TypeRunFinished       = "run.finished"       // 一次运行结束
)

// Event 表示一个事件
type Event struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Type      string                 `json:"type"`
	Message   string                 `json:"message"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventHandler 事件处理函数
type EventHandler func(event Event) error

// EventManager 事件管理器，负责事件的发布和订阅
type EventManager struct {
	logger        logging.Logger
	handlers      map[string][]EventHandler
	handlersMutex sync.RWMutex
	events        []Event
	eventsMutex   sync.RWMutex
	maxEvents     int
}

// EventManagerOption 事件管理器选项
type EventManagerOption func(*EventManager)

// WithMaxEvents 设置最大事件数量
func WithMaxEvents(count int) EventManagerOption {
	return func(em *EventManager) {
		em.maxEvents = count
	}
}

// NewEventManager 创建一个新的事件管理器
func NewEventManager(log logging.Logger, options ...EventManagerOption) *EventManager {
	if log == nil {
		config := logging.DefaultLogConfig()
		enhancedLogger, err := logging.NewEnhancedLogger(config)
		if err != nil {
			enhancedLogger, _ = logging.NewEnhancedLogger(nil)
		}
		log = enhancedLogger.Named("event-manager")
	}

	em := &EventManager{
		logger:    log,
		handlers:  make(map[string][]EventHandler),
		events:    make([]Event, 0, 256),
		maxEvents: 2048,
	}

	for _, option := range options {
		option(em)
	}

	return em
}

// RegisterEventHandler 注册事件处理函数，类型"*"匹配所有事件
func (em *EventManager) RegisterEventHandler(eventType string, handler EventHandler) error {
	if eventType == "" {
		return fmt.Errorf("事件类型不能为空")
	}
	if handler == nil {
		return fmt.Errorf("事件处理函数不能为空")
	}

	em.handlersMutex.Lock()
	defer em.handlersMutex.Unlock()

	em.handlers[eventType] = append(em.handlers[eventType], handler)
	em.logger.Debug("注册事件处理函数", "type", eventType)

	return nil
}

// Publish 构造并发布一个事件
func (em *EventManager) Publish(eventType, source, message string, data map[string]interface{}) error {
	return em.PublishEvent(Event{
		Type:    eventType,
		Source:  source,
		Message: message,
		Data:    data,
	})
}

// PublishEvent 发布事件
func (em *EventManager) PublishEvent(event Event) error {
	if event.Type == "" {
		return fmt.Errorf("事件类型不能为空")
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	// 存储事件，超出上限时丢弃最旧的
	em.eventsMutex.Lock()
	em.events = append(em.events, event)
	if len(em.events) > em.maxEvents {
		em.events = em.events[len(em.events)-em.maxEvents:]
	}
	em.eventsMutex.Unlock()

	em.handlersMutex.RLock()
	handlers := make([]EventHandler, 0, len(em.handlers[event.Type])+len(em.handlers["*"]))
	handlers = append(handlers, em.handlers["*"]...)
	handlers = append(handlers, em.handlers[event.Type]...)
	em.handlersMutex.RUnlock()

	// 同步调用处理函数，命令可能在发布后立即退出
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			em.logger.Error("事件处理失败", "type", event.Type, "id", event.ID, "error", err)
		}
	}

	em.logger.Debug("发布事件", "type", event.Type, "id", event.ID, "message", event.Message)
	return nil
}

// GetEvents 获取事件列表，按时间倒序分页
func (em *EventManager) GetEvents(limit int, offset int, eventType string, source string) []Event {
	em.eventsMutex.RLock()
	defer em.eventsMutex.RUnlock()

	filtered := make([]Event, 0, len(em.events))
	for _, event := range em.events {
		if (eventType == "" || event.Type == eventType) && (source == "" || event.Source == source) {
			filtered = append(filtered, event)
		}
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Timestamp.After(filtered[j].Timestamp)
	})

	total := len(filtered)
	if offset >= total {
		return []Event{}
	}

	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	return filtered[offset:end]
}

// GetEventCount 获取事件数量
func (em *EventManager) GetEventCount() int {
	em.eventsMutex.RLock()
	defer em.eventsMutex.RUnlock()
	return len(em.events)
}

// ClearEvents 清除所有事件
func (em *EventManager) ClearEvents() {
	em.eventsMutex.Lock()
	defer em.eventsMutex.Unlock()
	em.events = make([]Event, 0, 256)
	em.logger.Debug("清除所有事件")
}
