package events

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishEvent(t *testing.T) {
	em := NewEventManager(nil)

	err := em.PublishEvent(Event{
		Type:    TypeDownloadFinished,
		Source:  "tessdata",
		Message: "kor.traineddata 下载完成",
		Data:    map[string]interface{}{"language": "kor", "bytes": int64(15400601)},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, em.GetEventCount())

	events := em.GetEvents(10, 0, "", "")
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero())
	assert.Equal(t, TypeDownloadFinished, events[0].Type)
}

func TestPublishEventEmptyType(t *testing.T) {
	em := NewEventManager(nil)
	err := em.PublishEvent(Event{Message: "无类型"})
	assert.Error(t, err)
}

func TestEventHandlers(t *testing.T) {
	em := NewEventManager(nil)

	var typed, wildcard int
	require.NoError(t, em.RegisterEventHandler(TypeProvisionStep, func(event Event) error {
		typed++
		return nil
	}))
	require.NoError(t, em.RegisterEventHandler("*", func(event Event) error {
		wildcard++
		return nil
	}))

	require.NoError(t, em.Publish(TypeProvisionStep, "provision", "检测引擎", nil))
	require.NoError(t, em.Publish(TypeRunFinished, "cli", "运行结束", nil))

	// 类型处理函数只收到匹配事件，通配符收到所有事件
	assert.Equal(t, 1, typed)
	assert.Equal(t, 2, wildcard)
}

func TestEventHandlerError(t *testing.T) {
	em := NewEventManager(nil)

	require.NoError(t, em.RegisterEventHandler("*", func(event Event) error {
		return fmt.Errorf("处理失败")
	}))

	// 处理函数失败不影响事件发布
	err := em.Publish(TypeOCRFile, "ocr", "a.pdf 识别完成", nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, em.GetEventCount())
}

func TestGetEventsFilterAndPaging(t *testing.T) {
	em := NewEventManager(nil)

	for i := 0; i < 5; i++ {
		require.NoError(t, em.Publish(TypeValidateRow, "validator", fmt.Sprintf("第%d行", i), nil))
	}
	require.NoError(t, em.Publish(TypeRunFinished, "cli", "运行结束", nil))

	// 按类型过滤
	rows := em.GetEvents(0, 0, TypeValidateRow, "")
	assert.Len(t, rows, 5)

	// 按来源过滤
	fromCLI := em.GetEvents(0, 0, "", "cli")
	assert.Len(t, fromCLI, 1)

	// 分页
	page := em.GetEvents(2, 0, TypeValidateRow, "")
	assert.Len(t, page, 2)
	page = em.GetEvents(2, 4, TypeValidateRow, "")
	assert.Len(t, page, 1)

	// 越界偏移返回空
	assert.Empty(t, em.GetEvents(2, 10, TypeValidateRow, ""))
}

func TestMaxEvents(t *testing.T) {
	em := NewEventManager(nil, WithMaxEvents(3))

	for i := 0; i < 5; i++ {
		require.NoError(t, em.Publish(TypeOCRFile, "ocr", fmt.Sprintf("文件%d", i), nil))
	}

	assert.Equal(t, 3, em.GetEventCount())

	// 保留的是最新的事件
	events := em.GetEvents(0, 0, "", "")
	assert.Equal(t, "文件4", events[0].Message)
}

func TestClearEvents(t *testing.T) {
	em := NewEventManager(nil)
	require.NoError(t, em.Publish(TypeOCRFile, "ocr", "文件", nil))
	em.ClearEvents()
	assert.Equal(t, 0, em.GetEventCount())
}
