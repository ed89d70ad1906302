package feed

import (
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"task-service/internal/model"
)

func drain(sub *Subscription) []Message {
	var out []Message
	for {
		select {
		case msg := <-sub.C():
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestHub_Publish(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	creator := uuid.New()
	watcher := uuid.New()

	mine := hub.Subscribe(creator)
	theirs := hub.Subscribe(watcher)
	require.Equal(t, 2, hub.Len())

	row := &Row{ID: uuid.New(), CreatorID: creator, Status: model.TaskStatusUnassigned}
	hub.Publish(Event{Type: EventInsert, New: row})

	creatorMsgs := drain(mine)
	require.Len(t, creatorMsgs, 1)
	assert.Equal(t, MessageChanged, creatorMsgs[0].Event)

	watcherMsgs := drain(theirs)
	require.Len(t, watcherMsgs, 2)
	assert.Equal(t, MessageChanged, watcherMsgs[0].Event)
	assert.Equal(t, MessageNotification, watcherMsgs[1].Event)
	n, ok := watcherMsgs[1].Data.(Notification)
	require.True(t, ok)
	assert.Equal(t, KindNewTask, n.Kind)

	hub.Unsubscribe(mine)
	hub.Unsubscribe(mine)
	assert.Equal(t, 1, hub.Len())
	_, open := <-mine.C()
	assert.False(t, open)
}

func TestHub_SlowSubscriberDropsMessages(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub := hub.Subscribe(uuid.New())

	row := &Row{ID: uuid.New(), Status: model.TaskStatusAssigned}
	for i := 0; i < subscriberBuffer*2; i++ {
		hub.Publish(Event{Type: EventDelete, Old: row})
	}
	assert.Len(t, drain(sub), subscriberBuffer)
}

func TestHub_Close(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	sub := hub.Subscribe(uuid.New())

	hub.Close()
	hub.Close()

	_, open := <-sub.C()
	assert.False(t, open)
	assert.Equal(t, 0, hub.Len())

	late := hub.Subscribe(uuid.New())
	_, open = <-late.C()
	assert.False(t, open)
	assert.Equal(t, 0, hub.Len())
	hub.Unsubscribe(late)
}
