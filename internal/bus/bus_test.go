package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return Message{}
	}
}

func TestPublishDeliversToSessionSubscribers(t *testing.T) {
	b := New(4, nil)
	ch, unsubscribe := b.Subscribe("s1")
	defer unsubscribe()
	other, unsubscribeOther := b.Subscribe("s2")
	defer unsubscribeOther()

	b.Publish(Message{Kind: KindProfileUpdated, SessionID: "s1", Payload: "x"})

	msg := receive(t, ch)
	assert.Equal(t, KindProfileUpdated, msg.Kind)
	assert.NotEmpty(t, msg.ID)
	assert.False(t, msg.OccurredAt.IsZero())
	assert.Empty(t, other)
}

func TestWildcardSubscriberSeesAllSessions(t *testing.T) {
	b := New(4, nil)
	all, unsubscribe := b.Subscribe("")
	defer unsubscribe()

	b.Publish(Message{Kind: KindAgentPublished, SessionID: "s1"})
	b.Publish(Message{Kind: KindPlanSelected, SessionID: "s2"})

	assert.Equal(t, "s1", receive(t, all).SessionID)
	assert.Equal(t, "s2", receive(t, all).SessionID)
}

func TestPublishDoesNotBlockOnFullBuffer(t *testing.T) {
	b := New(1, nil)
	ch, unsubscribe := b.Subscribe("s1")
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			b.Publish(Message{Kind: KindTurnAppended, SessionID: "s1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, ch, 1)
}

func TestUnknownKindIsDropped(t *testing.T) {
	b := New(1, nil)
	ch, unsubscribe := b.Subscribe("s1")
	defer unsubscribe()

	b.Publish(Message{Kind: Kind("legacy.open_modal"), SessionID: "s1"})
	assert.Empty(t, ch)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(1, nil)
	ch, unsubscribe := b.Subscribe("s1")
	require.Equal(t, 1, b.Subscribers("s1"))

	unsubscribe()
	unsubscribe()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, b.Subscribers("s1"))

	b.Publish(Message{Kind: KindProfileUpdated, SessionID: "s1"})
}
