package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotifierOrderAndUnsubscribe(t *testing.T) {
	var n Notifier
	var got []string

	unsubA := n.Subscribe(func(e Event) { got = append(got, "a:"+string(e.Kind)) })
	n.Subscribe(func(e Event) { got = append(got, "b:"+string(e.Kind)) })

	n.Emit(Event{Kind: SignedIn})
	unsubA()
	n.Emit(Event{Kind: SignedOut})

	assert.Equal(t, []string{"a:SIGNED_IN", "b:SIGNED_IN", "b:SIGNED_OUT"}, got)
}

func TestNotifierReentrant(t *testing.T) {
	var n Notifier
	calls := 0
	n.Subscribe(func(e Event) {
		calls++
		if e.Kind == SignedIn {
			n.Emit(Event{Kind: SignedOut})
		}
	})

	n.Emit(Event{Kind: SignedIn})
	assert.Equal(t, 2, calls)
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	var nilSession *Session

	assert.True(t, nilSession.Expired(now))
	assert.True(t, (&Session{ExpiresAt: now}).Expired(now))
	assert.False(t, (&Session{ExpiresAt: now.Add(time.Minute)}).Expired(now))
}
