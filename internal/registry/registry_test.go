package registry

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	id      string
	sendErr error

	mu       sync.Mutex
	payloads []any
}

func (f *fakeSession) ID() string { return f.id }

func (f *fakeSession) Send(payload any) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	f.mu.Unlock()
	return nil
}

func (f *fakeSession) received() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]any(nil), f.payloads...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRegisterAndLookup(t *testing.T) {
	r := New(testLogger())
	s := &fakeSession{id: "s1"}

	prev := r.Register("field1", s)
	assert.Nil(t, prev)
	assert.Equal(t, s, r.Lookup("field1"))
	assert.Nil(t, r.Lookup("field2"))
}

func TestRegisterReplacesPriorSession(t *testing.T) {
	r := New(testLogger())
	old := &fakeSession{id: "old"}
	fresh := &fakeSession{id: "fresh"}

	r.Register("field1", old)
	prev := r.Register("field1", fresh)

	require.Equal(t, old, prev, "replaced session must be handed back")
	assert.Equal(t, fresh, r.Lookup("field1"))

	// A send after replacement reaches only the new session.
	assert.True(t, r.Send("field1", "payload"))
	assert.Empty(t, old.received())
	assert.Len(t, fresh.received(), 1)
}

func TestUnregisterRequiresIdentityMatch(t *testing.T) {
	r := New(testLogger())
	stale := &fakeSession{id: "stale"}
	live := &fakeSession{id: "live"}

	r.Register("field1", stale)
	r.Register("field1", live)

	// The stale session closes late; its unregister must not evict the
	// live replacement.
	r.Unregister("field1", stale)
	assert.Equal(t, live, r.Lookup("field1"))

	r.Unregister("field1", live)
	assert.Nil(t, r.Lookup("field1"))
}

func TestSendIsBestEffort(t *testing.T) {
	r := New(testLogger())

	assert.False(t, r.Send("nowhere", "payload"), "no session registered")

	broken := &fakeSession{id: "broken", sendErr: errors.New("outbox full")}
	r.Register("field1", broken)
	assert.False(t, r.Send("field1", "payload"), "session rejecting the payload is a drop, not a failure")

	ok := &fakeSession{id: "ok"}
	r.Register("field2", ok)
	assert.True(t, r.Send("field2", "payload"))
}

func TestAreasAreIndependent(t *testing.T) {
	r := New(testLogger())
	s1 := &fakeSession{id: "s1"}
	s2 := &fakeSession{id: "s2"}

	r.Register("field1", s1)
	r.Register("field2", s2)

	r.Unregister("field1", s1)
	assert.Nil(t, r.Lookup("field1"))
	assert.Equal(t, s2, r.Lookup("field2"))
}
