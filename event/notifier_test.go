// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blinklabs-io/endorse/database/models"
	"github.com/blinklabs-io/endorse/event"
)

type recordingSender struct {
	ch  chan event.Notification
	err error
}

func newRecordingSender() *recordingSender {
	return &recordingSender{ch: make(chan event.Notification, 10)}
}

func (r *recordingSender) Send(_ context.Context, n event.Notification) error {
	r.ch <- n
	return r.err
}

func (r *recordingSender) next(t *testing.T) event.Notification {
	t.Helper()
	select {
	case n := <-r.ch:
		return n
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for notification")
	}
	return event.Notification{}
}

func TestNotifier(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	sender := newRecordingSender()
	n := event.NewNotifier(eb, event.WithSender(sender))
	require.NoError(t, n.Start())
	require.NoError(t, n.Start())
	defer n.Stop()

	publish := func(evtType event.EventType, data event.DocumentEvent) {
		eb.Publish(evtType, event.NewEvent(evtType, data))
	}

	publish(event.DocumentSignedEventType, event.DocumentEvent{
		DocumentID: "doc-1",
		Title:      "Lease",
		Owner:      "owner",
		Actor:      "alice",
		Status:     models.DocumentStatusInSignature,
		NextSigner: "bob",
	})
	got := sender.next(t)
	assert.Equal(t, "bob", got.Recipient)
	assert.Equal(t, "doc-1", got.DocumentID)

	publish(event.DocumentSignedEventType, event.DocumentEvent{
		DocumentID: "doc-1",
		Owner:      "owner",
		Actor:      "bob",
		Status:     models.DocumentStatusSigned,
	})
	got = sender.next(t)
	assert.Equal(t, "owner", got.Recipient)
	assert.Equal(t, "all signatures collected", got.Reason)

	publish(event.DocumentReminderEventType, event.DocumentEvent{
		DocumentID: "doc-2",
		Owner:      "owner",
		Actor:      "owner",
		Status:     models.DocumentStatusAwaitingSignature,
		NextSigner: "carol",
	})
	got = sender.next(t)
	assert.Equal(t, "carol", got.Recipient)
	assert.Contains(t, got.Reason, "reminder")

	publish(event.DocumentRejectedEventType, event.DocumentEvent{
		DocumentID: "doc-3",
		Owner:      "owner",
		Actor:      "dave",
		Status:     models.DocumentStatusRejected,
	})
	got = sender.next(t)
	assert.Equal(t, "owner", got.Recipient)
	assert.Contains(t, got.Reason, "dave")
}

func TestNotifierSkipsOwnCancel(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	sender := newRecordingSender()
	n := event.NewNotifier(eb, event.WithSender(sender))
	require.NoError(t, n.Start())
	defer n.Stop()

	eb.Publish(event.DocumentCancelledEventType, event.NewEvent(
		event.DocumentCancelledEventType,
		event.DocumentEvent{DocumentID: "doc", Owner: "owner", Actor: "owner", Status: models.DocumentStatusRejected},
	))
	// Unrelated payloads are ignored
	eb.Publish(event.DocumentSignedEventType, event.NewEvent(event.DocumentSignedEventType, "junk"))
	select {
	case n := <-sender.ch:
		t.Fatalf("unexpected notification %+v", n)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotifierSendError(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	sender := newRecordingSender()
	sender.err = errors.New("smtp down")
	n := event.NewNotifier(eb, event.WithSender(sender), event.WithSendTimeout(time.Second))
	require.NoError(t, n.Start())
	eb.Publish(event.DocumentActivatedEventType, event.NewEvent(
		event.DocumentActivatedEventType,
		event.DocumentEvent{DocumentID: "doc", NextSigner: "alice"},
	))
	assert.Equal(t, "alice", sender.next(t).Recipient)
	n.Stop()
}

func TestNotifierStartOnStoppedBus(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	eb.Stop()
	n := event.NewNotifier(eb)
	require.Error(t, n.Start())
}
