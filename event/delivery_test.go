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

package event

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSubscriber struct {
	closed atomic.Bool
	err    error
}

func (f *failingSubscriber) Deliver(Event) error {
	return f.err
}

func (f *failingSubscriber) Close() {
	f.closed.Store(true)
}

func TestDeliverFailureUnregisters(t *testing.T) {
	eb := NewEventBus(nil, nil)
	defer eb.Stop()
	sub := &failingSubscriber{err: errors.New("deliver failed")}
	subId := eb.RegisterSubscriber("test.fail", sub)
	require.NotZero(t, subId)
	eb.Publish("test.fail", NewEvent("test.fail", "x"))

	eb.mu.RLock()
	_, exists := eb.subscribers["test.fail"][subId]
	eb.mu.RUnlock()
	assert.False(t, exists, "subscriber should be removed after deliver failure")
	assert.True(t, sub.closed.Load())
}

func TestFullSubscriberIsKept(t *testing.T) {
	eb := NewEventBus(nil, nil)
	defer eb.Stop()
	sub := &failingSubscriber{err: ErrSubscriberFull}
	subId := eb.RegisterSubscriber("test.full", sub)
	eb.Publish("test.full", NewEvent("test.full", "x"))

	eb.mu.RLock()
	_, exists := eb.subscribers["test.full"][subId]
	eb.mu.RUnlock()
	assert.True(t, exists)
	assert.False(t, sub.closed.Load())
}

func TestChannelSubscriberDeliverNonBlocking(t *testing.T) {
	const bufferSize = 3
	sub := newChannelSubscriber(bufferSize)
	for i := range bufferSize {
		require.NoError(t, sub.Deliver(NewEvent("test", i)))
	}
	require.ErrorIs(t, sub.Deliver(NewEvent("test", "overflow")), ErrSubscriberFull)
	sub.Close()
	sub.Close()
	// Delivery after close is dropped silently
	require.NoError(t, sub.Deliver(NewEvent("test", "late")))
}

type panickingSubscriber struct{}

func (panickingSubscriber) Deliver(Event) error {
	panic("bad subscriber")
}

func (panickingSubscriber) Close() {}

func TestDeliverRecoversPanic(t *testing.T) {
	eb := NewEventBus(nil, nil)
	defer eb.Stop()
	subId := eb.RegisterSubscriber("test.panic", panickingSubscriber{})
	assert.NotPanics(t, func() {
		eb.Publish("test.panic", NewEvent("test.panic", nil))
	})
	eb.mu.RLock()
	_, exists := eb.subscribers["test.panic"][subId]
	eb.mu.RUnlock()
	assert.False(t, exists)
}
