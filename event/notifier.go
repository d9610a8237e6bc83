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
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/blinklabs-io/endorse/database/models"
)

const defaultSendTimeout = 10 * time.Second

// Notification asks a participant to look at a document
type Notification struct {
	Recipient  string
	DocumentID string
	Title      string
	Reason     string
}

// Sender delivers notifications. Implementations carry the transport, such
// as e-mail or webhooks.
type Sender interface {
	Send(context.Context, Notification) error
}

// LogSender writes notifications to the log
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) Send(_ context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info(
		"notify participant",
		"component", "event",
		"recipient", n.Recipient,
		"document", n.DocumentID,
		"title", n.Title,
		"reason", n.Reason,
	)
	return nil
}

// Notifier turns document events into notifications for the signer who is
// expected to act next, and for the owner once the workflow has ended
type Notifier struct {
	bus         *EventBus
	sender      Sender
	logger      *slog.Logger
	subIds      map[EventType]EventSubscriberId
	sendTimeout time.Duration
	mu          sync.Mutex
}

type NotifierOption func(*Notifier)

func WithNotifierLogger(logger *slog.Logger) NotifierOption {
	return func(n *Notifier) {
		n.logger = logger
	}
}

func WithSender(sender Sender) NotifierOption {
	return func(n *Notifier) {
		n.sender = sender
	}
}

func WithSendTimeout(timeout time.Duration) NotifierOption {
	return func(n *Notifier) {
		n.sendTimeout = timeout
	}
}

func NewNotifier(bus *EventBus, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		bus:         bus,
		subIds:      make(map[EventType]EventSubscriberId),
		sendTimeout: defaultSendTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if n.sender == nil {
		n.sender = LogSender{Logger: n.logger}
	}
	return n
}

// Start subscribes the notifier to document events
func (n *Notifier) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.subIds) > 0 {
		return nil
	}
	for _, evtType := range []EventType{
		DocumentActivatedEventType,
		DocumentSignedEventType,
		DocumentRejectedEventType,
		DocumentCancelledEventType,
		DocumentReminderEventType,
	} {
		subId := n.bus.SubscribeFunc(evtType, n.handleEvent)
		if subId == 0 {
			n.stopLocked()
			return fmt.Errorf("subscribe to %s: event bus is stopped", evtType)
		}
		n.subIds[evtType] = subId
	}
	return nil
}

func (n *Notifier) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
}

func (n *Notifier) stopLocked() {
	for evtType, subId := range n.subIds {
		n.bus.Unsubscribe(evtType, subId)
		delete(n.subIds, evtType)
	}
}

func (n *Notifier) handleEvent(evt Event) {
	docEvt, ok := evt.Data.(DocumentEvent)
	if !ok {
		return
	}
	notification := Notification{
		DocumentID: docEvt.DocumentID,
		Title:      docEvt.Title,
	}
	switch {
	case docEvt.NextSigner != "":
		notification.Recipient = docEvt.NextSigner
		notification.Reason = "awaiting your signature"
		if evt.Type == DocumentReminderEventType {
			notification.Reason = "reminder: awaiting your signature"
		}
	case docEvt.Status == models.DocumentStatusSigned:
		notification.Recipient = docEvt.Owner
		notification.Reason = "all signatures collected"
	case docEvt.Status == models.DocumentStatusRejected,
		docEvt.Status == models.DocumentStatusCancelled:
		if docEvt.Actor == docEvt.Owner {
			return
		}
		notification.Recipient = docEvt.Owner
		notification.Reason = fmt.Sprintf("workflow stopped by %s", docEvt.Actor)
	default:
		return
	}
	if notification.Recipient == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), n.sendTimeout)
	defer cancel()
	if err := n.sender.Send(ctx, notification); err != nil {
		n.logger.Error(
			"failed to send notification",
			"component", "event",
			"recipient", notification.Recipient,
			"document", notification.DocumentID,
			"error", err,
		)
	}
}
