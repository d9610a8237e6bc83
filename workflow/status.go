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

package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/blinklabs-io/endorse/database/models"
)

// Document status transitions driven by ledger changes
const (
	statusEventActivate = "activate"
	statusEventAdvance  = "advance"
	statusEventComplete = "complete"
	statusEventReject   = "reject"
	statusEventCancel   = "cancel"
)

var statusEvents = fsm.Events{
	{
		Name: statusEventActivate,
		Src:  []string{string(models.DocumentStatusDraft)},
		Dst:  string(models.DocumentStatusAwaitingSignature),
	},
	{
		Name: statusEventAdvance,
		Src: []string{
			string(models.DocumentStatusAwaitingSignature),
			string(models.DocumentStatusInSignature),
		},
		Dst: string(models.DocumentStatusInSignature),
	},
	{
		Name: statusEventComplete,
		Src: []string{
			string(models.DocumentStatusAwaitingSignature),
			string(models.DocumentStatusInSignature),
		},
		Dst: string(models.DocumentStatusSigned),
	},
	{
		Name: statusEventReject,
		Src: []string{
			string(models.DocumentStatusAwaitingSignature),
			string(models.DocumentStatusInSignature),
		},
		Dst: string(models.DocumentStatusRejected),
	},
	{
		// Cancellation shares the rejected status; the audit action tells
		// them apart
		Name: statusEventCancel,
		Src: []string{
			string(models.DocumentStatusDraft),
			string(models.DocumentStatusAwaitingSignature),
			string(models.DocumentStatusInSignature),
		},
		Dst: string(models.DocumentStatusRejected),
	},
}

// nextStatus applies a status event to the current document status
func nextStatus(
	current models.DocumentStatus,
	event string,
) (models.DocumentStatus, error) {
	machine := fsm.NewFSM(string(current), statusEvents, nil)
	if err := machine.Event(context.Background(), event); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			return current, fmt.Errorf(
				"%w: cannot %s a document that is %s",
				ErrDocumentNotSignable,
				event,
				current,
			)
		}
	}
	return models.DocumentStatus(machine.Current()), nil
}
