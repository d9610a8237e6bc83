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

import "sync"

// documentLocks serializes mutating operations per document. Entries are
// reference counted and dropped once unused.
type documentLocks struct {
	locks map[string]*documentLock
	mu    sync.Mutex
}

type documentLock struct {
	mu   sync.Mutex
	refs int
}

func newDocumentLocks() *documentLocks {
	return &documentLocks{
		locks: make(map[string]*documentLock),
	}
}

// lock blocks until the document is free and returns the unlock function
func (l *documentLocks) lock(documentID string) func() {
	l.mu.Lock()
	dl, ok := l.locks[documentID]
	if !ok {
		dl = &documentLock{}
		l.locks[documentID] = dl
	}
	dl.refs++
	l.mu.Unlock()

	dl.mu.Lock()
	return func() {
		dl.mu.Unlock()
		l.mu.Lock()
		dl.refs--
		if dl.refs == 0 {
			delete(l.locks, documentID)
		}
		l.mu.Unlock()
	}
}

func (l *documentLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
