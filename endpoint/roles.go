// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package endpoint

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateEndpoint is returned when a second server (or second
// client) endpoint is constructed while the first is still open.
var ErrDuplicateEndpoint = errors.New("endpoint: duplicate endpoint in this process")

type role string

const (
	roleServer role = "server"
	roleClient role = "client"
)

// A process hosts at most one live endpoint per role. The probe and
// the controlling side may share a process (in-process mode), so the
// two roles are tracked separately.
var liveRoles struct {
	sync.Mutex
	claimed map[role]bool
}

func claimRole(r role) error {
	liveRoles.Lock()
	defer liveRoles.Unlock()
	if liveRoles.claimed == nil {
		liveRoles.claimed = make(map[role]bool)
	}
	if liveRoles.claimed[r] {
		return fmt.Errorf("%w: a %s endpoint is already open", ErrDuplicateEndpoint, r)
	}
	liveRoles.claimed[r] = true
	return nil
}

func releaseRole(r role) {
	liveRoles.Lock()
	defer liveRoles.Unlock()
	delete(liveRoles.claimed, r)
}
