// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

/*
Package normalize holds the rules every adapter family shares when turning a
platform payload into a models.NormalizedEvent: which role a sender gets from
their badges or author flags, and how a native monetary amount becomes an
integer settlement-currency (KRW) amount.

Both rule sets are plain data evaluated by pure functions so Twitch and
YouTube cannot drift apart.
*/
package normalize

import (
	"strings"

	"github.com/tomtom215/streamrelay/internal/models"
)

// Canonical flag names. Adapters translate platform-specific badge set ids
// and author booleans into these before calling MapRoleFromFlags.
const (
	FlagBroadcaster = "broadcaster"
	FlagOwner       = "owner"
	FlagModerator   = "moderator"
	FlagVIP         = "vip"
	FlagSubscriber  = "subscriber"
	FlagFounder     = "founder"
	FlagMember      = "member"
)

// RoleRule maps any of its flags to Role.
type RoleRule struct {
	Flags []string
	Role  models.Role
}

// RolePriority is evaluated top to bottom; the first rule with a matching
// flag wins. A sender matching nothing is regular.
var RolePriority = []RoleRule{
	{Flags: []string{FlagBroadcaster, FlagOwner}, Role: models.RoleStreamer},
	{Flags: []string{FlagModerator}, Role: models.RoleManager},
	{Flags: []string{FlagVIP}, Role: models.RoleVIP},
	{Flags: []string{FlagSubscriber, FlagFounder, FlagMember}, Role: models.RoleSubscriber},
}

// MapRoleFromFlags returns the highest-priority role present in flags.
// Matching is case-insensitive and ignores the order of flags.
func MapRoleFromFlags(flags []string) models.Role {
	return MapRoleWith(RolePriority, flags)
}

// MapRoleWith evaluates a custom priority table.
func MapRoleWith(table []RoleRule, flags []string) models.Role {
	if len(flags) == 0 {
		return models.RoleRegular
	}
	present := make(map[string]struct{}, len(flags))
	for _, f := range flags {
		present[strings.ToLower(strings.TrimSpace(f))] = struct{}{}
	}
	for _, rule := range table {
		for _, f := range rule.Flags {
			if _, ok := present[f]; ok {
				return rule.Role
			}
		}
	}
	return models.RoleRegular
}
