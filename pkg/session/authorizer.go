package session

import (
	"github.com/tinyland-inc/mucclaw/pkg/affiliation"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

// RosterSource yields the current room roster.
type RosterSource interface {
	Snapshot() affiliation.Set
}

// OccupantSource resolves room occupant JIDs to real bare JIDs.
type OccupantSource interface {
	InRoom(j string) bool
	RealJID(occupant string) (string, bool)
}

// Authorizer decides which senders the bot answers.
//
// An allow-list entry matches a sender whose full JID or bare JID equals it,
// so "alice@example.org" admits every resource of Alice while
// "room@muc.example.org/alice" admits one room occupant. Room occupants are
// also judged by the real JID the room disclosed for them, so the
// "alice@example.org" entry admits Alice in the room as well. With
// affiliates enabled the roster admits senders by bare JID, or by real JID
// for occupants. An empty allow-list without affiliates admits nobody.
type Authorizer struct {
	allow      map[string]struct{}
	affiliates bool
	roster     RosterSource
	occupants  OccupantSource
}

// NewAuthorizer builds the policy. roster and occupants may be nil.
func NewAuthorizer(allowList []string, allowAffiliates bool, roster RosterSource, occupants OccupantSource) *Authorizer {
	allow := make(map[string]struct{}, len(allowList))
	for _, entry := range allowList {
		if n := stanza.Normalize(entry); n != "" {
			allow[n] = struct{}{}
		}
	}
	return &Authorizer{allow: allow, affiliates: allowAffiliates, roster: roster, occupants: occupants}
}

func (a *Authorizer) IsAllowed(sender string) bool {
	full := stanza.Normalize(sender)
	if full == "" {
		return false
	}
	if a.listed(full) {
		return true
	}
	identity := stanza.Bare(full)
	if a.listed(identity) {
		return true
	}
	if a.occupants != nil && a.occupants.InRoom(full) {
		realJID, ok := a.occupants.RealJID(full)
		if !ok {
			return false
		}
		if a.listed(realJID) {
			return true
		}
		identity = realJID
	}
	return a.affiliated(identity)
}

func (a *Authorizer) listed(j string) bool {
	_, ok := a.allow[j]
	return ok
}

func (a *Authorizer) affiliated(bare string) bool {
	if bare == "" || !a.affiliates || a.roster == nil {
		return false
	}
	return a.roster.Snapshot().Contains(bare)
}
