package session

import (
	"sync"

	"github.com/tinyland-inc/mucclaw/pkg/logger"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
)

// Occupants maps the occupant JIDs of one room to the real bare JIDs the
// room disclosed in muc#user presence. Rooms that hide real JIDs leave the
// directory empty.
type Occupants struct {
	room string

	mu   sync.RWMutex
	real map[string]string
}

func NewOccupants(room string) *Occupants {
	return &Occupants{
		room: stanza.Bare(room),
		real: make(map[string]string),
	}
}

// Observe applies one inbound presence. Presence from other entities is
// ignored; unavailable presence forgets the occupant.
func (o *Occupants) Observe(p stanza.Presence) {
	if !o.InRoom(p.From) || stanza.Resource(p.From) == "" {
		return
	}
	occupant := stanza.Normalize(p.From)

	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case p.Type == stanza.PresenceUnavailable, p.Type == stanza.PresenceError:
		delete(o.real, occupant)
	case p.Type != stanza.PresenceAvailable:
		return
	case p.Item == nil || p.Item.JID == "":
		delete(o.real, occupant)
	default:
		bare := stanza.Bare(p.Item.JID)
		if prev, ok := o.real[occupant]; !ok || prev != bare {
			logger.DebugCF("session", "Occupant identified", map[string]any{
				"occupant": occupant,
				"jid":      bare,
			})
		}
		o.real[occupant] = bare
	}
}

// InRoom reports whether j addresses the room or one of its occupants.
func (o *Occupants) InRoom(j string) bool {
	return o.room != "" && stanza.Bare(j) == o.room
}

// RealJID returns the bare JID behind occupant.
func (o *Occupants) RealJID(occupant string) (string, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	bare, ok := o.real[stanza.Normalize(occupant)]
	return bare, ok
}

func (o *Occupants) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.real)
}

// Reset forgets every occupant, as when the bot leaves the room.
func (o *Occupants) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	clear(o.real)
}
