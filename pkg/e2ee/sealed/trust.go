package sealed

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tinyland-inc/mucclaw/pkg/logger"
	"github.com/tinyland-inc/mucclaw/pkg/stanza"
	"github.com/tinyland-inc/mucclaw/pkg/storage"
)

const devicesPrefix = "sealed/devices/"

type TrustLevel string

const (
	Undecided      TrustLevel = "undecided"
	BlindlyTrusted TrustLevel = "blind"
	Trusted        TrustLevel = "trusted"
	Distrusted     TrustLevel = "distrusted"
)

// ParseTrustLevel accepts the stored names plus "blindly_trusted".
func ParseTrustLevel(s string) (TrustLevel, error) {
	switch TrustLevel(strings.ToLower(strings.TrimSpace(s))) {
	case Undecided:
		return Undecided, nil
	case BlindlyTrusted, "blindly_trusted":
		return BlindlyTrusted, nil
	case Trusted:
		return Trusted, nil
	case Distrusted:
		return Distrusted, nil
	}
	return "", fmt.Errorf("unknown trust level %q", s)
}

// Usable reports whether messages may be encrypted for a device at this level.
func (l TrustLevel) Usable() bool {
	return l == Trusted || l == BlindlyTrusted
}

type Device struct {
	Fingerprint string     `json:"fingerprint"`
	PublicKey   string     `json:"public_key"`
	Trust       TrustLevel `json:"trust"`
	FirstSeen   time.Time  `json:"first_seen"`
}

// UndecidedFunc is called when a new device cannot be trusted automatically
// and needs a manual decision.
type UndecidedFunc func(jid string, device Device)

// TrustStore keeps the known devices of every contact and their trust level.
type TrustStore struct {
	store       storage.Store
	blind       bool
	onUndecided UndecidedFunc

	mu sync.Mutex
}

// NewTrustStore persists devices in store. With blind set, new devices are
// trusted blindly until the contact has a manually trusted device.
func NewTrustStore(store storage.Store, blind bool, onUndecided UndecidedFunc) *TrustStore {
	if onUndecided == nil {
		onUndecided = logUndecided
	}
	return &TrustStore{store: store, blind: blind, onUndecided: onUndecided}
}

func logUndecided(jid string, d Device) {
	logger.WarnCF("sealed", "New device needs a manual trust decision", map[string]any{
		"jid":         jid,
		"fingerprint": FormatFingerprint(d.Fingerprint),
		"hint":        fmt.Sprintf("mucclaw trust set %s %s trusted", jid, d.Fingerprint),
	})
}

func devicesKey(jid string) string {
	return devicesPrefix + stanza.Bare(jid)
}

func (t *TrustStore) loadLocked(jid string) ([]Device, error) {
	raw, err := t.store.Load(devicesKey(jid))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading devices of %s: %w", jid, err)
	}
	var devices []Device
	if err := json.Unmarshal(raw, &devices); err != nil {
		return nil, fmt.Errorf("parsing devices of %s: %w", jid, err)
	}
	return devices, nil
}

func (t *TrustStore) saveLocked(jid string, devices []Device) error {
	raw, err := json.Marshal(devices)
	if err != nil {
		return fmt.Errorf("encoding devices of %s: %w", jid, err)
	}
	if err := t.store.Store(devicesKey(jid), raw); err != nil {
		return fmt.Errorf("storing devices of %s: %w", jid, err)
	}
	return nil
}

// Devices lists the known devices of jid.
func (t *TrustStore) Devices(jid string) ([]Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadLocked(jid)
}

// Usable lists the devices of jid that may receive encrypted messages.
func (t *TrustStore) Usable(jid string) ([]Device, error) {
	devices, err := t.Devices(jid)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(devices, func(d Device) bool { return !d.Trust.Usable() }), nil
}

// Contacts lists every bare JID with at least one known device.
func (t *TrustStore) Contacts() ([]string, error) {
	keys, err := t.store.Keys(devicesPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, devicesPrefix))
	}
	return out, nil
}

// Lookup returns the known device of jid with publicKey without learning it.
func (t *TrustStore) Lookup(jid, publicKey string) (Device, bool, error) {
	devices, err := t.Devices(jid)
	if err != nil {
		return Device{}, false, err
	}
	fp := Fingerprint(publicKey)
	if i := slices.IndexFunc(devices, func(d Device) bool { return d.Fingerprint == fp }); i >= 0 {
		return devices[i], true, nil
	}
	return Device{}, false, nil
}

// Observe records that jid uses publicKey and returns the device with its
// trust level. A device seen for the first time gets its level from the
// blind-trust rule.
func (t *TrustStore) Observe(jid, publicKey string) (Device, error) {
	jid = stanza.Bare(jid)
	fp := Fingerprint(publicKey)

	t.mu.Lock()
	devices, err := t.loadLocked(jid)
	if err != nil {
		t.mu.Unlock()
		return Device{}, err
	}
	if i := slices.IndexFunc(devices, func(d Device) bool { return d.Fingerprint == fp }); i >= 0 {
		t.mu.Unlock()
		return devices[i], nil
	}

	d := Device{Fingerprint: fp, PublicKey: publicKey, Trust: Undecided, FirstSeen: time.Now().UTC()}
	manual := slices.ContainsFunc(devices, func(d Device) bool { return d.Trust == Trusted })
	if t.blind && !manual {
		d.Trust = BlindlyTrusted
	}
	devices = append(devices, d)
	err = t.saveLocked(jid, devices)
	t.mu.Unlock()
	if err != nil {
		return Device{}, err
	}

	logger.InfoCF("sealed", "Learned new device", map[string]any{
		"jid":         jid,
		"fingerprint": FormatFingerprint(fp),
		"trust":       string(d.Trust),
	})
	if d.Trust == Undecided {
		t.onUndecided(jid, d)
	}
	return d, nil
}

// SetTrust changes the trust level of one device. fingerprint may be a
// unique prefix.
func (t *TrustStore) SetTrust(jid, fingerprint string, level TrustLevel) (Device, error) {
	jid = stanza.Bare(jid)
	fingerprint = strings.ToLower(strings.ReplaceAll(fingerprint, " ", ""))

	t.mu.Lock()
	defer t.mu.Unlock()
	devices, err := t.loadLocked(jid)
	if err != nil {
		return Device{}, err
	}

	idx := -1
	for i, d := range devices {
		if !strings.HasPrefix(d.Fingerprint, fingerprint) {
			continue
		}
		if idx >= 0 {
			return Device{}, fmt.Errorf("fingerprint prefix %q is ambiguous for %s", fingerprint, jid)
		}
		idx = i
	}
	if idx < 0 || fingerprint == "" {
		return Device{}, fmt.Errorf("no device %q known for %s", fingerprint, jid)
	}

	devices[idx].Trust = level
	if err := t.saveLocked(jid, devices); err != nil {
		return Device{}, err
	}
	return devices[idx], nil
}
