// Package security owns the Credentials entity exclusively (spec §3
// "Ownership"): no other subsystem may decrypt or cache key material. It
// returns only short-lived borrowed views and enforces the withdrawal-
// capability gate at storage time (spec §7 PERMISSION_ERROR, invariant 7,
// scenario S5).
package security

import (
	"context"
	"crypto/rand"
	"sync"

	"github.com/sawpanic/goldrouter/internal/audit"
	venueerr "github.com/sawpanic/goldrouter/internal/venue/errors"
)

// withdrawPermission is the permission fact that disqualifies a credential
// at storage time. DESIGN.md notes the richer-inspection Open
// Question from spec §9 is deferred; this checks the permission-facts
// list for exactly this marker, mirroring the depth of the reference
// exchange adapter's own account-info check.
const withdrawPermission = "withdraw"

// requiredNoWithdrawFact must be present for a credential to be accepted at
// all (spec §3 Credentials: "permission facts (must include 'no-withdraw')").
const requiredNoWithdrawFact = "no-withdraw"

type storedCredential struct {
	venueID     string
	keyID       string
	ciphertext  []byte
	permissions []string
}

// Manager is the process-wide Security Manager. It is owned by the
// composition root; no global singleton (spec §9).
type Manager struct {
	mu        sync.RWMutex
	masterKey []byte
	store     map[string]storedCredential
	sink      audit.Sink
}

// New creates a Manager with a freshly generated 32-byte master key. A
// fixed key can be supplied via NewWithKey for tests or when the key must
// come from an external secret store.
func New(sink audit.Sink) (*Manager, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return NewWithKey(key, sink), nil
}

func NewWithKey(masterKey []byte, sink audit.Sink) *Manager {
	return &Manager{masterKey: masterKey, store: make(map[string]storedCredential), sink: sink}
}

// StoreCredentials installs credentials for a venue, rejecting any that
// carry a withdrawal capability (spec §7 PERMISSION_ERROR, invariant 7).
// On rejection no state is written (invariant 7: "never writes state").
func (m *Manager) StoreCredentials(ctx context.Context, venueID, keyID string, secret []byte, permissions []string) error {
	hasNoWithdrawFact := false
	for _, p := range permissions {
		if p == withdrawPermission {
			m.emitStored(venueID, permissions, false, "withdrawal capability present")
			return venueerr.New(venueerr.PermissionError, "credentials carry withdrawal capability")
		}
		if p == requiredNoWithdrawFact {
			hasNoWithdrawFact = true
		}
	}
	if !hasNoWithdrawFact {
		m.emitStored(venueID, permissions, false, "missing required no-withdraw permission fact")
		return venueerr.New(venueerr.PermissionError, "credentials missing required no-withdraw permission fact")
	}

	ciphertext, err := encrypt(m.masterKey, []byte(venueID), secret)
	if err != nil {
		return venueerr.Wrap(venueerr.InternalError, "failed to seal credentials", err)
	}

	m.mu.Lock()
	m.store[venueID] = storedCredential{
		venueID:     venueID,
		keyID:       keyID,
		ciphertext:  ciphertext,
		permissions: permissions,
	}
	m.mu.Unlock()

	m.emitStored(venueID, permissions, true, "")
	return nil
}

// RetrieveCredentials returns a short-lived plaintext view. Callers must
// not cache or log the returned Secret; it is scoped to the current call.
func (m *Manager) RetrieveCredentials(ctx context.Context, venueID string) (venueID_ string, keyID string, secret []byte, permissions []string, err error) {
	m.mu.RLock()
	cred, ok := m.store[venueID]
	m.mu.RUnlock()
	if !ok {
		m.emit(audit.KindCredRetrieved, audit.CredStoredDetails{VenueID: venueID, Success: false, Reason: "not found"}, venueID)
		return "", "", nil, nil, venueerr.New(venueerr.NotFound, "no credentials stored for venue")
	}

	plaintext, decErr := decrypt(m.masterKey, []byte(venueID), cred.ciphertext)
	if decErr != nil {
		return "", "", nil, nil, venueerr.Wrap(venueerr.InternalError, "failed to unseal credentials", decErr)
	}

	m.emit(audit.KindCredRetrieved, audit.CredStoredDetails{VenueID: venueID, Success: true}, venueID)
	return cred.venueID, cred.keyID, plaintext, cred.permissions, nil
}

// RotateCredentials replaces stored credentials in place, subject to the
// same permission gate as StoreCredentials.
func (m *Manager) RotateCredentials(ctx context.Context, venueID, keyID string, secret []byte, permissions []string) error {
	if err := m.StoreCredentials(ctx, venueID, keyID, secret, permissions); err != nil {
		return err
	}
	m.emit(audit.KindCredRotated, audit.CredStoredDetails{VenueID: venueID, Success: true}, venueID)
	return nil
}

// Disconnect wipes any cached state for a venue (spec §3 Credentials
// lifecycle: "wiped on disconnect").
func (m *Manager) Disconnect(venueID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, venueID)
}

func (m *Manager) emitStored(venueID string, permissions []string, success bool, reason string) {
	m.emit(audit.KindCredStored, audit.CredStoredDetails{
		VenueID:     venueID,
		Success:     success,
		Permissions: permissions,
		Reason:      reason,
	}, venueID)
}

func (m *Manager) emit(kind audit.Kind, details audit.Details, venueID string) {
	if m.sink == nil {
		return
	}
	_, _ = m.sink.Append(kind, details, venueID, venueID)
}
