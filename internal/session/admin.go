package session

import (
	"context"
	"encoding/json"
	"strings"

	"marketsync/internal/storage"
)

// AdminPartyPrefix marks administrative parties by naming convention. The
// check is a UI affordance only: the engine must authorize privileged calls
// itself, so a spoofed party id buys nothing server-side.
const AdminPartyPrefix = "admin-"

// IsAdmin reports whether the state belongs to an authenticated
// administrative party.
func IsAdmin(st State) bool {
	return st.Authenticated && strings.HasPrefix(st.PartyID, AdminPartyPrefix)
}

// IsAdminFromStorage answers the same question straight from the durable
// record, for call sites that run before the store exists (route guards).
// Absent or malformed records read as not-admin.
func IsAdminFromStorage(ctx context.Context, store storage.Store) bool {
	if store == nil {
		return false
	}
	raw, ok, err := store.Get(ctx, RecordKey)
	if err != nil || !ok {
		return false
	}
	var rec persistedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return false
	}
	return rec.State.IsAuthenticated && strings.HasPrefix(rec.State.PartyID, AdminPartyPrefix)
}
