package persistence

// Status reports the health of remote persistence as seen by this client.
type Status string

const (
	StatusSynced  Status = "synced"
	StatusSyncing Status = "syncing"
	StatusOffline Status = "offline"
	StatusError   Status = "error"
)

// Origin says where an adopted board came from.
type Origin string

const (
	OriginRemote Origin = "remote"
	OriginCache  Origin = "cache"
	OriginSeed   Origin = "seed"
)
