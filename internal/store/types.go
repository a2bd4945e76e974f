package store

// Status values for Scan.Status (spec §3 "Scan").
const (
	ScanRunning   = "RUNNING"
	ScanSuccess   = "SUCCESS"
	ScanFailed    = "FAILED"
	ScanCancelled = "CANCELLED"
)

// IdentityType distinguishes how a FileState row is keyed (spec §3).
const (
	IdentityFileKey = "FILE_KEY"
	IdentityPath    = "PATH"
)

// HashStatus values for FileState.HashStatus (spec §4.4).
const (
	HashOK            = "OK"
	HashNone          = "NONE"
	HashSkippedSize   = "SKIPPED_SIZE"
	HashDisabled      = "DISABLED"
	HashFailed        = "FAILED"
)

// Change reasons recorded in FileChange.Reason (spec §3 "FileChange").
const (
	ReasonNew      = "NEW"
	ReasonModified = "MODIFIED"
	ReasonMoved    = "MOVED"
	ReasonDeleted  = "DELETED"
)

// FileHistory status events (spec §3 "FileHistory").
const (
	HistoryNew      = "NEW"
	HistoryModified = "MODIFIED"
)

// ScanIssue stages (spec §3 "ScanIssue").
const (
	StageWalk   = "WALK"
	StageHash   = "HASH"
	StageDB     = "DB"
	StageIgnore = "IGNORE"
)

// BackupHistoryRow statuses and types (spec §3 "BackupHistoryRow").
const (
	BackupStatusOK      = "OK"
	BackupStatusError   = "ERROR"
	BackupStatusRunning = "RUNNING"

	BackupTypeScan    = "scan"
	BackupTypeRestore = "restore"
)

// Agent state keys (spec §3 "AgentState").
const (
	StateKeyDeviceIdentity = "agent.device_identity"
	StateKeyPairingState   = "agent.pairing_state"
	StateKeyLinkState      = "agent.link_state"
)

// Scan is a single traversal of a root directory (spec §3).
type Scan struct {
	ID           int64
	RootPath     string
	StartedAt    int64
	FinishedAt   *int64
	Status       string
	ErrorMessage *string
}

// ContentRow represents deduplicated content, keyed by (Algo, HashHex)
// (spec §3 "ContentRow").
type ContentRow struct {
	Algo      string
	HashHex   string
	SizeBytes int64
}

// FileState is the live snapshot row for one (rootPath, identityType,
// identityValue) (spec §3 "FileState").
type FileState struct {
	ID            int64
	RootPath      string
	IdentityType  string
	IdentityValue string
	SizeBytes     int64
	CreatedAt     int64
	ModifiedAt    int64
	PathID        int64
	FullPath      string // joined from path table by most accessors
	FileKey       string
	ContentAlgo   string
	ContentHash   string
	HashStatus    string
	LastScanID    int64
}

// FileChange is one append-only history row (spec §3 "FileChange").
type FileChange struct {
	ID            int64
	ScanID        int64
	RootPath      string
	IdentityType  string
	IdentityValue string
	SizeBytes     *int64
	ModifiedAt    *int64
	ContentAlgo   *string
	ContentHash   *string
	Reason        string
	CreatedAt     int64
}

// FileHistory is one per-path timeline entry (spec §3 "FileHistory").
type FileHistory struct {
	ID          int64
	ScanID      int64
	PathRel     string
	HashHex     string
	SizeBytes   int64
	StatusEvent string
	CreatedAt   int64
}

// ScanIssue is a best-effort diagnostic row (spec §3 "ScanIssue").
type ScanIssue struct {
	ID            int64
	ScanID        int64
	Stage         string
	Path          string
	IdentityType  string
	IdentityValue string
	ErrorType     string
	Message       string
	Rule          string
	CreatedAt     int64
}

// ScanSummary holds all aggregate counters for one scan (spec §3
// "ScanSummary").
type ScanSummary struct {
	ScanID          int64
	FilesTotal      int64
	BytesScanned    int64
	BytesHashed     int64
	NewCount        int64
	ModifiedCount   int64
	MovedCount      int64
	UnchangedCount  int64
	DeletedCount    int64
	WalkErrors      int64
	HashErrors      int64
	SkippedSize     int64
	SkippedDisabled int64
	DBRetries       int64
	IssuesDropped   int64
	DBLookupHits    int64
	DBLookupMiss    int64
}

// BackupHistoryRow is the external-facing list row (spec §3
// "BackupHistoryRow").
type BackupHistoryRow struct {
	ID              int64
	StartedAt       int64
	FinishedAt      *int64
	Status          string
	BackupType      string
	RootPath        string
	DestPath        string
	FilesProcessed  int64
	Errors          int64
	ScanID          *int64
	Message         *string
}

// ManifestEntry mirrors one line of a scan's blob-store manifest (spec
// §4.7), also usable as the payload for file_history snapshotting.
type ManifestEntry struct {
	PathRel    string
	Algo       string
	HashHex    string
	SizeBytes  int64
	ModifiedAt int64
}
