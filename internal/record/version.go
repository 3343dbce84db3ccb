package record

// Version is the schema version a payload declares in its _version field.
type Version int

// Known payload versions.
const (
	// VersionActinium is the first payload schema.
	VersionActinium Version = 1

	// MinVersion is assumed when a payload declares no version.
	MinVersion = VersionActinium

	// CurrentVersion is the newest version this build understands.
	CurrentVersion = VersionActinium
)

// DatabaseVersion is the schema version stored in PRAGMA user_version.
const DatabaseVersion = 1
