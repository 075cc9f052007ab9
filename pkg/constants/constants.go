// Package constants provides shared constants used throughout the tagsync
// codebase: timeouts, file permissions, and the defaults applied when a
// project or configuration file leaves a value unset.
package constants

import "time"

// Timeout constants
const (
	// CommandTimeout is the default timeout for CLI commands
	CommandTimeout = 10 * time.Minute

	// StoreConnectTimeout bounds opening a system-of-record connection
	StoreConnectTimeout = 30 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Classification constants
const (
	// DefaultEquipmentType is returned when no rule or mapping matches
	DefaultEquipmentType = "Equipment"

	// ConfidenceSaturation is the usage count at which a mapping's usage
	// influence reaches its maximum
	ConfidenceSaturation = 10.0

	// UnconfirmedWeight scales the confidence of mappings never confirmed
	// by an operator
	UnconfirmedWeight = 0.8

	// DefaultAutoAcceptThreshold is the confidence at or above which the
	// tag command accepts a classification without asking
	DefaultAutoAcceptThreshold = 0.8
)

// Tagging constants
const (
	// SequenceWidth is the zero-padded width of generated tag sequences
	SequenceWidth = 3

	// MarkerName identifies markers written by tagsync on drawing objects
	MarkerName = "TAGSYNC"
)

// Default file names
const (
	// ConfigFileName is the config file searched in $HOME and the working directory
	ConfigFileName = ".tagsync"

	// MappingsFileName is the default learned-mapping table file
	MappingsFileName = "block-mappings.yaml"

	// DatabaseFileName is the default SQLite system-of-record file
	DatabaseFileName = "tagsync.db"
)

// DefaultEquipmentPrefixes are the block-name patterns treated as equipment
// when the configuration does not list any.
var DefaultEquipmentPrefixes = []string{
	"PMP", "PUMP", "VLV", "VALVE", "TNK", "TANK", "VSL", "VESSEL",
	"MTR", "MOTOR", "HX", "EXCH", "CMP", "COMP", "FLT", "FILTER", "INST", "EQP",
}

// DefaultTagAttributes are the attribute names read as a tag number.
var DefaultTagAttributes = []string{"TAG", "TAG_NO", "TAGNO", "TAG_NUMBER", "EQUIP_TAG"}
