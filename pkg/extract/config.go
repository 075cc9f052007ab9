package extract

import (
	"github.com/agentstation/tagsync/pkg/constants"
	"github.com/agentstation/tagsync/pkg/equipment"
)

// Config selects which drawing objects count as equipment and which
// attribute names carry tags and merge fields.
type Config struct {
	// EquipmentPrefixes are block-name patterns; a block matches when its
	// normalized name contains one of them. Empty keeps every block.
	EquipmentPrefixes []string `mapstructure:"prefixes" yaml:"prefixes"`

	// TagAttributes are the attribute-name synonyms for a tag number.
	TagAttributes []string `mapstructure:"tag_attributes" yaml:"tag_attributes"`

	// FieldAttributes maps a merge field to its attribute-name synonyms.
	// The first synonym is used when writing an attribute that is absent.
	FieldAttributes map[string][]string `mapstructure:"field_attributes" yaml:"field_attributes"`

	// TypeAttributes are the attribute names carrying an explicit
	// equipment type.
	TypeAttributes []string `mapstructure:"type_attributes" yaml:"type_attributes"`

	// MarkerName is the marker name tagsync writes and recognizes.
	MarkerName string `mapstructure:"marker_name" yaml:"marker_name"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		EquipmentPrefixes: append([]string(nil), constants.DefaultEquipmentPrefixes...),
		TagAttributes:     append([]string(nil), constants.DefaultTagAttributes...),
		FieldAttributes: map[string][]string{
			equipment.FieldDescription:  {"DESCRIPTION", "DESC"},
			equipment.FieldArea:         {"AREA", "UNIT"},
			equipment.FieldManufacturer: {"MANUFACTURER", "MFR", "MAKE"},
			equipment.FieldModel:        {"MODEL", "MODEL_NO"},
		},
		TypeAttributes: []string{"TYPE", "EQUIP_TYPE"},
		MarkerName:     constants.MarkerName,
	}
}

// withDefaults fills empty settings from DefaultConfig. An explicitly empty
// prefix list is kept so that every block can be selected.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.EquipmentPrefixes == nil {
		c.EquipmentPrefixes = d.EquipmentPrefixes
	}
	if len(c.TagAttributes) == 0 {
		c.TagAttributes = d.TagAttributes
	}
	if len(c.FieldAttributes) == 0 {
		c.FieldAttributes = d.FieldAttributes
	}
	if len(c.TypeAttributes) == 0 {
		c.TypeAttributes = d.TypeAttributes
	}
	if c.MarkerName == "" {
		c.MarkerName = d.MarkerName
	}
	return c
}

// FieldNames returns the attribute synonyms for a merge field.
func (c Config) FieldNames(field string) []string {
	return c.FieldAttributes[field]
}
