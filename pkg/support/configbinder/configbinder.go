// Package configbinder decodes the named connection blocks of the
// configuration file (journal databases, storage datasources) into their
// typed config structs.
package configbinder

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Bind decodes a raw connection block into target. Keys are matched against
// the target's yaml tags, and scalar values are converted weakly so YAML
// strings bind to numeric fields.
//
// Parameters:
//
//	block: The raw key/value block from the configuration file.
//	target: A pointer to the typed config struct.
//
// Returns:
//
//	An error if the block cannot be decoded into target.
func Bind(block map[string]interface{}, target interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return fmt.Errorf("failed to build connection block decoder: %w", err)
	}
	if err := decoder.Decode(block); err != nil {
		return fmt.Errorf("connection block does not match %T: %w", target, err)
	}
	return nil
}
