package settings

import (
	"github.com/mitchellh/mapstructure"

	"github.com/alexisbeaulieu97/nodeflow/internal/validation"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// Decode copies the tree into the struct pointed to by out using
// `settings:"..."` field tags, then runs struct validation. Unknown keys are
// rejected and scalars are converted leniently, so a YAML 30 fills a string
// field. All failures are *errors.InvalidSettingsError.
func Decode(t *Tree, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "settings",
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nferrors.NewInvalidSettingsError("", "", err)
	}
	if err := decoder.Decode(t.ToMap()); err != nil {
		return nferrors.NewInvalidSettingsError("", "", err)
	}
	return validation.ToSettingsError(validation.Instance().Struct(out))
}

// Encode is the inverse of Decode for flat structs: it stores every tagged
// field of in into a new tree.
func Encode(in any) (*Tree, error) {
	var raw map[string]any
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &raw,
		TagName: "settings",
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(in); err != nil {
		return nil, err
	}
	return FromMap(raw)
}
