package obslog

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskFieldRedactsUnlistedKeys(t *testing.T) {
	attr := MaskField("xrc_principal", "secret-value")
	require.Equal(t, RedactedValue, attr.Value.String())
}

func TestMaskFieldPassesAllowlistedKeys(t *testing.T) {
	attr := MaskField("vault_id", "42")
	require.Equal(t, "42", attr.Value.String())
}

func TestMaskFieldLeavesEmptyValuesAlone(t *testing.T) {
	attr := MaskField("xrc_principal", "")
	require.Equal(t, "", attr.Value.String())
}

func TestRedactionAllowlistIsSorted(t *testing.T) {
	keys := RedactionAllowlist()
	for i := 1; i < len(keys); i++ {
		require.LessOrEqual(t, keys[i-1], keys[i])
	}
}
