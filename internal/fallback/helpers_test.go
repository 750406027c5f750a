package fallback

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// toAny round-trips v through JSON so it can be checked against a schema.
func toAny(t *testing.T, v any) any {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	var out any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}
