package model_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dapperlabs/quorumstore/model"
	"github.com/dapperlabs/quorumstore/utils/unittest"
)

func TestHexStringToIdentifier(t *testing.T) {
	type testcase struct {
		hex         string
		expectError bool
	}

	cases := []testcase{{
		// non-hex characters
		hex:         "123456789012345678901234567890123456789012345678901234567890123z",
		expectError: true,
	}, {
		// too short
		hex:         "1234",
		expectError: true,
	}, {
		// just right
		hex:         "1234567890123456789012345678901234567890123456789012345678901234",
		expectError: false,
	}}

	for _, tcase := range cases {
		id, err := model.HexStringToIdentifier(tcase.hex)
		if tcase.expectError {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tcase.hex, id.String())
	}
}

func TestIdentifierJSON(t *testing.T) {
	id := unittest.IdentifierFixture()

	marshaled, err := json.Marshal(id)
	require.NoError(t, err)
	assert.Equal(t, `"`+id.String()+`"`, string(marshaled))

	var decoded model.Identifier
	require.NoError(t, json.Unmarshal(marshaled, &decoded))
	assert.Equal(t, id, decoded)
}

func TestHashToID_Deterministic(t *testing.T) {
	data := []byte("some entity bytes")
	assert.Equal(t, model.HashToID(data), model.HashToID(data))
	assert.NotEqual(t, model.HashToID(data), model.HashToID([]byte("other bytes")))
}
