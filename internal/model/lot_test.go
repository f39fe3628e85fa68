package model

import (
	"encoding/json"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLotKeyString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "7-12", NewLotKey(7, 12).String())
	assert.Equal(t, "0-1", NewLotKey(0, 1).String())
}

func TestLotKeyStringIsCollisionFree(t *testing.T) {
	t.Parallel()

	// "1-12" vs "11-2" would collide under plain concatenation.
	a := NewLotKey(1, 12)
	b := NewLotKey(11, 2)
	assert.NotEqual(t, a.String(), b.String())
}

func TestParseLotKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    LotKey
		wantErr bool
	}{
		{in: "7-12", want: NewLotKey(7, 12)},
		{in: " 3-45 ", want: NewLotKey(3, 45)},
		{in: "712", wantErr: true},
		{in: "x-12", wantErr: true},
		{in: "7-y", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseLotKey(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLotKeyCompare(t *testing.T) {
	t.Parallel()

	keys := []LotKey{NewLotKey(2, 1), NewLotKey(1, 12), NewLotKey(1, 3)}
	slices.SortFunc(keys, LotKey.Compare)
	assert.Equal(t, []LotKey{NewLotKey(1, 3), NewLotKey(1, 12), NewLotKey(2, 1)}, keys)
}

func TestLotKeyJSONRoundTrip(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(map[string]LotKey{"lot": NewLotKey(7, 12)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"lot":"7-12"}`, string(data))

	var back map[string]LotKey
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, NewLotKey(7, 12), back["lot"])
}
