package model

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// lotKeySeparator joins the environment and batch numbers in the rendered key.
const lotKeySeparator = "-"

// LotKey identifies one batch occupying one environment (aviary).
type LotKey struct {
	EnvironmentID int `json:"environment_id"`
	BatchID       int `json:"batch_id"`
}

// NewLotKey builds a key from parsed environment and batch numbers.
func NewLotKey(environmentID, batchID int) LotKey {
	return LotKey{EnvironmentID: environmentID, BatchID: batchID}
}

// String renders the key as "{env}-{batch}", e.g. "7-12".
func (k LotKey) String() string {
	return fmt.Sprintf("%d%s%d", k.EnvironmentID, lotKeySeparator, k.BatchID)
}

// Compare orders keys by environment, then batch.
func (k LotKey) Compare(other LotKey) int {
	if c := cmp.Compare(k.EnvironmentID, other.EnvironmentID); c != 0 {
		return c
	}
	return cmp.Compare(k.BatchID, other.BatchID)
}

// MarshalText implements encoding.TextMarshaler so keys render as "7-12" in JSON and YAML.
func (k LotKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *LotKey) UnmarshalText(text []byte) error {
	parsed, err := ParseLotKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseLotKey parses a rendered "{env}-{batch}" key.
func ParseLotKey(s string) (LotKey, error) {
	env, batch, ok := strings.Cut(strings.TrimSpace(s), lotKeySeparator)
	if !ok {
		return LotKey{}, eris.Errorf("model: lot key %q has no separator", s)
	}
	envID, err := strconv.Atoi(env)
	if err != nil {
		return LotKey{}, eris.Wrapf(err, "model: lot key %q environment", s)
	}
	batchID, err := strconv.Atoi(batch)
	if err != nil {
		return LotKey{}, eris.Wrapf(err, "model: lot key %q batch", s)
	}
	return NewLotKey(envID, batchID), nil
}
