package strategy

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
)

// derivationPath builds the opaque tECDSA derivation path for a
// strategy's EOA from its 32-bit key, mirroring how assign_keys
// derives one key per strategy (SPEC_FULL.md §3, §4.8).
func derivationPath(key uint32) string {
	return fmt.Sprintf("strategy/%d", key)
}

func rlpEncodeHex(tx *types.Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(raw), nil
}

func jsonUnmarshalString(raw json.RawMessage, out *string) error {
	return json.Unmarshal(raw, out)
}

func jsonUnmarshalReceipt(raw json.RawMessage, out **types.Receipt) error {
	if string(raw) == "null" {
		*out = nil
		return nil
	}
	var r types.Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return err
	}
	*out = &r
	return nil
}
