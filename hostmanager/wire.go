package hostmanager

import (
	"encoding/hex"

	"github.com/pkg/errors"
	"github.com/sabledatanetworks/pandanite-node/types"
)

func parseHexHash(s string) (types.Hash, error) {
	var h types.Hash
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return h, errors.Wrap(err, "decode hash hex")
	}
	if len(decoded) != len(h) {
		return h, errors.Errorf("expected %d hash bytes, got %d", len(h), len(decoded))
	}
	copy(h[:], decoded)
	return h, nil
}

func decodeWalletOrZero(s string) (types.WalletAddress, error) {
	if s == "" {
		return types.ZeroWalletAddress, nil
	}
	return types.WalletAddressFromString(s)
}

func decodeHexOrNil(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
