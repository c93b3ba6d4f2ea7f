package tron

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fbsobreira/gotron-sdk/pkg/address"
)

// KeyGenerator provisions fresh secp256k1 keys for per-user wallets.
type KeyGenerator struct{}

// GenerateKey returns a new TRON address and its hex encoded private key.
func (KeyGenerator) GenerateKey() (string, string, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return "", "", err
	}
	key := hex.EncodeToString(crypto.FromECDSA(privateKey))
	return address.PubkeyToAddress(privateKey.PublicKey).String(), key, nil
}
