package tron

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
)

const addressVersion = 0x41

var ErrInvalidAddress = errors.New("invalid tron address")

// ValidateAddress checks a base58check encoded TRON account address.
func ValidateAddress(addr string) error {
	payload, version, err := base58.CheckDecode(addr)
	if err != nil {
		return fmt.Errorf("%w %q: %v", ErrInvalidAddress, addr, err)
	}
	if version != addressVersion || len(payload) != 20 {
		return fmt.Errorf("%w %q", ErrInvalidAddress, addr)
	}
	return nil
}
