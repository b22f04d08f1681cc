// Package crypto derives on-chain position keys and authenticates the
// close submissions handed to the external signer.
package crypto

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PositionKey returns the vault's position key:
//
//	keccak256(abi.encodePacked(account, collateralToken, indexToken, isLong))
func PositionKey(account, collateralToken, indexToken common.Address, isLong bool) string {
	flag := byte(0)
	if isLong {
		flag = 1
	}
	return ethcrypto.Keccak256Hash(
		concatBytes(account.Bytes(), collateralToken.Bytes(), indexToken.Bytes(), []byte{flag}),
	).Hex()
}

// concatBytes concatenates multiple byte slices into one.
func concatBytes(slices ...[]byte) []byte {
	total := 0
	for _, s := range slices {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range slices {
		buf = append(buf, s...)
	}
	return buf
}
