package bounty

import (
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	registryVault  = deriveAddress("bounty.registry.vault")
	factoryAddress = deriveAddress("bounty.factory")
)

// RegistryVaultAddress returns the account that holds locked assets for every
// registry request. Requesters approve the locked amount and providers approve
// the bounty amount to this address.
func RegistryVaultAddress() [20]byte { return registryVault }

// FactoryAddress returns the deployer address instance addresses are derived
// from.
func FactoryAddress() [20]byte { return factoryAddress }

func deriveAddress(label string) [20]byte {
	var out [20]byte
	copy(out[:], ethcrypto.Keccak256([]byte(label))[12:])
	return out
}

// instanceAddress derives a deterministic, never reused instance address from
// the factory address and its creation nonce.
func instanceAddress(factory [20]byte, nonce uint64) [20]byte {
	return [20]byte(ethcrypto.CreateAddress(common.Address(factory), nonce))
}

func uint64Bytes(v uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return buf[:]
}

func amountBytes(v *big.Int) []byte {
	if v == nil {
		return common.LeftPadBytes(nil, 32)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}

// requestID hashes the domain, custody, parties, terms and nonce. The nonce is
// strictly increasing per domain so identical terms still yield distinct ids.
func requestID(domain string, custody, requester [20]byte, p CreateParams, nonce uint64) [32]byte {
	return ethcrypto.Keccak256Hash(
		[]byte(domain),
		custody[:],
		requester[:],
		p.Provider[:],
		p.LockedToken[:],
		amountBytes(p.LockedAmount),
		p.BountyToken[:],
		amountBytes(p.BountyAmount),
		uint64Bytes(uint64(p.Duration)),
		uint64Bytes(nonce),
	)
}
