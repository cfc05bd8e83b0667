package btcmsg

import (
	"encoding/base64"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

const compactSigLen = 65

// Verifier checks signed messages against addresses of one network.
type Verifier struct {
	net *chaincfg.Params
}

func NewVerifier(net *chaincfg.Params) *Verifier {
	if net == nil {
		net = &chaincfg.MainNetParams
	}
	return &Verifier{net: net}
}

// Verify reports whether signature is a valid signature of message by the
// key behind address.
func (v *Verifier) Verify(message, address, signature string) bool {
	return v.Check(message, address, signature) == nil
}

// Check is Verify with the failure reason.
func (v *Verifier) Check(message, address, signature string) error {
	addr, err := btcutil.DecodeAddress(address, v.net)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadAddress, err)
	}
	if !addr.IsForNet(v.net) {
		return ErrWrongNetwork
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(sig) != compactSigLen {
		return ErrBadSignature
	}

	// Header byte: 27-30 uncompressed, 31-34 compressed,
	// 35-38 p2sh-p2wpkh, 39-42 p2wpkh; low two bits are the recovery id.
	flag := int(sig[0]) - 27
	if flag < 0 || flag > 15 {
		return ErrBadSignature
	}
	compressed := flag >= 4
	p2shHeader := flag >= 8 && flag < 12
	bech32Header := flag >= 12
	recovery := byte(flag & 3)

	normalized := make([]byte, compactSigLen)
	copy(normalized, sig)
	normalized[0] = 27 + recovery
	if compressed {
		normalized[0] += 4
	}

	hash, err := MessageHash(message)
	if err != nil {
		return err
	}
	pub, wasCompressed, err := ecdsa.RecoverCompact(normalized, hash)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if wasCompressed != compressed {
		return ErrBadSignature
	}

	var kind AddressType
	switch addr.(type) {
	case *btcutil.AddressPubKeyHash:
		if p2shHeader || bech32Header {
			return ErrAddressMismatch
		}
		kind = P2PKH
	// Electrum signs segwit addresses with a plain compressed header, so
	// that is accepted; the other segwit flavour's header is not.
	case *btcutil.AddressWitnessPubKeyHash:
		if p2shHeader {
			return ErrAddressMismatch
		}
		kind = P2WPKH
	case *btcutil.AddressScriptHash:
		if bech32Header {
			return ErrAddressMismatch
		}
		kind = P2SHP2WPKH
	default:
		return ErrUnsupportedAddr
	}
	if kind != P2PKH && !compressed {
		return ErrAddressMismatch
	}

	return matchAddress(pub, kind, compressed, addr, v.net)
}

func matchAddress(pub *btcec.PublicKey, kind AddressType, compressed bool, addr btcutil.Address, net *chaincfg.Params) error {
	derived, err := Address(pub, kind, compressed, net)
	if err != nil {
		return err
	}
	if derived != addr.EncodeAddress() {
		return ErrAddressMismatch
	}
	return nil
}

// Sign produces a base64 compact signature of message in the header flavour
// matching kind. It exists for tooling and tests; wallets sign in production.
func Sign(key *btcec.PrivateKey, message string, kind AddressType) (string, error) {
	hash, err := MessageHash(message)
	if err != nil {
		return "", err
	}
	sig := ecdsa.SignCompact(key, hash, true)
	switch kind {
	case P2SHP2WPKH:
		sig[0] += 4
	case P2WPKH:
		sig[0] += 8
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
