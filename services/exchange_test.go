package services_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"web3-rewards-backend/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestGenerateNonce(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		nonce := services.GenerateNonce()
		if !strings.HasPrefix(nonce, "0x") || len(nonce) != 66 {
			t.Fatalf("nonce %q is not a bytes32 hex string", nonce)
		}
		if _, err := hex.DecodeString(nonce[2:]); err != nil {
			t.Fatalf("nonce %q is not hex: %v", nonce, err)
		}
		if seen[nonce] {
			t.Fatalf("nonce collision after %d draws: %s", i, nonce)
		}
		seen[nonce] = true
	}
}

func TestSignVoucherRecoverable(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("key generation failed: %v", err)
	}
	signer := crypto.PubkeyToAddress(key.PublicKey)

	wallet := "0xcf2126b7e17b53d600323a7e37be49ad15bcaf94"
	nonce := services.GenerateNonce()
	expiration := int64(1767225600)

	sigHex, err := services.SignVoucher(key, wallet, 300, nonce, expiration)
	if err != nil {
		t.Fatalf("SignVoucher failed: %v", err)
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil || len(sig) != 65 {
		t.Fatalf("signature %q is not 65 hex bytes", sigHex)
	}
	if sig[64] != 27 && sig[64] != 28 {
		t.Fatalf("V byte = %d, want 27 or 28", sig[64])
	}

	// The on-chain verifier recovers the signer from the same digest; it
	// must see the server's signing address.
	sig[64] -= 27
	digest := services.VoucherDigest(wallet, 300, nonce, expiration)
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		t.Fatalf("recovery failed: %v", err)
	}
	if recovered := crypto.PubkeyToAddress(*pub); recovered != signer {
		t.Errorf("recovered %s, want %s", recovered.Hex(), signer.Hex())
	}
}

func TestVoucherDigestBindsAllFields(t *testing.T) {
	wallet := "0xcf2126b7e17b53d600323a7e37be49ad15bcaf94"
	nonce := services.GenerateNonce()
	base := services.VoucherDigest(wallet, 300, nonce, 1767225600)

	variants := []struct {
		name   string
		digest common.Hash
	}{
		{"different wallet", services.VoucherDigest("0x0000000000000000000000000000000000000001", 300, nonce, 1767225600)},
		{"different points", services.VoucherDigest(wallet, 301, nonce, 1767225600)},
		{"different nonce", services.VoucherDigest(wallet, 300, services.GenerateNonce(), 1767225600)},
		{"different expiration", services.VoucherDigest(wallet, 300, nonce, 1767225601)},
	}
	for _, v := range variants {
		if v.digest == base {
			t.Errorf("%s produced the same digest — field is not bound by the signature", v.name)
		}
	}
}
