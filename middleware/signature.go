// middleware/signature.go
package middleware

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"web3-rewards-backend/utils"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gofiber/fiber/v2"
)

// SignatureMaxAge bounds the replay window for signed requests without any
// server-side nonce storage. Clients cache signatures for strictly less
// than this (4 of the 5 minutes) so a cached signature never outlives the
// server window.
const SignatureMaxAge = 5 * time.Minute

var (
	ErrMissingCredentials   = errors.New("missing credentials")
	ErrInvalidAddressFormat = errors.New("invalid address format")
	ErrInvalidTimestamp     = errors.New("invalid timestamp")
	ErrSignatureExpired     = errors.New("signature expired")
	ErrSignatureMismatch    = errors.New("signature mismatch")
)

// VerifyWalletSignature checks that signature over the challenge
// "Authenticate wallet: <address>\nTimestamp: <timestamp>" recovers to the
// claimed address and that the timestamp (epoch millis) is within the
// freshness window. Returns the normalized address on success.
func VerifyWalletSignature(address, signature, timestamp string, now time.Time) (string, error) {
	if address == "" || signature == "" || timestamp == "" {
		return "", ErrMissingCredentials
	}
	if !utils.IsHexAddress(address) {
		return "", ErrInvalidAddressFormat
	}
	millis, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return "", ErrInvalidTimestamp
	}
	signedAt := time.UnixMilli(millis)
	age := now.Sub(signedAt)
	if age < 0 {
		age = -age
	}
	if age > SignatureMaxAge {
		return "", ErrSignatureExpired
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != 65 {
		return "", ErrSignatureMismatch
	}
	// Wallets emit V as 27/28; go-ethereum wants 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	challenge := fmt.Sprintf("Authenticate wallet: %s\nTimestamp: %s", address, timestamp)
	digest := crypto.Keccak256Hash([]byte(fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(challenge), challenge)))

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return "", ErrSignatureMismatch
	}
	recovered := crypto.PubkeyToAddress(*pub)
	if !strings.EqualFold(recovered.Hex(), strings.TrimSpace(address)) {
		return "", ErrSignatureMismatch
	}
	return utils.NormalizeAddress(address), nil
}

// SignatureAuthMiddleware guards value-granting endpoints. It proves the
// caller controls the wallet named in x-wallet-address and stores the
// normalized address in Locals("wallet"). All failures are 401 with no
// side effects.
func SignatureAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		wallet, err := VerifyWalletSignature(
			c.Get("x-wallet-address"),
			c.Get("x-wallet-signature"),
			c.Get("x-timestamp"),
			time.Now(),
		)
		if err != nil {
			log.Printf("🚫 [SIG_AUTH] %v for %s", err, c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": err.Error()})
		}
		c.Locals("wallet", wallet)
		return c.Next()
	}
}

// WalletHeaderMiddleware accepts a bare x-wallet-address header for
// endpoints that identify but do not grant (claim status, bets — the bet
// itself is guarded by the sybil gate and the stake debit).
func WalletHeaderMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		address := c.Get("x-wallet-address")
		if address == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing wallet address"})
		}
		if !utils.IsHexAddress(address) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": ErrInvalidAddressFormat.Error()})
		}
		c.Locals("wallet", utils.NormalizeAddress(address))
		return c.Next()
	}
}
