package types

import (
	"errors"

	errorsmod "cosmossdk.io/errors"
)

// x/dice sentinel errors.
var (
	// Validation: malformed or out-of-range fields.
	ErrInvalidParams      = errorsmod.Register(ModuleName, 2, "invalid params")
	ErrInvalidRecipient   = errorsmod.Register(ModuleName, 3, "invalid recipient, should not exist")
	ErrInsufficientStake  = errorsmod.Register(ModuleName, 4, "roll amount must exceed one coin")
	ErrInvalidPlayerLimit = errorsmod.Register(ModuleName, 5, "max player must be at least 1")
	ErrMissingCommitment  = errorsmod.Register(ModuleName, 6, "missing points hash")
	ErrInvalidRule        = errorsmod.Register(ModuleName, 7, "invalid bet rule, must be 1-3")
	ErrInvalidNonce       = errorsmod.Register(ModuleName, 8, "invalid nonce")
	ErrInvalidPointsShape = errorsmod.Register(ModuleName, 9, "points must be 3 dice in 1-6")
	ErrInvalidSignature   = errorsmod.Register(ModuleName, 10, "invalid signature")
	ErrUnknownTxType      = errorsmod.Register(ModuleName, 11, "unknown tx type")

	// State conflicts: rejected at admission without mutating anything.
	ErrSessionNotFound     = errorsmod.Register(ModuleName, 20, "roll not found")
	ErrGameAlreadySettled  = errorsmod.Register(ModuleName, 21, "the game already finished")
	ErrPlayerLimitExceeded = errorsmod.Register(ModuleName, 22, "player number exceeds the limit")
	ErrEscrowExceeded      = errorsmod.Register(ModuleName, 23, "amount exceeds the escrow limit")
	ErrAccountNotFound     = errorsmod.Register(ModuleName, 24, "account not found")
	ErrDuplicateTx         = errorsmod.Register(ModuleName, 25, "transaction already processed")

	// Funds.
	ErrInsufficientFunds            = errorsmod.Register(ModuleName, 30, "insufficient funds")
	ErrInsufficientUnconfirmedFunds = errorsmod.Register(ModuleName, 31, "account does not have enough unconfirmed balance")

	// Integrity: dishonest reveal or corrupted state. Never settle.
	ErrCommitmentMismatch = errorsmod.Register(ModuleName, 40, "incorrect points hash")
	ErrMalformedSession   = errorsmod.Register(ModuleName, 41, "malformed roll record")
	ErrIntegrity          = errorsmod.Register(ModuleName, 42, "ledger integrity violation")
)

// ErrorClass groups sentinel errors by how the host should treat them.
type ErrorClass string

const (
	ClassNone          ErrorClass = ""
	ClassValidation    ErrorClass = "validation"
	ClassStateConflict ErrorClass = "state_conflict"
	ClassFunds         ErrorClass = "funds"
	ClassIntegrity     ErrorClass = "integrity"
)

var classes = []struct {
	class ErrorClass
	errs  []error
}{
	{ClassValidation, []error{
		ErrInvalidParams, ErrInvalidRecipient, ErrInsufficientStake, ErrInvalidPlayerLimit,
		ErrMissingCommitment, ErrInvalidRule, ErrInvalidNonce, ErrInvalidPointsShape,
		ErrInvalidSignature, ErrUnknownTxType,
	}},
	{ClassStateConflict, []error{
		ErrSessionNotFound, ErrGameAlreadySettled, ErrPlayerLimitExceeded, ErrEscrowExceeded,
		ErrAccountNotFound, ErrDuplicateTx,
	}},
	{ClassFunds, []error{ErrInsufficientFunds, ErrInsufficientUnconfirmedFunds}},
	{ClassIntegrity, []error{ErrCommitmentMismatch, ErrMalformedSession, ErrIntegrity}},
}

// Class reports which class a (possibly wrapped) error belongs to.
func Class(err error) ErrorClass {
	if err == nil {
		return ClassNone
	}
	for _, c := range classes {
		for _, target := range c.errs {
			if errors.Is(err, target) {
				return c.class
			}
		}
	}
	return ClassNone
}
