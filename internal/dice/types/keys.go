package types

const (
	// ModuleName is the errors codespace and log module for the dice game.
	ModuleName = "dice"

	TxTypeRoll   = "dice/roll"
	TxTypeBet    = "dice/bet"
	TxTypeReveal = "dice/reveal"
)

const (
	// FixedPoint is the number of base units in one coin.
	FixedPoint int64 = 100_000_000

	// TxFee is charged by every dice transaction, independent of its amount.
	TxFee = FixedPoint / 10

	// MinRollAmount is the exclusive lower bound on a roll's escrow.
	MinRollAmount = 1 * FixedPoint

	// MaxOdds is the highest payout multiplier any rule can produce.
	MaxOdds int64 = 3

	// MaxNonce bounds reveal nonces to the integers clients can represent exactly.
	MaxNonce int64 = 1<<53 - 1

	DiceCount = 3
	DiceFaces = 6
)

// Bet rules.
const (
	RuleBigSmall int64 = 1 // guess 1 for big (total > BigThreshold), 0 for small
	RuleFace     int64 = 2 // guess a face; odds = number of dice showing it
	RuleTotal    int64 = 3 // guess the total; exact pays 2, off by one pays 1

	BigThreshold int64 = 10
)
