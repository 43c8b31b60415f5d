package types

const (
	EventTypeRollOpened    = "RollOpened"
	EventTypeBetPlaced     = "BetPlaced"
	EventTypeRollRevealed  = "RollRevealed"
	EventTypeWagerSettled  = "WagerSettled"
	EventTypeBankMinted    = "BankMinted"
)
