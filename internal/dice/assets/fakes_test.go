package assets

import (
	"context"
	"sort"
	"testing"

	"cosmossdk.io/log"

	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/registry"
	"github.com/sqfasd/asch-dice-game-dapp/internal/dice/types"
)

const coin = types.FixedPoint

type memLedger struct {
	accounts map[string]types.Account
	failOn   map[string]bool
	merges   []types.AccountDiff
}

func newMemLedger() *memLedger {
	return &memLedger{accounts: map[string]types.Account{}, failOn: map[string]bool{}}
}

func (l *memLedger) fund(addr string, amount int64) {
	l.accounts[addr] = types.Account{Address: addr, Balance: amount, UBalance: amount}
}

func (l *memLedger) GetAccount(_ context.Context, addr string) (*types.Account, error) {
	acc, ok := l.accounts[addr]
	if !ok {
		return nil, types.ErrAccountNotFound.Wrap(addr)
	}
	return &acc, nil
}

func (l *memLedger) MergeAccountAndGet(_ context.Context, d types.AccountDiff) (*types.Account, error) {
	if l.failOn[d.Address] {
		return nil, types.ErrInsufficientFunds.Wrapf("%s: injected failure", d.Address)
	}
	acc := l.accounts[d.Address]
	acc.Address = d.Address
	if acc.Balance+d.Balance < 0 || acc.UBalance+d.UBalance < 0 {
		return nil, types.ErrInsufficientFunds.Wrap(d.Address)
	}
	acc.Balance += d.Balance
	acc.UBalance += d.UBalance
	l.accounts[d.Address] = acc
	l.merges = append(l.merges, d)
	return &acc, nil
}

func (l *memLedger) UndoMerging(ctx context.Context, d types.AccountDiff) error {
	_, err := l.MergeAccountAndGet(ctx, d.Inverse())
	return err
}

func (l *memLedger) snapshot() map[string]types.Account {
	out := make(map[string]types.Account, len(l.accounts))
	for k, v := range l.accounts {
		out[k] = v
	}
	return out
}

func (l *memLedger) account(addr string) types.Account {
	return l.accounts[addr]
}

type memStore struct {
	sessions map[string]*types.Session
	wagers   map[string][]types.Wager
	rolls    map[string]types.RollAsset
	bets     map[string]types.BetAsset
	reveals  map[string]types.RevealAsset
}

func newMemStore() *memStore {
	return &memStore{
		sessions: map[string]*types.Session{},
		wagers:   map[string][]types.Wager{},
		rolls:    map[string]types.RollAsset{},
		bets:     map[string]types.BetAsset{},
		reveals:  map[string]types.RevealAsset{},
	}
}

func (s *memStore) GetSession(_ context.Context, id string) (*types.Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *memStore) GetWagersForSession(_ context.Context, id string) ([]types.Wager, error) {
	out := append([]types.Wager(nil), s.wagers[id]...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) SaveRoll(_ context.Context, id string, a types.RollAsset) error {
	s.rolls[id] = a
	return nil
}

func (s *memStore) SaveBet(_ context.Context, id string, a types.BetAsset) error {
	s.bets[id] = a
	return nil
}

func (s *memStore) SaveReveal(_ context.Context, id string, a types.RevealAsset) error {
	s.reveals[id] = a
	return nil
}

func (s *memStore) LoadRoll(_ context.Context, id string) (*types.RollAsset, error) {
	a, ok := s.rolls[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *memStore) LoadBet(_ context.Context, id string) (*types.BetAsset, error) {
	a, ok := s.bets[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *memStore) LoadReveal(_ context.Context, id string) (*types.RevealAsset, error) {
	a, ok := s.reveals[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *memStore) addSession(sess types.Session) {
	s.sessions[sess.ID] = &sess
}

func (s *memStore) addWager(w types.Wager) {
	s.wagers[w.RollID] = append(s.wagers[w.RollID], w)
}

type fixture struct {
	ctx    context.Context
	ledger *memLedger
	store  *memStore
	reg    *registry.Registry
	roll   *RollHandler
	bet    *BetHandler
	reveal *RevealHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := newMemLedger()
	s := newMemStore()
	reg := registry.New()
	logger := log.NewNopLogger()
	return &fixture{
		ctx:    context.Background(),
		ledger: l,
		store:  s,
		reg:    reg,
		roll:   NewRollHandler(l, s, logger),
		bet:    NewBetHandler(l, s, reg, logger),
		reveal: NewRevealHandler(l, s, reg, logger),
	}
}

func (f *fixture) sender(t *testing.T, addr string) *types.Account {
	t.Helper()
	acc, err := f.ledger.GetAccount(f.ctx, addr)
	if err != nil {
		t.Fatalf("sender %s: %v", addr, err)
	}
	return acc
}

// openScenarioRoll sets up a confirmed roll of 100 coins with two bets
// already confirmed against it, and returns the matching draw.
func (f *fixture) openScenarioRoll(t *testing.T) Draw {
	t.Helper()
	draw := Draw{Points: []int64{4, 5, 6}, Nonce: 12345}
	f.ledger.fund("house", 1000*coin)
	f.ledger.fund("alice", 100*coin)
	f.ledger.fund("bob", 100*coin)
	f.ledger.fund("carol", 100*coin)
	f.store.addSession(types.Session{ID: "roll1", SenderID: "house", Amount: 100 * coin, MaxPlayer: 2, PointsHash: draw.Commitment()})
	f.store.addWager(types.Wager{ID: "bet-a", SenderID: "alice", Amount: 10 * coin, Rule: types.RuleBigSmall, Point: 1, RollID: "roll1"})
	f.store.addWager(types.Wager{ID: "bet-b", SenderID: "bob", Amount: 5 * coin, Rule: types.RuleTotal, Point: 10, RollID: "roll1"})
	return draw
}

func (f *fixture) revealTx(t *testing.T, id string, draw Draw, rollID string) *types.Transaction {
	t.Helper()
	tx, err := f.reveal.Create(types.CreateParams{Nonce: draw.Nonce, Points: draw.Points, RollID: rollID}, &types.Transaction{ID: id})
	if err != nil {
		t.Fatalf("create reveal: %v", err)
	}
	return tx
}
