package troves

import (
	"fmt"

	"github.com/holiman/uint256"

	"cdpledger/core/events"
	"cdpledger/crypto"
	"cdpledger/native/bank"
	nativecommon "cdpledger/native/common"
	"cdpledger/native/pricefeed"
	"cdpledger/native/sortedtroves"
)

const moduleName = "troves"

// Bank is the fungible balance ledger for collateral and debt tokens.
type Bank interface {
	BalanceOf(symbol string, addr crypto.Address) *uint256.Int
	Transfer(symbol string, from, to crypto.Address, amount *uint256.Int) error
	Mint(symbol string, to crypto.Address, amount *uint256.Int) error
	Burn(symbol string, from crypto.Address, amount *uint256.Int) error
}

// SurplusCreditor escrows residual collateral for trove owners.
type SurplusCreditor interface {
	Credit(caller, owner crypto.Address, amount *uint256.Int) error
}

// RewardNotifier receives fee income for streaming to stakers.
type RewardNotifier interface {
	CheckDistributor(caller crypto.Address, token string) error
	NotifyRewardAmount(caller crypto.Address, token string, amount *uint256.Int) error
}

// Manager owns the position store, the ordered index and the fee state, and
// executes redemptions and liquidations against them.
type Manager struct {
	params     Params
	accounts   Accounts
	store      *Store
	sorted     *sortedtroves.List
	baseRate   *BaseRate
	bank       Bank
	feed       pricefeed.Feed
	surplus    SurplusCreditor
	rewards    RewardNotifier
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	clock      nativecommon.Clock
	deployedAt uint64
}

// NewManager constructs a manager with an empty store and index.
func NewManager(params Params, accounts Accounts, ledger Bank, feed pricefeed.Feed) (*Manager, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if ledger == nil {
		return nil, fmt.Errorf("troves: bank required")
	}
	if feed == nil {
		return nil, fmt.Errorf("troves: price feed required")
	}
	store := NewStore()
	sorted, err := sortedtroves.New(params.MaxTroves, params.HintSearchLimit, store)
	if err != nil {
		return nil, err
	}
	return &Manager{
		params:   params.Clone(),
		accounts: accounts,
		store:    store,
		sorted:   sorted,
		baseRate: NewBaseRate(0),
		bank:     ledger,
		feed:     feed,
		emitter:  events.NoopEmitter{},
		clock:    nativecommon.SystemClock{},
	}, nil
}

// SetSurplus wires the surplus vault.
func (m *Manager) SetSurplus(s SurplusCreditor) { m.surplus = s }

// SetRewards wires the reward streamer receiving fee income. Without one,
// fees stay with the distributing module account.
func (m *Manager) SetRewards(r RewardNotifier) { m.rewards = r }

// SetEmitter configures the event sink.
func (m *Manager) SetEmitter(e events.Emitter) {
	if e == nil {
		e = events.NoopEmitter{}
	}
	m.emitter = e
}

func (m *Manager) SetPauses(p nativecommon.PauseView) { m.pauses = p }

// SetClock replaces the time source.
func (m *Manager) SetClock(c nativecommon.Clock) {
	if c == nil {
		c = nativecommon.SystemClock{}
	}
	m.clock = c
}

// SetDeployedAt anchors the bootstrap period and the fee clock.
func (m *Manager) SetDeployedAt(ts uint64) {
	m.deployedAt = ts
	if m.baseRate.Rate.IsZero() {
		m.baseRate.LastFeeOperationTime = ts
	}
}

func (m *Manager) Params() Params { return m.params.Clone() }
func (m *Manager) Accounts() Accounts { return m.accounts }
func (m *Manager) Store() *Store { return m.store }
func (m *Manager) Sorted() *sortedtroves.List { return m.sorted }
func (m *Manager) Bank() Bank { return m.bank }
func (m *Manager) BaseRate() *BaseRate { return m.baseRate.Clone() }
func (m *Manager) DeployedAt() uint64 { return m.deployedAt }
func (m *Manager) Pauses() nativecommon.PauseView { return m.pauses }

// Now reads the clock as unix seconds.
func (m *Manager) Now() uint64 {
	ts := m.clock.Now().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

// FetchPrice reads the feed once.
func (m *Manager) FetchPrice() (*uint256.Int, error) {
	price, err := m.feed.FetchPrice()
	if err != nil {
		return nil, fmt.Errorf("troves: fetch price: %w", err)
	}
	return price, nil
}

// Emit forwards an event to the configured sink.
func (m *Manager) Emit(evt events.Event) {
	if m.emitter != nil && evt != nil {
		m.emitter.Emit(evt)
	}
}

// DecayedBaseRate returns the base rate decayed to now.
func (m *Manager) DecayedBaseRate(now uint64) *uint256.Int {
	return m.baseRate.Decayed(m.params, now)
}

// CommitBaseRate stores a new base rate, advancing the fee clock when at
// least a minute has passed.
func (m *Manager) CommitBaseRate(rate *uint256.Int, now uint64) {
	if m.baseRate.store(rate, now) {
		m.Emit(events.BaseRateUpdated{BaseRate: clone(m.baseRate.Rate), LastFeeOperationTime: m.baseRate.LastFeeOperationTime})
	}
}

// CheckFeeDistribution validates that distributor may notify fees in token.
func (m *Manager) CheckFeeDistribution(distributor crypto.Address, token string, fee *uint256.Int) error {
	if m.rewards == nil || fee == nil || fee.IsZero() {
		return nil
	}
	return m.rewards.CheckDistributor(distributor, token)
}

// DistributeFee forwards fee income held by distributor to the streamer.
func (m *Manager) DistributeFee(distributor crypto.Address, token string, fee *uint256.Int) error {
	if m.rewards == nil || fee == nil || fee.IsZero() {
		return nil
	}
	return m.rewards.NotifyRewardAmount(distributor, token, fee)
}

// EmitTroveUpdated publishes the stored state of the owner's trove.
func (m *Manager) EmitTroveUpdated(owner crypto.Address, operation string) {
	status, coll, debt, stake := StatusNonExistent, zero(), zero(), zero()
	if t := m.store.Get(owner); t != nil {
		status, coll, debt, stake = t.Status, t.Coll, t.Debt, t.Stake
	}
	m.Emit(events.TroveUpdated{Owner: owner, Debt: debt, Coll: coll, Stake: stake, Status: status.String(), Operation: operation})
}

// Snapshot is the exportable state of the manager.
type Snapshot struct {
	Store      StoreSnapshot
	Order      []crypto.Address
	BaseRate   BaseRate
	DeployedAt uint64
}

// Export returns a deep copy of the manager state.
func (m *Manager) Export() Snapshot {
	return Snapshot{
		Store:      m.store.Export(),
		Order:      m.sorted.IDs(),
		BaseRate:   *m.baseRate.Clone(),
		DeployedAt: m.deployedAt,
	}
}

// Restore replaces the manager state with snap, rebuilding the ordered index
// in the exported order.
func (m *Manager) Restore(snap Snapshot) error {
	store := NewStore()
	if err := store.Import(snap.Store); err != nil {
		return err
	}
	if uint64(len(snap.Order)) != store.OwnersCount() {
		return fmt.Errorf("troves: index holds %d ids for %d active troves", len(snap.Order), store.OwnersCount())
	}
	sorted, err := sortedtroves.New(m.params.MaxTroves, m.params.HintSearchLimit, store)
	if err != nil {
		return err
	}
	for _, owner := range snap.Order {
		if !store.IsActive(owner) {
			return fmt.Errorf("troves: indexed owner %s has no active trove", owner)
		}
		if err := sorted.Insert(owner, store.NominalICR(owner), sorted.Last(), crypto.ZeroAddress); err != nil {
			return fmt.Errorf("troves: rebuild index: %w", err)
		}
	}
	rate := snap.BaseRate.Clone()
	if rate.Rate == nil {
		rate.Rate = zero()
	}
	m.store = store
	m.sorted = sorted
	m.baseRate = rate
	m.deployedAt = snap.DeployedAt
	return nil
}

// collateral and debt token symbols moved by the manager.
const (
	collToken = bank.SymbolCollateral
	debtToken = bank.SymbolDebt
)
