package ledger

import (
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"cdpledger/core/events"
	"cdpledger/crypto"
	"cdpledger/native/bank"
	"cdpledger/native/borrower"
	nativecommon "cdpledger/native/common"
	"cdpledger/native/multirewards"
	"cdpledger/native/pricefeed"
	"cdpledger/native/surplus"
	"cdpledger/native/troves"
)

// Module names accepted by SetPaused.
const (
	ModuleTroves   = "troves"
	ModuleBorrower = "borrower"
	ModuleRewards  = "multirewards"
)

// DefaultRewardsDuration is the length of a reward epoch in seconds.
const DefaultRewardsDuration = uint64(7 * 24 * 60 * 60)

// Config wires the protocol parameters and module accounts.
type Config struct {
	Params   troves.Params
	Accounts troves.Accounts
	// RewardsOwner administers the reward streams.
	RewardsOwner    crypto.Address
	RewardsDuration uint64
	// DeployedAt anchors the redemption bootstrap period; zero uses the clock.
	DeployedAt uint64
}

// DefaultConfig returns the reference parameters with derived module accounts.
func DefaultConfig() Config {
	return Config{
		Params:          troves.DefaultParams(),
		Accounts:        troves.DefaultAccounts(),
		RewardsOwner:    crypto.ModuleAddress("governance"),
		RewardsDuration: DefaultRewardsDuration,
	}
}

// System is the single execution domain for every ledger operation. Each
// entry point runs to completion under one lock.
type System struct {
	mu       sync.Mutex
	cfg      Config
	bank     *bank.Ledger
	feed     pricefeed.Feed
	clock    nativecommon.Clock
	pauses   *nativecommon.Pauses
	emitter  events.Emitter
	manager  *troves.Manager
	surplus  *surplus.Pool
	streamer *multirewards.Streamer
	registry *borrower.Registry
	ops      *borrower.Operations
}

// New assembles the modules around a fresh bank ledger.
func New(cfg Config, feed pricefeed.Feed, clock nativecommon.Clock, emitter events.Emitter) (*System, error) {
	if clock == nil {
		clock = nativecommon.SystemClock{}
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	if cfg.RewardsDuration == 0 {
		return nil, fmt.Errorf("ledger: rewards duration must be positive")
	}
	if cfg.RewardsOwner.IsZero() {
		return nil, fmt.Errorf("ledger: rewards owner required")
	}
	ledger := bank.NewLedger()
	manager, err := troves.NewManager(cfg.Params, cfg.Accounts, ledger, feed)
	if err != nil {
		return nil, err
	}
	s := &System{
		cfg:      cfg,
		bank:     ledger,
		feed:     feed,
		clock:    clock,
		pauses:   nativecommon.NewPauses(),
		emitter:  emitter,
		manager:  manager,
		surplus:  surplus.NewPool(cfg.Accounts.SurplusPool, cfg.Accounts.TroveManager, cfg.Accounts.BorrowerOps, ledger),
		streamer: multirewards.NewStreamer(cfg.RewardsOwner, cfg.Accounts.RewardStreamer, bank.SymbolStake, ledger),
		registry: borrower.NewRegistry(),
	}
	s.ops = borrower.NewOperations(manager, s.registry, s.surplus)

	manager.SetClock(clock)
	manager.SetEmitter(emitter)
	manager.SetPauses(s.pauses)
	manager.SetSurplus(s.surplus)
	manager.SetRewards(s.streamer)
	s.surplus.SetEmitter(emitter)
	s.streamer.SetClock(clock)
	s.streamer.SetEmitter(emitter)
	s.streamer.SetPauses(s.pauses)
	s.registry.SetEmitter(emitter)
	s.ops.SetPauses(s.pauses)

	distributors := []crypto.Address{cfg.Accounts.TroveManager, cfg.Accounts.BorrowerOps}
	for _, token := range []string{bank.SymbolDebt, bank.SymbolCollateral} {
		if err := s.streamer.AddRewardToken(cfg.RewardsOwner, token, distributors, cfg.RewardsDuration); err != nil {
			return nil, err
		}
	}
	deployedAt := cfg.DeployedAt
	if deployedAt == 0 {
		deployedAt = manager.Now()
	}
	manager.SetDeployedAt(deployedAt)
	return s, nil
}

// Config returns the wiring the system was built with.
func (s *System) Config() Config { return s.cfg }

// Fund mints genesis balances.
func (s *System) Fund(balances []bank.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range balances {
		if err := s.bank.Mint(b.Symbol, b.Address, b.Amount); err != nil {
			return fmt.Errorf("ledger: fund %s %s: %w", b.Address, b.Symbol, err)
		}
	}
	return nil
}

// SetPaused pauses or resumes a module.
func (s *System) SetPaused(module string, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses.Set(module, paused)
}

// Paused lists the paused modules.
func (s *System) Paused() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauses.List()
}

// --- borrower operations ---

func (s *System) OpenTrove(req borrower.OpenTroveRequest) (*borrower.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.OpenTrove(req)
}

func (s *System) AdjustTrove(req borrower.AdjustTroveRequest) (*borrower.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.AdjustTrove(req)
}

func (s *System) AddColl(actor, principal crypto.Address, amount *uint256.Int, upper, lower crypto.Address) (*borrower.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.AddColl(actor, principal, amount, upper, lower)
}

func (s *System) WithdrawColl(actor, principal crypto.Address, amount *uint256.Int, upper, lower crypto.Address) (*borrower.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.WithdrawColl(actor, principal, amount, upper, lower)
}

func (s *System) WithdrawDebt(actor, principal crypto.Address, maxFee, amount *uint256.Int, upper, lower crypto.Address) (*borrower.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.WithdrawDebt(actor, principal, maxFee, amount, upper, lower)
}

func (s *System) RepayDebt(actor, principal crypto.Address, amount *uint256.Int, upper, lower crypto.Address) (*borrower.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.RepayDebt(actor, principal, amount, upper, lower)
}

func (s *System) CloseTrove(actor, principal crypto.Address) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.CloseTrove(actor, principal)
}

func (s *System) ClaimCollateral(actor, principal crypto.Address) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ops.ClaimCollateral(actor, principal)
}

// SetApproval records owner's approval of delegate.
func (s *System) SetApproval(owner, delegate crypto.Address, approved bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.SetApproval(owner, delegate, approved)
}

// --- trove manager ---

func (s *System) Redeem(req troves.RedemptionRequest) (*troves.RedemptionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.Redeem(req)
}

func (s *System) Liquidate(liquidator, owner crypto.Address) (*troves.LiquidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.Liquidate(liquidator, owner)
}

func (s *System) BatchLiquidate(liquidator crypto.Address, owners []crypto.Address) (*troves.LiquidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.BatchLiquidate(liquidator, owners)
}

// --- reward streamer ---

func (s *System) Stake(account crypto.Address, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamer.Stake(account, amount)
}

func (s *System) Withdraw(account crypto.Address, amount *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamer.Withdraw(account, amount)
}

func (s *System) GetReward(account crypto.Address) (map[string]*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamer.GetReward(account)
}

func (s *System) Exit(account crypto.Address) (map[string]*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamer.Exit(account)
}

func (s *System) SetRewardsDuration(caller crypto.Address, token string, duration uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamer.SetRewardsDuration(caller, token, duration)
}

// --- queries ---

// TroveView is a trove with its pending rewards folded in.
type TroveView struct {
	Trove      *troves.Trove
	EntireColl *uint256.Int
	EntireDebt *uint256.Int
	NICR       *uint256.Int
	ICR        *uint256.Int
}

// Trove returns the owner's trove or nil when none was ever opened.
func (s *System) Trove(owner crypto.Address) (*TroveView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	store := s.manager.Store()
	trove := store.Get(owner)
	if trove == nil {
		return nil, nil
	}
	price, err := s.manager.FetchPrice()
	if err != nil {
		return nil, err
	}
	coll, debt := store.EntireDebtAndColl(owner)
	return &TroveView{
		Trove:      trove,
		EntireColl: coll,
		EntireDebt: debt,
		NICR:       store.NominalICR(owner),
		ICR:        store.CurrentICR(owner, price),
	}, nil
}

// SortedTroves returns the ordered index from highest to lowest NICR.
func (s *System) SortedTroves() []crypto.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.Sorted().IDs()
}

// Summary describes the system-wide position.
type Summary struct {
	Price      *uint256.Int
	TCR        *uint256.Int
	TotalColl  *uint256.Int
	TotalDebt  *uint256.Int
	Troves     uint64
	BaseRate   *uint256.Int
	DeployedAt uint64
	Totals     troves.Totals
}

// Summary reads the system totals at the current price.
func (s *System) Summary() (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	price, err := s.manager.FetchPrice()
	if err != nil {
		return nil, err
	}
	store := s.manager.Store()
	return &Summary{
		Price:      price,
		TCR:        store.TCR(price),
		TotalColl:  store.EntireSystemColl(),
		TotalDebt:  store.EntireSystemDebt(),
		Troves:     store.OwnersCount(),
		BaseRate:   s.manager.DecayedBaseRate(s.manager.Now()),
		DeployedAt: s.manager.DeployedAt(),
		Totals:     store.Totals(),
	}, nil
}

// RedemptionHints computes redemption hints at the current price.
func (s *System) RedemptionHints(amount *uint256.Int, maxIterations uint64) (crypto.Address, *uint256.Int, *uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	price, err := s.manager.FetchPrice()
	if err != nil {
		return crypto.ZeroAddress, nil, nil, err
	}
	first, partialNICR, truncated := s.manager.RedemptionHints(amount, price, maxIterations)
	return first, partialNICR, truncated, nil
}

// InsertHints returns the neighbors of a trove with coll and composite debt.
func (s *System) InsertHints(coll, debt *uint256.Int) (crypto.Address, crypto.Address) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.InsertHints(coll, debt)
}

// Balance returns addr's holding of symbol.
func (s *System) Balance(symbol string, addr crypto.Address) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bank.BalanceOf(symbol, addr)
}

// SurplusBalance returns the collateral claimable by owner.
func (s *System) SurplusBalance(owner crypto.Address) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.surplus.Balance(owner)
}

// IsApproved reports whether delegate may act for owner.
func (s *System) IsApproved(owner, delegate crypto.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.IsApproved(owner, delegate)
}

// Delegates lists the owner's approved delegates.
func (s *System) Delegates(owner crypto.Address) []crypto.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Delegates(owner)
}

// StakeInfo reports an account's stake and earned rewards per token.
type StakeInfo struct {
	Staked *uint256.Int
	Earned map[string]*uint256.Int
}

// StakeInfo reads the account's position in the reward streamer.
func (s *System) StakeInfo(account crypto.Address) StakeInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := StakeInfo{Staked: s.streamer.BalanceOf(account), Earned: make(map[string]*uint256.Int)}
	for _, token := range s.streamer.RewardTokens() {
		info.Earned[token] = s.streamer.Earned(account, token)
	}
	return info
}

// RewardData returns the stream state of token.
func (s *System) RewardData(token string) (*multirewards.Reward, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamer.RewardData(token)
}
