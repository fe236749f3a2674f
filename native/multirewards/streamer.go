package multirewards

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"cdpledger/core/events"
	"cdpledger/crypto"
	"cdpledger/native/bank"
	nativecommon "cdpledger/native/common"
)

const moduleName = "multirewards"

var (
	ErrNotOwner          = errors.New("multirewards: caller is not the owner")
	ErrRewardExists      = errors.New("multirewards: reward token already added")
	ErrUnknownToken      = errors.New("multirewards: reward token not registered")
	ErrNotDistributor    = errors.New("multirewards: caller is not a rewards distributor")
	ErrZeroAmount        = errors.New("multirewards: cannot stake 0")
	ErrZeroWithdraw      = errors.New("multirewards: cannot withdraw 0")
	ErrInsufficientStake = errors.New("multirewards: withdraw exceeds staked balance")
	ErrPeriodActive      = errors.New("multirewards: reward period still active")
	ErrInvalidDuration   = errors.New("multirewards: rewards duration must be positive")
	ErrRewardTooHigh     = errors.New("multirewards: provided reward too high")
)

var precision = uint256.NewInt(1_000_000_000_000_000_000)

// Bank moves stake and reward tokens in and out of the streamer account.
type Bank interface {
	BalanceOf(symbol string, addr crypto.Address) *uint256.Int
	Transfer(symbol string, from, to crypto.Address, amount *uint256.Int) error
}

// Reward is the stream state of one reward token.
type Reward struct {
	Distributors         []crypto.Address
	RewardsDuration      uint64
	PeriodFinish         uint64
	RewardRate           *uint256.Int
	LastUpdateTime       uint64
	RewardPerTokenStored *uint256.Int
}

func (r *Reward) clone() *Reward {
	return &Reward{
		Distributors:         append([]crypto.Address(nil), r.Distributors...),
		RewardsDuration:      r.RewardsDuration,
		PeriodFinish:         r.PeriodFinish,
		RewardRate:           new(uint256.Int).Set(r.RewardRate),
		LastUpdateTime:       r.LastUpdateTime,
		RewardPerTokenStored: new(uint256.Int).Set(r.RewardPerTokenStored),
	}
}

func (r *Reward) isDistributor(addr crypto.Address) bool {
	for _, d := range r.Distributors {
		if d == addr {
			return true
		}
	}
	return false
}

type userKey struct {
	account crypto.Address
	token   string
}

// Streamer distributes reward tokens to stakers of the stake token over fixed
// epochs. Accumulators are brought up to date lazily on every interaction.
type Streamer struct {
	owner      crypto.Address
	account    crypto.Address
	stakeToken string
	bank       Bank
	clock      nativecommon.Clock
	pauses     nativecommon.PauseView
	emitter    events.Emitter

	tokens      []string
	rewards     map[string]*Reward
	balances    map[crypto.Address]*uint256.Int
	totalSupply *uint256.Int
	paid        map[userKey]*uint256.Int
	accrued     map[userKey]*uint256.Int
}

// NewStreamer returns a streamer custodied at account and administered by owner.
func NewStreamer(owner, account crypto.Address, stakeToken string, ledger Bank) *Streamer {
	return &Streamer{
		owner:       owner,
		account:     account,
		stakeToken:  bank.NormalizeSymbol(stakeToken),
		bank:        ledger,
		clock:       nativecommon.SystemClock{},
		emitter:     events.NoopEmitter{},
		rewards:     make(map[string]*Reward),
		balances:    make(map[crypto.Address]*uint256.Int),
		totalSupply: new(uint256.Int),
		paid:        make(map[userKey]*uint256.Int),
		accrued:     make(map[userKey]*uint256.Int),
	}
}

// SetClock replaces the time source.
func (s *Streamer) SetClock(c nativecommon.Clock) {
	if c == nil {
		c = nativecommon.SystemClock{}
	}
	s.clock = c
}

func (s *Streamer) SetPauses(p nativecommon.PauseView) { s.pauses = p }

// SetEmitter configures the event sink.
func (s *Streamer) SetEmitter(e events.Emitter) {
	if e == nil {
		e = events.NoopEmitter{}
	}
	s.emitter = e
}

// Account returns the custody address.
func (s *Streamer) Account() crypto.Address { return s.account }

// Owner returns the administrator address.
func (s *Streamer) Owner() crypto.Address { return s.owner }

// StakeToken returns the staked token symbol.
func (s *Streamer) StakeToken() string { return s.stakeToken }

func (s *Streamer) now() uint64 {
	ts := s.clock.Now().Unix()
	if ts < 0 {
		return 0
	}
	return uint64(ts)
}

func normalizeToken(token string) string { return bank.NormalizeSymbol(token) }

// RewardTokens returns the registered reward tokens in registration order.
func (s *Streamer) RewardTokens() []string { return append([]string(nil), s.tokens...) }

// RewardData returns a copy of the stream state for token.
func (s *Streamer) RewardData(token string) (*Reward, error) {
	r, ok := s.rewards[normalizeToken(token)]
	if !ok {
		return nil, ErrUnknownToken
	}
	return r.clone(), nil
}

// TotalSupply returns the total staked amount.
func (s *Streamer) TotalSupply() *uint256.Int { return new(uint256.Int).Set(s.totalSupply) }

// BalanceOf returns the amount staked by account.
func (s *Streamer) BalanceOf(account crypto.Address) *uint256.Int {
	if bal, ok := s.balances[account]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

// AddRewardToken registers a new stream. Each token may be added once.
func (s *Streamer) AddRewardToken(caller crypto.Address, token string, distributors []crypto.Address, duration uint64) error {
	if caller != s.owner {
		return ErrNotOwner
	}
	token = normalizeToken(token)
	if token == "" {
		return fmt.Errorf("multirewards: token required")
	}
	if _, ok := s.rewards[token]; ok {
		return ErrRewardExists
	}
	if duration == 0 {
		return ErrInvalidDuration
	}
	s.rewards[token] = &Reward{
		Distributors:         append([]crypto.Address(nil), distributors...),
		RewardsDuration:      duration,
		RewardRate:           new(uint256.Int),
		RewardPerTokenStored: new(uint256.Int),
	}
	s.tokens = append(s.tokens, token)
	return nil
}

// SetRewardsDistributor approves or revokes a distributor for token.
func (s *Streamer) SetRewardsDistributor(caller crypto.Address, token string, distributor crypto.Address, approved bool) error {
	if caller != s.owner {
		return ErrNotOwner
	}
	r, ok := s.rewards[normalizeToken(token)]
	if !ok {
		return ErrUnknownToken
	}
	filtered := r.Distributors[:0]
	for _, d := range r.Distributors {
		if d != distributor {
			filtered = append(filtered, d)
		}
	}
	if approved {
		filtered = append(filtered, distributor)
	}
	r.Distributors = filtered
	return nil
}

// SetRewardsDuration changes the epoch length once the current period ended.
func (s *Streamer) SetRewardsDuration(caller crypto.Address, token string, duration uint64) error {
	if caller != s.owner {
		return ErrNotOwner
	}
	token = normalizeToken(token)
	r, ok := s.rewards[token]
	if !ok {
		return ErrUnknownToken
	}
	if s.now() <= r.PeriodFinish {
		return ErrPeriodActive
	}
	if duration == 0 {
		return ErrInvalidDuration
	}
	r.RewardsDuration = duration
	s.emitter.Emit(events.RewardsDurationUpdated{Token: token, Duration: duration})
	return nil
}

// CheckDistributor reports whether caller may notify rewards in token.
func (s *Streamer) CheckDistributor(caller crypto.Address, token string) error {
	r, ok := s.rewards[normalizeToken(token)]
	if !ok {
		return ErrUnknownToken
	}
	if !r.isDistributor(caller) {
		return ErrNotDistributor
	}
	return nil
}

// LastTimeRewardApplicable returns min(now, periodFinish).
func (s *Streamer) LastTimeRewardApplicable(token string) uint64 {
	r, ok := s.rewards[normalizeToken(token)]
	if !ok {
		return 0
	}
	return s.lastTimeApplicable(r, s.now())
}

func (s *Streamer) lastTimeApplicable(r *Reward, now uint64) uint64 {
	if now < r.PeriodFinish {
		return now
	}
	return r.PeriodFinish
}

// RewardPerToken returns the accumulated reward per staked unit, scaled by 1e18.
func (s *Streamer) RewardPerToken(token string) *uint256.Int {
	r, ok := s.rewards[normalizeToken(token)]
	if !ok {
		return new(uint256.Int)
	}
	return s.rewardPerToken(r, s.now())
}

func (s *Streamer) rewardPerToken(r *Reward, now uint64) *uint256.Int {
	stored := new(uint256.Int).Set(r.RewardPerTokenStored)
	if s.totalSupply.IsZero() {
		return stored
	}
	last := s.lastTimeApplicable(r, now)
	if last <= r.LastUpdateTime {
		return stored
	}
	elapsed := uint256.NewInt(last - r.LastUpdateTime)
	accrued := new(uint256.Int).Mul(elapsed, r.RewardRate)
	accrued.Mul(accrued, precision)
	accrued.Div(accrued, s.totalSupply)
	return stored.Add(stored, accrued)
}

// Earned returns the reward in token claimable by account.
func (s *Streamer) Earned(account crypto.Address, token string) *uint256.Int {
	token = normalizeToken(token)
	r, ok := s.rewards[token]
	if !ok {
		return new(uint256.Int)
	}
	return s.earned(account, token, s.rewardPerToken(r, s.now()))
}

func (s *Streamer) earned(account crypto.Address, token string, perToken *uint256.Int) *uint256.Int {
	key := userKey{account, token}
	paid := new(uint256.Int)
	if p, ok := s.paid[key]; ok {
		paid.Set(p)
	}
	delta := new(uint256.Int).Sub(perToken, paid)
	out := new(uint256.Int).Mul(s.BalanceOf(account), delta)
	out.Div(out, precision)
	if acc, ok := s.accrued[key]; ok {
		out.Add(out, acc)
	}
	return out
}

// RewardForDuration returns rewardRate * rewardsDuration.
func (s *Streamer) RewardForDuration(token string) *uint256.Int {
	r, ok := s.rewards[normalizeToken(token)]
	if !ok {
		return new(uint256.Int)
	}
	return new(uint256.Int).Mul(r.RewardRate, uint256.NewInt(r.RewardsDuration))
}

// updateReward checkpoints every stream and, for a non-zero account, its
// earned rewards.
func (s *Streamer) updateReward(account crypto.Address, now uint64) {
	for _, token := range s.tokens {
		r := s.rewards[token]
		r.RewardPerTokenStored = s.rewardPerToken(r, now)
		r.LastUpdateTime = s.lastTimeApplicable(r, now)
		if account.IsZero() {
			continue
		}
		key := userKey{account, token}
		s.accrued[key] = s.earned(account, token, r.RewardPerTokenStored)
		s.paid[key] = new(uint256.Int).Set(r.RewardPerTokenStored)
	}
}

// NotifyRewardAmount pulls amount of token from caller and starts a new epoch.
// An unfinished epoch's undistributed remainder is folded into the new rate.
func (s *Streamer) NotifyRewardAmount(caller crypto.Address, token string, amount *uint256.Int) error {
	token = normalizeToken(token)
	if err := s.CheckDistributor(caller, token); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return nil
	}
	if s.bank.BalanceOf(token, caller).Lt(amount) {
		return fmt.Errorf("%w: distributor balance below reward", bank.ErrInsufficientBalance)
	}
	now := s.now()
	r := s.rewards[token]
	duration := uint256.NewInt(r.RewardsDuration)

	rate := new(uint256.Int)
	if now >= r.PeriodFinish {
		rate.Div(amount, duration)
	} else {
		leftover := new(uint256.Int).Mul(uint256.NewInt(r.PeriodFinish-now), r.RewardRate)
		rate.Add(amount, leftover)
		rate.Div(rate, duration)
	}
	available := new(uint256.Int).Add(s.bank.BalanceOf(token, s.account), amount)
	if token == s.stakeToken {
		available = saturatingSub(available, s.totalSupply)
	}
	if rate.Gt(new(uint256.Int).Div(available, duration)) {
		return ErrRewardTooHigh
	}

	s.updateReward(crypto.ZeroAddress, now)
	if err := s.bank.Transfer(token, caller, s.account, amount); err != nil {
		return err
	}
	r.RewardRate = rate
	r.LastUpdateTime = now
	r.PeriodFinish = now + r.RewardsDuration
	s.emitter.Emit(events.RewardAdded{Token: token, Amount: new(uint256.Int).Set(amount), RewardRate: new(uint256.Int).Set(rate), PeriodFinish: r.PeriodFinish})
	return nil
}

func saturatingSub(a, b *uint256.Int) *uint256.Int {
	if a.Lt(b) {
		return new(uint256.Int)
	}
	return new(uint256.Int).Sub(a, b)
}

// Stake deposits amount of the stake token for account.
func (s *Streamer) Stake(account crypto.Address, amount *uint256.Int) error {
	if err := nativecommon.Guard(s.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.IsZero() {
		return ErrZeroAmount
	}
	if s.bank.BalanceOf(s.stakeToken, account).Lt(amount) {
		return bank.ErrInsufficientBalance
	}
	s.updateReward(account, s.now())
	if err := s.bank.Transfer(s.stakeToken, account, s.account, amount); err != nil {
		return err
	}
	s.totalSupply.Add(s.totalSupply, amount)
	bal := s.BalanceOf(account)
	s.balances[account] = bal.Add(bal, amount)
	s.emitter.Emit(events.Staked{Account: account, Amount: new(uint256.Int).Set(amount)})
	return nil
}

// Withdraw returns amount of staked tokens to account.
func (s *Streamer) Withdraw(account crypto.Address, amount *uint256.Int) error {
	if err := nativecommon.Guard(s.pauses, moduleName); err != nil {
		return err
	}
	return s.withdraw(account, amount, s.now())
}

func (s *Streamer) withdraw(account crypto.Address, amount *uint256.Int, now uint64) error {
	if amount == nil || amount.IsZero() {
		return ErrZeroWithdraw
	}
	bal := s.BalanceOf(account)
	if bal.Lt(amount) {
		return ErrInsufficientStake
	}
	s.updateReward(account, now)
	if err := s.bank.Transfer(s.stakeToken, s.account, account, amount); err != nil {
		return err
	}
	s.totalSupply.Sub(s.totalSupply, amount)
	bal.Sub(bal, amount)
	if bal.IsZero() {
		delete(s.balances, account)
	} else {
		s.balances[account] = bal
	}
	s.emitter.Emit(events.Withdrawn{Account: account, Amount: new(uint256.Int).Set(amount)})
	return nil
}

// GetReward pays every accrued reward to account.
func (s *Streamer) GetReward(account crypto.Address) (map[string]*uint256.Int, error) {
	if err := nativecommon.Guard(s.pauses, moduleName); err != nil {
		return nil, err
	}
	return s.getReward(account, s.now())
}

func (s *Streamer) getReward(account crypto.Address, now uint64) (map[string]*uint256.Int, error) {
	s.updateReward(account, now)
	paid := make(map[string]*uint256.Int)
	for _, token := range s.tokens {
		key := userKey{account, token}
		reward, ok := s.accrued[key]
		if !ok || reward.IsZero() {
			continue
		}
		if err := s.bank.Transfer(token, s.account, account, reward); err != nil {
			return paid, err
		}
		delete(s.accrued, key)
		paid[token] = new(uint256.Int).Set(reward)
		s.emitter.Emit(events.RewardPaid{Account: account, Token: token, Amount: new(uint256.Int).Set(reward)})
	}
	return paid, nil
}

// Exit withdraws the whole stake and claims every reward.
func (s *Streamer) Exit(account crypto.Address) (map[string]*uint256.Int, error) {
	if err := nativecommon.Guard(s.pauses, moduleName); err != nil {
		return nil, err
	}
	now := s.now()
	if bal := s.BalanceOf(account); !bal.IsZero() {
		if err := s.withdraw(account, bal, now); err != nil {
			return nil, err
		}
	}
	return s.getReward(account, now)
}

// UserReward is the exported per-account, per-token checkpoint.
type UserReward struct {
	Account crypto.Address
	Token   string
	Paid    *uint256.Int
	Accrued *uint256.Int
}

// TokenState is the exported stream of one token.
type TokenState struct {
	Token  string
	Reward *Reward
}

// StakeBalance is the exported stake of one account.
type StakeBalance struct {
	Account crypto.Address
	Amount  *uint256.Int
}

// Snapshot is the exportable streamer state.
type Snapshot struct {
	Tokens   []TokenState
	Balances []StakeBalance
	Users    []UserReward
}

// Export returns a deep copy of the streamer state in deterministic order.
func (s *Streamer) Export() Snapshot {
	var snap Snapshot
	for _, token := range s.tokens {
		snap.Tokens = append(snap.Tokens, TokenState{Token: token, Reward: s.rewards[token].clone()})
	}
	for account, amount := range s.balances {
		snap.Balances = append(snap.Balances, StakeBalance{Account: account, Amount: new(uint256.Int).Set(amount)})
	}
	sort.Slice(snap.Balances, func(i, j int) bool {
		return bytes.Compare(snap.Balances[i].Account[:], snap.Balances[j].Account[:]) < 0
	})
	keys := make(map[userKey]bool)
	for key := range s.paid {
		keys[key] = true
	}
	for key := range s.accrued {
		keys[key] = true
	}
	for key := range keys {
		entry := UserReward{Account: key.account, Token: key.token, Paid: new(uint256.Int), Accrued: new(uint256.Int)}
		if p, ok := s.paid[key]; ok {
			entry.Paid.Set(p)
		}
		if a, ok := s.accrued[key]; ok {
			entry.Accrued.Set(a)
		}
		snap.Users = append(snap.Users, entry)
	}
	sort.Slice(snap.Users, func(i, j int) bool {
		if c := bytes.Compare(snap.Users[i].Account[:], snap.Users[j].Account[:]); c != 0 {
			return c < 0
		}
		return snap.Users[i].Token < snap.Users[j].Token
	})
	return snap
}

// Import replaces the streamer state with snap.
func (s *Streamer) Import(snap Snapshot) {
	s.tokens = nil
	s.rewards = make(map[string]*Reward)
	for _, ts := range snap.Tokens {
		if ts.Reward == nil {
			continue
		}
		s.tokens = append(s.tokens, ts.Token)
		s.rewards[ts.Token] = ts.Reward.clone()
	}
	s.balances = make(map[crypto.Address]*uint256.Int)
	s.totalSupply = new(uint256.Int)
	for _, b := range snap.Balances {
		if b.Amount == nil {
			continue
		}
		s.balances[b.Account] = new(uint256.Int).Set(b.Amount)
		s.totalSupply.Add(s.totalSupply, b.Amount)
	}
	s.paid = make(map[userKey]*uint256.Int)
	s.accrued = make(map[userKey]*uint256.Int)
	for _, u := range snap.Users {
		key := userKey{u.Account, u.Token}
		if u.Paid != nil {
			s.paid[key] = new(uint256.Int).Set(u.Paid)
		}
		if u.Accrued != nil && !u.Accrued.IsZero() {
			s.accrued[key] = new(uint256.Int).Set(u.Accrued)
		}
	}
}
