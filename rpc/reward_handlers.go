package rpc

import (
	"encoding/json"
	"net/http"

	"cdpledger/crypto"
)

func (s *Server) handleStake(_ *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p stakeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.system.Stake(actor, amount); err != nil {
		return nil, err
	}
	return s.stakeResult(actor), nil
}

func (s *Server) handleWithdraw(_ *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p stakeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", p.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.system.Withdraw(actor, amount); err != nil {
		return nil, err
	}
	return s.stakeResult(actor), nil
}

func (s *Server) handleGetReward(_ *http.Request, actor crypto.Address, _ []json.RawMessage) (interface{}, error) {
	paid, err := s.system.GetReward(actor)
	if err != nil {
		return nil, err
	}
	return RewardsResult{Paid: amountMap(paid)}, nil
}

func (s *Server) handleExit(_ *http.Request, actor crypto.Address, _ []json.RawMessage) (interface{}, error) {
	paid, err := s.system.Exit(actor)
	if err != nil {
		return nil, err
	}
	return RewardsResult{Paid: amountMap(paid)}, nil
}

func (s *Server) handleSetRewardsDuration(_ *http.Request, actor crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p durationParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Token == "" {
		return nil, invalidParams("token is required", nil)
	}
	if err := s.system.SetRewardsDuration(actor, p.Token, p.Duration); err != nil {
		return nil, err
	}
	return s.rewardData(p.Token)
}

func (s *Server) handleGetStake(_ *http.Request, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p accountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := requireAddress("account", p.Account); err != nil {
		return nil, err
	}
	return s.stakeResult(p.Account), nil
}

func (s *Server) handleGetRewardData(_ *http.Request, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p tokenParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return s.rewardData(p.Token)
}

func (s *Server) rewardData(token string) (interface{}, error) {
	reward, err := s.system.RewardData(token)
	if err != nil {
		return nil, err
	}
	return rewardDataResult(token, reward), nil
}

func (s *Server) stakeResult(account crypto.Address) StakeResult {
	info := s.system.StakeInfo(account)
	return StakeResult{Account: account, Staked: amountString(info.Staked), Earned: amountMap(info.Earned)}
}
