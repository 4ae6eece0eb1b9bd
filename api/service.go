// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package api exposes the vault over JSON-RPC. The service is a thin
// translation layer; all invariants live below it.
package api

import (
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/vault"
	"github.com/luxfi/vault/events"
	"github.com/luxfi/vault/rewards"

	avajson "github.com/luxfi/vault/utils/json"
)

// Name of the service, used as the JSON-RPC namespace.
const Name = "vault"

var errNoTicket = errors.New("argument 'ticket' not given")

// Service defines the API calls that can be made to the vault.
type Service struct {
	vault *vault.Vault
	log   log.Logger
}

// NewHandler returns the JSON-RPC handler serving [v].
func NewHandler(v *vault.Vault, logger log.Logger) (http.Handler, error) {
	codec := json2.NewCodec()

	rpcServer := rpc.NewServer()
	rpcServer.RegisterCodec(codec, "application/json")
	rpcServer.RegisterCodec(codec, "application/json;charset=UTF-8")
	if err := rpcServer.RegisterService(&Service{vault: v, log: logger}, Name); err != nil {
		return nil, err
	}
	return rpcServer, nil
}

type GetTotalsReply struct {
	TotalShares     avajson.Uint64 `json:"totalShares"`
	TotalAssets     avajson.Uint64 `json:"totalAssets"`
	QueuedShares    avajson.Uint64 `json:"queuedShares"`
	UnclaimedAssets avajson.Uint64 `json:"unclaimedAssets"`
	LiquidAssets    avajson.Uint64 `json:"liquidAssets"`
	RewardsNonce    avajson.Uint64 `json:"rewardsNonce"`
	Collateralized  bool           `json:"collateralized"`
}

// GetTotals returns the vault-wide accounting state.
func (s *Service) GetTotals(_ *http.Request, _ *struct{}, reply *GetTotalsReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "getTotals"),
	)

	reply.TotalShares = avajson.Uint64(s.vault.TotalShares())
	reply.TotalAssets = avajson.Uint64(s.vault.TotalAssets())
	reply.QueuedShares = avajson.Uint64(s.vault.QueuedShares())
	reply.UnclaimedAssets = avajson.Uint64(s.vault.UnclaimedAssets())
	reply.LiquidAssets = avajson.Uint64(s.vault.LiquidAssets())
	reply.RewardsNonce = avajson.Uint64(s.vault.RewardsNonce())
	reply.Collateralized = s.vault.Collateralized()
	return nil
}

type GetBalanceArgs struct {
	Holder string `json:"holder"`
}

type GetBalanceReply struct {
	Shares avajson.Uint64 `json:"shares"`
}

// GetBalance returns the share balance of a holder.
func (s *Service) GetBalance(_ *http.Request, args *GetBalanceArgs, reply *GetBalanceReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "getBalance"),
	)

	holder, err := ids.ShortFromString(args.Holder)
	if err != nil {
		return err
	}
	reply.Shares = avajson.Uint64(s.vault.Balance(holder))
	return nil
}

type ConvertArgs struct {
	Amount avajson.Uint64 `json:"amount"`
}

type ConvertReply struct {
	Amount avajson.Uint64 `json:"amount"`
}

// ConvertToShares returns the shares [args.Amount] assets would mint at the
// current exchange rate.
func (s *Service) ConvertToShares(_ *http.Request, args *ConvertArgs, reply *ConvertReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "convertToShares"),
	)

	shares, err := s.vault.ConvertToShares(uint64(args.Amount))
	reply.Amount = avajson.Uint64(shares)
	return err
}

// ConvertToAssets returns the assets [args.Amount] shares represent at the
// current exchange rate.
func (s *Service) ConvertToAssets(_ *http.Request, args *ConvertArgs, reply *ConvertReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "convertToAssets"),
	)

	assets, err := s.vault.ConvertToAssets(uint64(args.Amount))
	reply.Amount = avajson.Uint64(assets)
	return err
}

type DepositArgs struct {
	Holder string         `json:"holder"`
	Assets avajson.Uint64 `json:"assets"`
}

type DepositReply struct {
	Shares avajson.Uint64 `json:"shares"`
}

// Deposit accepts assets from a holder and mints shares.
func (s *Service) Deposit(_ *http.Request, args *DepositArgs, reply *DepositReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "deposit"),
	)

	holder, err := ids.ShortFromString(args.Holder)
	if err != nil {
		return err
	}
	shares, err := s.vault.Deposit(holder, uint64(args.Assets))
	reply.Shares = avajson.Uint64(shares)
	return err
}

type RedeemArgs struct {
	Holder string         `json:"holder"`
	Shares avajson.Uint64 `json:"shares"`
}

type RedeemReply struct {
	Assets avajson.Uint64 `json:"assets"`
}

// Redeem burns shares for an instant payout from the liquid balance.
func (s *Service) Redeem(_ *http.Request, args *RedeemArgs, reply *RedeemReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "redeem"),
	)

	holder, err := ids.ShortFromString(args.Holder)
	if err != nil {
		return err
	}
	assets, err := s.vault.Redeem(holder, uint64(args.Shares))
	reply.Assets = avajson.Uint64(assets)
	return err
}

type TransferArgs struct {
	From   string         `json:"from"`
	To     string         `json:"to"`
	Shares avajson.Uint64 `json:"shares"`
}

// Transfer moves shares between holders.
func (s *Service) Transfer(_ *http.Request, args *TransferArgs, _ *struct{}) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "transfer"),
	)

	from, err := ids.ShortFromString(args.From)
	if err != nil {
		return err
	}
	to, err := ids.ShortFromString(args.To)
	if err != nil {
		return err
	}
	return s.vault.Transfer(from, to, uint64(args.Shares))
}

type EnterExitQueueArgs struct {
	Holder string         `json:"holder"`
	Shares avajson.Uint64 `json:"shares"`
}

type EnterExitQueueReply struct {
	Ticket avajson.Uint64 `json:"ticket"`
}

// EnterExitQueue requests the exit of shares and returns the position ticket.
func (s *Service) EnterExitQueue(_ *http.Request, args *EnterExitQueueArgs, reply *EnterExitQueueReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "enterExitQueue"),
	)

	holder, err := ids.ShortFromString(args.Holder)
	if err != nil {
		return err
	}
	ticket, err := s.vault.EnterQueue(holder, uint64(args.Shares))
	reply.Ticket = avajson.Uint64(ticket)
	return err
}

type GetExitQueueIndexArgs struct {
	Ticket *avajson.Uint64 `json:"ticket"`
}

type GetExitQueueIndexReply struct {
	Index int `json:"index"`
}

// GetExitQueueIndex returns the index of the first checkpoint covering the
// ticket, needed to claim.
func (s *Service) GetExitQueueIndex(_ *http.Request, args *GetExitQueueIndexArgs, reply *GetExitQueueIndexReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "getExitQueueIndex"),
	)

	if args.Ticket == nil {
		return errNoTicket
	}
	index, err := s.vault.GetQueueIndex(uint64(*args.Ticket))
	reply.Index = index
	return err
}

type CalculateExitedAssetsArgs struct {
	Ticket avajson.Uint64 `json:"ticket"`
	Index  int            `json:"index"`
}

type CalculateExitedAssetsReply struct {
	LeftShares   avajson.Uint64 `json:"leftShares"`
	ExitedShares avajson.Uint64 `json:"exitedShares"`
	ExitedAssets avajson.Uint64 `json:"exitedAssets"`
}

// CalculateExitedAssets previews how much of a position the checkpoint log
// has resolved.
func (s *Service) CalculateExitedAssets(_ *http.Request, args *CalculateExitedAssetsArgs, reply *CalculateExitedAssetsReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "calculateExitedAssets"),
	)

	exited, err := s.vault.CalculateExited(uint64(args.Ticket), args.Index)
	if err != nil {
		return err
	}
	reply.LeftShares = avajson.Uint64(exited.LeftShares)
	reply.ExitedShares = avajson.Uint64(exited.ExitedShares)
	reply.ExitedAssets = avajson.Uint64(exited.ExitedAssets)
	return nil
}

type ClaimExitedAssetsArgs struct {
	Holder    string         `json:"holder"`
	Ticket    avajson.Uint64 `json:"ticket"`
	Timestamp avajson.Uint64 `json:"timestamp"`
	Index     int            `json:"index"`
}

type ClaimExitedAssetsReply struct {
	ClaimedAssets avajson.Uint64 `json:"claimedAssets"`
	NewTicket     avajson.Uint64 `json:"newTicket"`
	LeftShares    avajson.Uint64 `json:"leftShares"`
}

// ClaimExitedAssets pays out the processed portion of an exit position.
func (s *Service) ClaimExitedAssets(_ *http.Request, args *ClaimExitedAssetsArgs, reply *ClaimExitedAssetsReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "claimExitedAssets"),
	)

	holder, err := ids.ShortFromString(args.Holder)
	if err != nil {
		return err
	}
	result, err := s.vault.Claim(holder, uint64(args.Ticket), uint64(args.Timestamp), args.Index)
	if err != nil {
		return err
	}
	reply.ClaimedAssets = avajson.Uint64(result.ClaimedAssets)
	reply.NewTicket = avajson.Uint64(result.NewTicket)
	reply.LeftShares = avajson.Uint64(result.LeftShares)
	return nil
}

type APIAttestation struct {
	Epoch                    avajson.Uint64 `json:"epoch"`
	CumulativeReward         avajson.Int64  `json:"cumulativeReward"`
	CumulativeUnlockedReward avajson.Uint64 `json:"cumulativeUnlockedReward"`
	// Proof is the membership branch, one hex-encoded hash per level.
	Proof []string `json:"proof"`
}

type UpdateStateArgs struct {
	Attestations []APIAttestation `json:"attestations"`
}

// UpdateState applies pending reward attestations and, when due, creates an
// exit queue checkpoint.
func (s *Service) UpdateState(_ *http.Request, args *UpdateStateArgs, _ *struct{}) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "updateState"),
	)

	attestations := make([]rewards.Attestation, len(args.Attestations))
	for i, arg := range args.Attestations {
		proof := make([][]byte, len(arg.Proof))
		for j, node := range arg.Proof {
			decoded, err := hex.DecodeString(node)
			if err != nil {
				return err
			}
			proof[j] = decoded
		}
		attestations[i] = rewards.Attestation{
			Epoch:                    uint64(arg.Epoch),
			CumulativeReward:         int64(arg.CumulativeReward),
			CumulativeUnlockedReward: uint64(arg.CumulativeUnlockedReward),
			Proof:                    proof,
		}
	}
	return s.vault.UpdateState(attestations...)
}

type GetExitPositionsArgs struct {
	Holder string `json:"holder"`
}

type APIPosition struct {
	Ticket    avajson.Uint64 `json:"ticket"`
	Shares    avajson.Uint64 `json:"shares"`
	EnteredAt avajson.Uint64 `json:"enteredAt"`
}

type GetExitPositionsReply struct {
	Positions []APIPosition `json:"positions"`
}

// GetExitPositions lists the outstanding exit positions of a holder in queue
// order.
func (s *Service) GetExitPositions(_ *http.Request, args *GetExitPositionsArgs, reply *GetExitPositionsReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "getExitPositions"),
	)

	holder, err := ids.ShortFromString(args.Holder)
	if err != nil {
		return err
	}
	positions := s.vault.GetExitPositions(holder)
	reply.Positions = make([]APIPosition, len(positions))
	for i, position := range positions {
		reply.Positions[i] = APIPosition{
			Ticket:    avajson.Uint64(position.Ticket),
			Shares:    avajson.Uint64(position.Shares),
			EnteredAt: avajson.Uint64(position.EnteredAt),
		}
	}
	return nil
}

type GetFeeConfigReply struct {
	Recipient  string         `json:"recipient"`
	PercentBps uint16         `json:"percentBps"`
	UpdatedAt  avajson.Uint64 `json:"updatedAt"`
}

// GetFeeConfig returns the active fee configuration.
func (s *Service) GetFeeConfig(_ *http.Request, _ *struct{}, reply *GetFeeConfigReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "getFeeConfig"),
	)

	feeConfig := s.vault.FeeConfig()
	reply.Recipient = feeConfig.Recipient.String()
	reply.PercentBps = feeConfig.PercentBps
	reply.UpdatedAt = avajson.Uint64(feeConfig.UpdatedAt)
	return nil
}

type SetFeeArgs struct {
	Recipient  string `json:"recipient"`
	PercentBps uint16 `json:"percentBps"`
}

// SetFee updates the fee recipient and percentage.
func (s *Service) SetFee(_ *http.Request, args *SetFeeArgs, _ *struct{}) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "setFee"),
	)

	recipient, err := ids.ShortFromString(args.Recipient)
	if err != nil {
		return err
	}
	return s.vault.SetFee(recipient, args.PercentBps)
}

type GetRecentEventsArgs struct {
	Limit int `json:"limit"`
}

type GetRecentEventsReply struct {
	Events []*events.Event `json:"events"`
}

// GetRecentEvents returns up to [args.Limit] of the newest retained events,
// oldest first. Streaming consumers should subscribe to the pubsub endpoint
// instead.
func (s *Service) GetRecentEvents(_ *http.Request, args *GetRecentEventsArgs, reply *GetRecentEventsReply) error {
	s.log.Debug("API called",
		log.String("service", Name),
		log.String("method", "getRecentEvents"),
	)

	reply.Events = s.vault.Events().Recent(args.Limit)
	return nil
}
