// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"encoding/hex"
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"

	"github.com/luxfi/log"

	"github.com/luxfi/vault/rewards"

	avajson "github.com/luxfi/vault/utils/json"
)

// OracleName is the JSON-RPC namespace of the committee surface.
const OracleName = "oracle"

// OracleService exposes the in-process attestation registry. Only deployments
// that run their own committee mount it; vaults backed by an external oracle
// have no use for it.
type OracleService struct {
	registry *rewards.Registry
	log      log.Logger
}

// NewOracleHandler returns the JSON-RPC handler serving [registry].
func NewOracleHandler(registry *rewards.Registry, logger log.Logger) (http.Handler, error) {
	codec := json2.NewCodec()

	rpcServer := rpc.NewServer()
	rpcServer.RegisterCodec(codec, "application/json")
	rpcServer.RegisterCodec(codec, "application/json;charset=UTF-8")
	if err := rpcServer.RegisterService(&OracleService{registry: registry, log: logger}, OracleName); err != nil {
		return nil, err
	}
	return rpcServer, nil
}

type PublishRootArgs struct {
	// Root is the hex-encoded merkle root over all vault leaves for the next
	// epoch.
	Root string `json:"root"`
}

type PublishRootReply struct {
	Epoch avajson.Uint64 `json:"epoch"`
}

// PublishRoot records the next epoch's rewards root and returns the epoch it
// was assigned.
func (s *OracleService) PublishRoot(_ *http.Request, args *PublishRootArgs, reply *PublishRootReply) error {
	s.log.Debug("API called",
		log.String("service", OracleName),
		log.String("method", "publishRoot"),
	)

	root, err := hex.DecodeString(args.Root)
	if err != nil {
		return err
	}
	epoch, err := s.registry.Publish(root)
	reply.Epoch = avajson.Uint64(epoch)
	return err
}

type GetCurrentEpochReply struct {
	Epoch avajson.Uint64 `json:"epoch"`
}

// GetCurrentEpoch returns the committee's publication counter.
func (s *OracleService) GetCurrentEpoch(_ *http.Request, _ *struct{}, reply *GetCurrentEpochReply) error {
	s.log.Debug("API called",
		log.String("service", OracleName),
		log.String("method", "getCurrentEpoch"),
	)

	reply.Epoch = avajson.Uint64(s.registry.CurrentEpoch())
	return nil
}

type GetRootArgs struct {
	Epoch avajson.Uint64 `json:"epoch"`
}

type GetRootReply struct {
	Root string `json:"root"`
}

// GetRoot returns the hex-encoded root published at an epoch.
func (s *OracleService) GetRoot(_ *http.Request, args *GetRootArgs, reply *GetRootReply) error {
	s.log.Debug("API called",
		log.String("service", OracleName),
		log.String("method", "getRoot"),
	)

	root, err := s.registry.Root(uint64(args.Epoch))
	if err != nil {
		return err
	}
	reply.Root = hex.EncodeToString(root)
	return nil
}
