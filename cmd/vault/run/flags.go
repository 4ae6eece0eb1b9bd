// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"github.com/spf13/pflag"

	"github.com/luxfi/ids"

	"github.com/luxfi/vault/config"
)

const (
	HTTPAddrKey     = "http-addr"
	DBDirKey        = "db-dir"
	VaultIDKey      = "vault-id"
	FeeRecipientKey = "fee-recipient"
	DepositorsKey   = "depositor"
	TicketOffsetKey = "ticket-offset"
)

func AddFlags(flags *pflag.FlagSet) {
	flags.String(HTTPAddrKey, "127.0.0.1:9750", "Address the HTTP server listens on")
	flags.String(DBDirKey, "db", "Directory for the vault database")
	flags.String(VaultIDKey, "", "ID of the vault to open (required)")
	flags.String(FeeRecipientKey, "", "Address receiving minted fee shares")
	flags.StringSlice(DepositorsKey, nil, "Admitted depositor address; repeatable. Empty means permissionless")
	flags.Uint64(TicketOffsetKey, 0, "Value to seed the exit queue cursor with at genesis")
}

type Flags struct {
	HTTPAddr     string
	DBDir        string
	VaultID      ids.ID
	FeeRecipient ids.ShortID
	Depositors   []ids.ShortID
	Config       config.Config
}

func ParseFlags(flags *pflag.FlagSet, args []string) (*Flags, error) {
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	httpAddr, err := flags.GetString(HTTPAddrKey)
	if err != nil {
		return nil, err
	}
	dbDir, err := flags.GetString(DBDirKey)
	if err != nil {
		return nil, err
	}

	vaultIDStr, err := flags.GetString(VaultIDKey)
	if err != nil {
		return nil, err
	}
	vaultID, err := ids.FromString(vaultIDStr)
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	if cfg.TicketOffset, err = flags.GetUint64(TicketOffsetKey); err != nil {
		return nil, err
	}

	parsed := &Flags{
		HTTPAddr: httpAddr,
		DBDir:    dbDir,
		VaultID:  vaultID,
		Config:   cfg,
	}

	feeRecipientStr, err := flags.GetString(FeeRecipientKey)
	if err != nil {
		return nil, err
	}
	if feeRecipientStr != "" {
		if parsed.FeeRecipient, err = ids.ShortFromString(feeRecipientStr); err != nil {
			return nil, err
		}
	}

	depositorStrs, err := flags.GetStringSlice(DepositorsKey)
	if err != nil {
		return nil, err
	}
	for _, depositorStr := range depositorStrs {
		depositor, err := ids.ShortFromString(depositorStr)
		if err != nil {
			return nil, err
		}
		parsed.Depositors = append(parsed.Depositors, depositor)
	}
	return parsed, nil
}
