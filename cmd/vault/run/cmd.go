// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package run

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/luxfi/database/badgerdb"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/vault"
	"github.com/luxfi/vault/api"
	"github.com/luxfi/vault/rewards"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "vault",
		Short: "Runs a vault and serves its API",
		RunE:  runFunc,
	}
	AddFlags(c.Flags())
	return c
}

func runFunc(c *cobra.Command, args []string) error {
	parsed, err := ParseFlags(c.Flags(), args)
	if err != nil {
		return err
	}

	logger := log.NewLogger("vault")

	db, err := badgerdb.New(parsed.DBDir, nil, "", nil)
	if err != nil {
		return err
	}

	registry := rewards.NewRegistry()
	factory := vault.Factory{
		Params: vault.Params{
			VaultID:      parsed.VaultID,
			Config:       parsed.Config,
			DB:           db,
			Oracle:       registry,
			FeeRecipient: parsed.FeeRecipient,
			Log:          logger,
			Registerer:   metric.NewRegistry(),
		},
	}

	var v *vault.Vault
	if len(parsed.Depositors) > 0 {
		v, err = factory.NewPrivate(parsed.Depositors...)
	} else {
		v, err = factory.NewOpen()
	}
	if err != nil {
		return err
	}
	defer func() {
		_ = v.Close()
	}()

	handler, err := api.NewHandler(v, logger)
	if err != nil {
		return err
	}
	oracleHandler, err := api.NewOracleHandler(registry, logger)
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	router.Handle("/ext/vault", handler)
	router.Handle("/ext/vault/oracle", oracleHandler)
	router.Handle("/ext/vault/events", v.Events().Server())

	logger.Info("serving vault API",
		log.String("addr", parsed.HTTPAddr),
		log.Stringer("vaultID", parsed.VaultID),
	)
	return http.ListenAndServe(parsed.HTTPAddr, router)
}
