// Package exchange implements the entry points of the CIS2 listings
// marketplace: sellers list tokens they hold on an external CIS2 ledger,
// buyers purchase listed tokens for CCD, and sellers liquidate listings
// against the CCD held by the instance.
//
// Entry points check their preconditions strictly in order and stop at the
// first failure. Listing changes happen only after every external call of an
// invocation succeeded.
package exchange

import (
	"context"
	"strconv"
	"time"

	dbm "github.com/tendermint/tm-db"

	"github.com/josidbobo/IDConcordiumDEX/internal/cis2"
	"github.com/josidbobo/IDConcordiumDEX/internal/host"
	"github.com/josidbobo/IDConcordiumDEX/internal/log"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/listing"
	"github.com/josidbobo/IDConcordiumDEX/internal/repository/settlement"
	"github.com/josidbobo/IDConcordiumDEX/pkg/model"
)

// Entrypoint names.
const (
	EntrypointAdd          = "add"
	EntrypointTransfer     = "transfer"
	EntrypointTransferCIS2 = "transfer_cis2"
	EntrypointList         = "list"
	EntrypointView         = "view"
	EntrypointOnReceiving  = "onReceivingCIS2"
	EntrypointSettlePayout = "settlePayout"
	EntrypointRelease      = "releaseReserved"
)

type Exchange[T model.TokenID, A model.TokenAmount] struct {
	rt      *host.Runtime[listing.Txn[T, A]]
	ledger  *cis2.Client[T, A]
	journal settlement.Journal
	events  EventSink
	metrics *Metrics
	logger  log.Logger
	now     func() time.Time
}

type Opts[T model.TokenID, A model.TokenAmount] struct {
	Runtime *host.Runtime[listing.Txn[T, A]]
	Ledger  *cis2.Client[T, A]
	Journal settlement.Journal
	Events  EventSink
	Metrics *Metrics
	Logger  log.Logger
}

func New[T model.TokenID, A model.TokenAmount](opts Opts[T, A]) *Exchange[T, A] {
	if opts.Events == nil {
		opts.Events = NopEventSink()
	}
	if opts.Metrics == nil {
		opts.Metrics = NopMetrics()
	}
	return &Exchange[T, A]{
		rt:      opts.Runtime,
		ledger:  opts.Ledger,
		journal: opts.Journal,
		events:  opts.Events,
		metrics: opts.Metrics,
		logger:  opts.Logger.With("module", "exchange"),
		now:     time.Now,
	}
}

// Init creates the empty listing store of a new instance. The amount of the
// parameter hints at the number of listings one invocation touches.
func Init[T model.TokenID, A model.TokenAmount](params InitParams) *listing.KVStore[T, A] {
	return listing.NewKVStore[T, A](dbm.NewMemDB(), int(params.Amount))
}

func (e *Exchange[T, A]) invoke(ctx context.Context, call host.Call, fn func(ctx context.Context, inv *host.Invocation, state listing.Txn[T, A]) error) error {
	start := e.now()
	err := e.rt.Invoke(ctx, call, fn)
	e.observe(call.Entrypoint, start, err)
	return err
}

func (e *Exchange[T, A]) observe(entrypoint string, start time.Time, err error) {
	code := "0"
	if err != nil {
		code = "error"
		if rc, ok := RejectCode(err); ok {
			code = strconv.Itoa(int(rc))
		}
	}
	e.metrics.Invocations.With("entrypoint", entrypoint, "code", code).Add(1)
	e.metrics.InvocationSeconds.With("entrypoint", entrypoint).Observe(e.now().Sub(start).Seconds())
}
