// Command availcore-node runs the availability recovery engine as a
// standalone process: a siamux-backed network bridge, a bolt-backed
// local store, and the debug HTTP API, wired together the way the
// teacher's own siad wires a Gateway/ConsensusSet/Renter trio behind a
// single listen address.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"gitlab.com/NebulousLabs/log"
	"gitlab.com/NebulousLabs/siamux"

	"go.thebigfile.com/availcore/api"
	"go.thebigfile.com/availcore/availabilitystore"
	"go.thebigfile.com/availcore/crypto"
	"go.thebigfile.com/availcore/erasurecodec"
	"go.thebigfile.com/availcore/modules"
	"go.thebigfile.com/availcore/networkbridge"
	"go.thebigfile.com/availcore/recovery"
)

// config holds the process's command-line-derived settings.
type config struct {
	storeDir    string
	apiAddr     string
	muxAddr     string
	fastPath    bool
	reputation  int
	logFilePath string
}

func main() {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "availcore-node",
		Short: "Run the availability recovery node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfg)
		},
	}

	flags := root.Flags()
	flags.StringVar(&cfg.storeDir, "store-dir", "availcore-data", "directory holding the local availability store")
	flags.StringVar(&cfg.apiAddr, "api-addr", "localhost:9980", "address the debug API listens on")
	flags.StringVar(&cfg.muxAddr, "mux-addr", ":9981", "address the peer-to-peer mux listens on")
	flags.BoolVar(&cfg.fastPath, "fast-path", true, "query the candidate's backing group before falling back to chunk recovery")
	flags.IntVar(&cfg.reputation, "reputation-cost", 1, "reputation cost logged for peers sending malformed requests")
	flags.StringVar(&cfg.logFilePath, "log-file", "availcore-node.log", "path to the log file")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfg *config) error {
	if err := os.MkdirAll(cfg.storeDir, 0700); err != nil {
		return errors.Wrap(err, "creating store directory")
	}

	logger, err := log.NewFileLogger(cfg.logFilePath)
	if err != nil {
		return errors.Wrap(err, "opening log file")
	}
	defer logger.Close()

	store, err := availabilitystore.Open(filepath.Join(cfg.storeDir, "availcore.db"))
	if err != nil {
		return errors.Wrap(err, "opening availability store")
	}
	defer store.Close()

	mux, _, err := siamux.New(cfg.muxAddr, cfg.muxAddr, logger, cfg.storeDir)
	if err != nil {
		return errors.Wrap(err, "starting peer mux")
	}
	defer mux.Close()

	bridge, err := networkbridge.New(mux, store, logger)
	if err != nil {
		return errors.Wrap(err, "starting network bridge")
	}
	defer bridge.Close()

	codec := &erasurecodec.Codec{}
	oracle := &unavailableSessionOracle{}

	coordinator := recovery.NewCoordinator(oracle, bridge, store, codec, codec, cfg.fastPath, logger)
	defer coordinator.Close()

	subsystem := recovery.NewSubsystem(coordinator, bridge, store, cfg.reputation, logger)

	router := httprouter.New()
	api.RegisterRoutes(router, coordinator)

	apiServer := &http.Server{Addr: cfg.apiAddr, Handler: router}
	listener, err := net.Listen("tcp", cfg.apiAddr)
	if err != nil {
		return errors.Wrap(err, "starting debug API listener")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	go func() {
		if serveErr := apiServer.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Println("debug API server exited:", serveErr)
		}
	}()

	runErr := subsystem.Run(ctx)
	_ = apiServer.Close()
	if runErr != nil && runErr != context.Canceled {
		return errors.Wrap(runErr, "subsystem exited")
	}
	return nil
}

// unavailableSessionOracle is the SessionInfoOracle used when no
// chain-following integration is wired in; every query fails, which
// degrades every recovery to Unavailable rather than panicking. A
// production deployment replaces this with an oracle backed by the
// host chain's own session-info runtime call.
type unavailableSessionOracle struct{}

func (unavailableSessionOracle) SessionInfo(ctx context.Context, liveBlockHash crypto.Hash, sessionIndex uint32) (modules.SessionContext, error) {
	return modules.SessionContext{}, modules.ErrSessionInfoUnavailable
}
