package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/G-Research/cliffbench/internal/common/benchctx"
)

// CreateContextWithShutdown returns a context that is cancelled on the first SIGINT or SIGTERM. A campaign
// cancelled this way stops probing and still writes what it found so far.
func CreateContextWithShutdown(log *logrus.Entry) *benchctx.Context {
	return withShutdown(benchctx.New(context.Background(), log), syscall.SIGINT, syscall.SIGTERM)
}

func withShutdown(parent *benchctx.Context, signals ...os.Signal) *benchctx.Context {
	ctx, cancel := benchctx.WithCancel(parent)
	c := make(chan os.Signal, 1)
	signal.Notify(c, signals...)
	go func() {
		defer signal.Stop(c)
		select {
		case sig := <-c:
			ctx.Log.Warnf("received %s, finishing the current probe and stopping", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
