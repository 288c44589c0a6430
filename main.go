package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

// main wires together the pieces NewServer needs and runs until an interrupt
// or terminate signal arrives. Grounded on ircd.go's func main (args ->
// config -> server -> start), generalized from a blocking server.start()
// call into a context cancelled by signal.Notify, since the reactor here
// takes a context rather than owning the process lifetime itself.
func main() {
	log.SetFlags(0)

	args := getArgs()
	if args == nil {
		os.Exit(1)
	}

	cfg, err := loadConfig(args.ConfigFile)
	if err != nil {
		log.Fatalf("unable to load configuration: %s", err)
	}

	hashing := newHashingProvider(args.BcryptCost, args.DisableHashing)
	store := NewMemoryDataStore()

	srv := NewServer(cfg, store, hashing)

	if err := srv.Listen(); err != nil {
		log.Fatalf("unable to listen: %s", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Printf("shutting down")
		cancel()
	}()

	srv.Run(ctx)
	srv.WG.Wait()

	log.Printf("server shutdown cleanly")
}

// newHashingProvider returns bcrypt unless disabled on the command line, in
// which case SASL PLAIN and OPER both shut themselves off via
// HashingProvider.Enabled(), per server.go's SASL mechanism gate.
func newHashingProvider(cost int, disable bool) HashingProvider {
	if disable {
		return disabledHashing{}
	}
	return NewBcryptHashing(cost)
}
