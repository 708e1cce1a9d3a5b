// Package main provides a one-shot dice roller: "roll 2d6 1d20" prints the
// outcome, rolling locally or against a running roll service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/cory-johannsen/rollbot/internal/dice"
	"github.com/cory-johannsen/rollbot/internal/rollserver"
)

func main() {
	addr := flag.String("addr", "", "roll service address; empty rolls locally")
	asJSON := flag.Bool("json", false, "print the outcome as JSON")
	seed := flag.Uint64("seed", 0, "seed for reproducible local rolls; 0 uses crypto/rand")
	maxDice := flag.Uint64("max-dice", 100000, "maximum dice per roll; 0 disables the cap")
	timeout := flag.Duration("timeout", 5*time.Second, "overall timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <dice...>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	notation := strings.Join(flag.Args(), " ")
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var client rollserver.RollServiceClient
	if *addr != "" {
		c, conn, err := rollserver.Dial(*addr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "connecting to %s: %v\n", *addr, err)
			os.Exit(2)
		}
		defer conn.Close()
		client = c
	} else {
		src := dice.NewCryptoSource()
		if *seed != 0 {
			src = dice.NewSeededSource(*seed)
		}
		roller := dice.NewLoggedRoller(src, zap.NewNop(), *maxDice)
		client = localClient{rollserver.NewServer(roller, 0, zap.NewNop())}
	}

	out, err := run(ctx, client, notation, *asJSON)
	if err != nil {
		// The status message is the user-facing explanation.
		fmt.Fprintln(os.Stderr, status.Convert(err).Message())
		os.Exit(1)
	}
	fmt.Println(out)
}

func run(ctx context.Context, client rollserver.RollServiceClient, notation string, asJSON bool) (string, error) {
	in := wrapperspb.String(notation)
	if !asJSON {
		out, err := client.Evaluate(ctx, in)
		if err != nil {
			return "", err
		}
		return out.GetValue(), nil
	}

	st, err := client.Roll(ctx, in)
	if err != nil {
		return "", err
	}
	b, err := protojson.MarshalOptions{Multiline: true}.Marshal(st)
	if err != nil {
		return "", errors.Join(errors.New("encoding outcome"), err)
	}
	return string(b), nil
}
