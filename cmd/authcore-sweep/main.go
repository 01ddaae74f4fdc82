// Command authcore-sweep prunes dead refresh markers from the session
// registry.
//
// Markers expire on their own; the per-principal index sets can outlive
// them when a process dies between writes. The sweep walks every indexed
// principal, drops digests whose marker is gone, and deletes empty index
// sets.
//
// Run:
//
//	authcore-sweep -redis localhost:6379 -prefix authcore
//
// The sweep is safe to run against a live registry; it only removes
// entries that are already invalid.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stratushr/authcore/session"
)

func main() {
	var (
		redisAddr = flag.String("redis", "localhost:6379", "redis address")
		redisDB   = flag.Int("db", 0, "redis database")
		prefix    = flag.String("prefix", "authcore", "registry key prefix")
		timeout   = flag.Duration("timeout", 5*time.Minute, "overall sweep deadline")
		verbose   = flag.Bool("v", false, "log every principal touched")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: *redisAddr, DB: *redisDB})
	defer client.Close()

	store := session.NewStore(client, *prefix)

	if rtt, err := store.Ping(ctx); err != nil {
		log.Fatalf("redis unreachable at %s: %v", *redisAddr, err)
	} else if *verbose {
		log.Printf("connected to %s (rtt %s)", *redisAddr, rtt)
	}

	var principals, prunedTotal int
	start := time.Now()

	err := store.ScanPrincipals(ctx, func(principalID string) error {
		pruned, err := store.Reconcile(ctx, principalID)
		if err != nil {
			return fmt.Errorf("reconcile %s: %w", principalID, err)
		}
		principals++
		prunedTotal += pruned
		if *verbose && pruned > 0 {
			log.Printf("principal %s: pruned %d dead markers", principalID, pruned)
		}
		return nil
	})
	if err != nil {
		log.Printf("sweep aborted after %d principals: %v", principals, err)
		os.Exit(1)
	}

	log.Printf("swept %d principals, pruned %d dead markers in %s",
		principals, prunedTotal, time.Since(start).Round(time.Millisecond))
}
