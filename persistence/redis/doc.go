// Package redis provides Redis-based implementations of the onchain
// persistence interfaces.
//
// Persisting action records lets a restarted process find out which mints and
// saves were interrupted, and which of them already took the user's fee. It
// provides three store implementations:
//   - ActionStore: implements onchain.ActionStore for action records
//   - LocalStore: implements onchain.LocalStore for the notes, todos and investments lists
//   - InFlightGuard: implements inflight.Guard so one action per item runs at a time across processes
//
// # Basic Usage
//
//	import (
//	    "github.com/redis/go-redis/v9"
//	    "github.com/basenote/onchain"
//	    redisstore "github.com/basenote/onchain/persistence/redis"
//	)
//
//	client := redis.NewClient(&redis.Options{
//	    Addr: "localhost:6379",
//	})
//
//	o := onchain.NewOrchestrator(transport,
//	    onchain.WithActionStore(redisstore.NewActionStore(client)),
//	    onchain.WithLocalStore(redisstore.NewLocalStore(client)),
//	    onchain.WithGuard(redisstore.NewInFlightGuard(client)),
//	)
//
// # Multi-Tenant Usage
//
// Use key prefixes to isolate data for different users or environments:
//
//	aliceLocal := redisstore.NewLocalStore(client, redisstore.WithLocalStoreKeyPrefix("alice"))
//	bobLocal := redisstore.NewLocalStore(client, redisstore.WithLocalStoreKeyPrefix("bob"))
//
// # Redis Key Structure
//
// ActionStore uses the following key patterns:
//
//   - basenote:action:{id} - Record data (JSON)
//   - basenote:action:created_at - Sorted set of record ids by creation time
//
// LocalStore uses:
//
//   - basenote:local:{key} - Raw list JSON, e.g. basenote:local:basenote-notes
//
// InFlightGuard uses:
//
//   - basenote:inflight:{action}:{item} - Owner token, with TTL
//
// # Recovery
//
// On application restart, use Orchestrator.Recover to settle records left in a
// running state and to list the ones whose fee was paid without the call
// confirming.
//
// # Supported Redis Configurations
//
// Pass any redis.UniversalClient to the constructors. ActionStore writes a
// record and its index in one transaction, so on Cluster use a key prefix
// with a hash tag, e.g. "{basenote}".
package redis
