// package storage implements [models.Storage] on Kvrocks, Redis and SQLite.
//
// The two key-value adapters speak the Redis protocol through one shared client handle built by
// [NewClient]. They share a key layout under "u:{username}:" and differ in how accounts and skip
// configs are indexed:
//
//	kind           kvrocks                              redis
//	play records   SCAN u:{u}:pr:* + MGET               same
//	favorites      SCAN u:{u}:fav:* + MGET              same
//	skip configs   SCAN u:{u}:skip_config:* + MGET      SMEMBERS katelyatv:skip_configs:{u} + MGET
//	accounts       SMEMBERS user_list + GET user:{u}    SCAN u:*:pwd + MGET u:{u}:created_at
//
// Every key-value call is retried on transient connection failures (see package retry) and
// counted in [Metrics]. Multi-step writes are not atomic; a failure part way leaves the earlier
// steps applied.
package storage
