// Package conversation holds per-session conversational state and the
// Manager that owns it.
//
// A Session carries the clarification loop state, the trust level and the
// dominant tone element, plus a bounded history of recent turns used as
// detector context. Sessions are never shared: callers Acquire a Lease,
// read a snapshot, and Commit the next state once the turn is complete.
// A lease serializes turns for one session; different sessions never
// contend.
//
// # Usage
//
//	mgr := conversation.NewManager(conversation.ManagerConfig{TTL: 30 * time.Minute}, logger)
//	id := mgr.Create().ID
//
//	lease, err := mgr.Acquire(ctx, id)
//	if err != nil {
//	    return err
//	}
//	defer lease.Release()
//	s := lease.Session()
//	// ... compute the turn ...
//	err = lease.Commit(next)
//
// Idle sessions are removed by Sweep, which Run calls on an interval.
package conversation
