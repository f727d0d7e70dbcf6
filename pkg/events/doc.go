/*
Package events provides an in-memory event broker for the engine's
pub/sub notifications.

pkg/depgraph emits one types.Event each time an Action reaches a terminal
status: SUCCEEDED, FAILED or CANCELLED (including every action a failure
or cancel cascade reaches). Earlier transitions such as INIT→READY or
READY→RUNNING emit no event. Broker fans these out to whatever is listening —
structured logging, a metrics counter, a CLI --watch stream — without
coupling the action engine to any particular consumer.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for ev := range sub {
			fmt.Printf("[%s] %s %s: %s\n", ev.Timestamp.Format(time.RFC3339),
				ev.OType, ev.Action, ev.Status)
		}
	}()

	broker.Emit(ctx, types.Event{
		OID: cluster.ID, OType: "cluster", Action: string(types.ClusterResize),
		Status: string(types.ActionSucceeded),
	})

# Design notes

Emit waits only for room in the broker's 100-event queue (or for Stop);
delivery to subscribers is best-effort: a full subscriber buffer drops
the event for that subscriber rather than stalling the broadcast. Delivery
order across subscribers is not guaranteed beyond "broadcast loop
processes eventCh in order." Broker itself implements Sink, so it can
be swapped for a no-op or a test double wherever Sink is accepted.

# See also

  - pkg/depgraph for the transitions that produce these events
  - pkg/health for the periodic checks that originate CLUSTER_CHECK events
*/
package events
