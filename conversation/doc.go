/*
Package conversation implements the multi-agent group conversation engine.

The engine is a stateful control loop over one shared transcript: a
supervisor model picks who speaks next (Selector), the chosen agent
generates a reply through its configured model (Generator), and the
supervisor periodically decides whether the group exchange has naturally
concluded (Terminator). The Executor drives these components as an
explicit state machine and exposes its output as a stream of Events
consumed incrementally by the transport layer.

Key behaviors:

  - The transcript is append-only; a turn is never edited or elided.
  - Events are emitted in strict execution order within one run; a
    terminal event (conversation_complete, paused, or error) is always
    the last emission.
  - The agent roster is registered into an AgentRegistry owned by the
    run and unregistered on every exit path.
  - Cancellation is cooperative: the executor observes the run context
    and an optional liveness flag at every iteration boundary and exits
    silently when the consumer is gone.

The Manager wraps the executor with roster resolution, transcript
resumption, and a concurrency cap, and is the entry point used by the
transport wiring in cmd/parley.
*/
package conversation
