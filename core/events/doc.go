// Package events defines the typed session event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - session.*
//   - turn.*
//   - topic.*
//   - stage.*
//
// session events
//
//   - SessionStateChanged (session.state_changed): the orchestrator moved
//     between STARTING, RUNNING, CLOSING and DONE.
//   - SummaryRefreshed (session.summary_refreshed): the running summary was
//     regenerated after a commit.
//
// turn events
//
//   - TurnReady (turn.ready): a slot finished production and can be presented.
//   - GenerationFailed (turn.generation_failed): production for a slot failed
//     after exhausting its retries.
//   - BridgingInserted (turn.bridging): a bridging turn replaced a slot that
//     kept failing.
//   - TurnPresented (turn.presented): a turn was handed to the stage.
//   - PresentationFailed (turn.presentation_failed): the stage could not play
//     a turn; the turn is dropped, not re-queued.
//   - TurnCommitted (turn.committed): a presented turn completed and was
//     appended to the conversation.
//
// topic events
//
//   - TopicChanged (topic.changed): the effective topic or its source changed.
//
// stage events
//
//   - StageIdle (stage.idle): nothing presentable was at the head of the
//     queue, so the stage was put on its idle scene.
package events
