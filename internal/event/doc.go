// Package event provides a pub-sub event bus that lets the run coordinator
// report progress without depending on how progress is displayed.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Run lifecycle:
//   - [StateChangedEvent]: the coordinator moved to a new run state
//
// Unit results:
//   - [GenomeSearchedEvent]: one genome's profile search finished
//   - [MarkerFinishedEvent]: one marker's pipeline finished
//
// Result:
//   - [ConsensusBuiltEvent]: the species tree was written
//
// # Thread Safety
//
// All Bus methods are safe for concurrent use. Handlers run synchronously
// on the publishing goroutine, so search and marker workers may call
// Publish concurrently; handlers must therefore be safe for concurrent
// invocation. A panicking handler is recovered and logged, and delivery
// continues to the remaining handlers.
//
// # Basic Usage
//
//	bus := event.NewBus(logger)
//	bus.Subscribe(event.TypeMarkerFinished, func(e event.Event) {
//	    done := e.(event.MarkerFinishedEvent)
//	    fmt.Println(done.Marker, done.Success)
//	})
//	bus.Publish(event.NewMarkerFinishedEvent("K00001", true, "", 0))
package event
