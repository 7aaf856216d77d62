// Package work is the connectivity orchestrator of the edge agent.
//
// It sequences network acquisition, configuration retrieval, broker
// connect and subscribe, then pumps messages in both directions until the
// session is lost, at which point it recovers on its own.
//
// # Event Loop
//
// Everything the orchestrator reacts to arrives as an Event on a bounded
// Queue: transport notifications (translated by Demux), application
// requests (Produce, Retry) and timer expiries. Run consumes the queue on a
// single goroutine and handles one event to completion before the next, so
// the orchestration State needs no locking. The queue never blocks a
// producer; when it is full the newest event is dropped and counted.
//
// # Phases
//
//	Idle -> AcquiringNetwork -> FetchingConfig -> ConnectingBroker
//	     -> Subscribing -> Ready -> Disconnecting / Reconnecting
//
// There is no terminal phase. A configuration that cannot be decoded parks
// the machine in Idle until Retry is called; every other failure is
// retried with capped exponential backoff while the network is up.
//
// # Flow Control
//
// At most one inbound message is handed to the Consumer at a time. A second
// message is left in the transport until the consumer calls Consumed, which
// acknowledges the first and releases the second.
//
// # Usage
//
//	queue := work.NewQueue(16)
//	demux := work.NewDemux(queue, log)
//	provider := channel.NewProvider(..., demux.Notify)
//	orch, err := work.New(cfg, work.Deps{
//	    Provider:    provider,
//	    Queue:       queue,
//	    Credentials: bridge,
//	    Consumer:    app,
//	})
//	go orch.Run(ctx)
package work
