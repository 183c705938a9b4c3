// Package mesh is the Fastcon transmission engine: a bounded command queue,
// a cooperative advertisement scheduler and the action methods that feed
// them.
//
// Fastcon lights never acknowledge anything. Reliability comes from holding
// each encoded command on air for a fixed duration, so the radio repeats it
// many times, then leaving a short quiet gap so receivers can tell two
// consecutive commands apart.
//
// # Scheduler
//
//	          queue non-empty,           now - started ≥ duration
//	          SetPayload ok              ClearPayload
//	  ┌──────┐ ─────────────▶ ┌─────────────┐ ─────────────▶ ┌─────┐
//	  │ Idle │                │ Advertising │                │ Gap │
//	  └──────┘ ◀───────────────────────────────────────────── └─────┘
//	                      now - gap start ≥ gap
//
// There is no timer inside the package. The owner calls Controller.Poll with
// the current time every few milliseconds; tests pass synthetic times.
//
// If the transport rejects SetPayload the command stays at the head of the
// queue, the sequence counter is not advanced and the next poll retries.
//
// # Queue
//
// The queue is FIFO with a drop-new overflow policy. There is no priority
// lane: a factory reset waits behind everything queued before it.
//
// # Usage
//
//	ctrl, err := mesh.New(mesh.DefaultConfig(key[:]), transport)
//	if err != nil {
//	    return err
//	}
//	ctrl.SetObserver(observer)
//
//	if err := ctrl.PairDevice(42, 1); errors.Is(err, mesh.ErrQueueFull) {
//	    // retry later
//	}
//
//	ticker := time.NewTicker(5 * time.Millisecond)
//	for now := range ticker.C {
//	    ctrl.Poll(now)
//	}
package mesh
