/*
Package mixer implements a real-time audio mixing and synchronization
buffer. It accepts audio from an arbitrary number of independently
clocked sources, realigns them onto a common sample timeline using host
clock timestamps, and produces either a single mixed stream or
per-source synchronized streams on demand.

Sources

A source is identified by any comparable value chosen by the caller.
Audio is supplied for a source in one of two ways, fixed on first use:

	Push - the producer calls Enqueue with timestamped chunks;
	Pull - the mixer requests audio on demand through a PullSource.

Frames land in per-source buffers tagged with an absolute frame
position derived from their host timestamp. Timestamp gaps are filled
with silence, overlaps are resolved in favor of the newest chunk.

Consumption

The real-time consumer calls Dequeue, DequeueSource or Peek. These
never block, never allocate and never take a lock shared with other
threads: the source table is read through a single atomic load per
cycle, and structural changes are published as copy-on-write snapshots
from control goroutines. A newly registered source may therefore miss
one or two dequeue cycles before it becomes audible.
*/
package mixer
