// Package mailbox implements store-and-forward envelope delivery with a
// real-time fast path.
//
// Every recipient owns a FIFO mailbox of TTL-bounded envelopes. A send
// first consults the hub: if the recipient has at least one live
// subscriber, the envelope is fanned out to every subscriber connection
// and never enqueued (at-most-once, best effort). Otherwise it is appended
// to the mailbox and waits for a poll or a reconnect. Poll is
// delete-on-delivery: entries leave the mailbox in the same atomic step
// that returns them. A subscriber gets any queued entries flushed exactly
// once on connect, before its keep-alive loop begins.
//
// Ordering is FIFO within one mailbox only; nothing is guaranteed across
// recipients or across multiple subscriber connections for the same
// recipient.
package mailbox
