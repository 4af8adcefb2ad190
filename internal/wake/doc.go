// Package wake drives the frame's wake cycle.
//
// In battery mode the host starts the process on every RTC alarm and
// RunCycle does one pass:
//
//  1. clear the RTC alarm flag (and optionally sync the clock from the RTC)
//  2. open the durable message channel
//  3. publish the battery level
//  4. handle queued and arriving commands until the wait times out or the
//     resumed session's backlog is drained
//  5. if a command switched to continuous mode, stop here
//  6. set the next RTC alarm from the RTC's own clock and confirm it
//  7. close the channel, put the display to sleep, shut down
//
// Step 7 never runs unless step 6 succeeded: a device powered off without a
// confirmed alarm cannot wake up again.
//
// RunContinuous is the always-on loop used after a switch to continuous mode
// or when battery mode is disabled.
package wake
