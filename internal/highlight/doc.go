// Package highlight tracks short-lived "price moved" flashes per instrument.
//
// Each instrument is Idle or Flashing(up|down). A strictly higher observed
// price flashes up, a strictly lower one flashes down, and the flash clears
// after a fixed duration. A new move during a flash restarts its timer, so at
// most one timer is pending per instrument.
package highlight
